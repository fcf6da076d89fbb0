package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
)

// GCSClient 元ファイル保管用のCloud Storageクライアント
type GCSClient struct {
	client *storage.Client
	bucket string
}

// NewGCSClient デフォルト認証でCloud Storageに接続する
func NewGCSClient(ctx context.Context, bucket string) (*GCSClient, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKETが設定されていません")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}

	log.Info().Str("bucket", bucket).Msg("✅ Cloud Storage client initialized")
	return &GCSClient{client: client, bucket: bucket}, nil
}

// Bucket 保管先バケット
func (c *GCSClient) Bucket() *storage.BucketHandle {
	return c.client.Bucket(c.bucket)
}

// BucketName 保管先バケット名
func (c *GCSClient) BucketName() string {
	return c.bucket
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}
