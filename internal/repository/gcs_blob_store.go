package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/repository"
	gcs "GISData-App/internal/infrastructure/storage"
)

// GCSBlobStore 元ファイルをCloud Storageに保管する
type GCSBlobStore struct {
	client *gcs.GCSClient
}

func NewGCSBlobStore(client *gcs.GCSClient) repository.BlobStore {
	return &GCSBlobStore{
		client: client,
	}
}

// Put "gs://{bucket}/{key}" を返す
func (s *GCSBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket().Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("元ファイルの書き込みに失敗: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("元ファイルの保存に失敗: %w", err)
	}

	path := fmt.Sprintf("gs://%s/%s", s.client.BucketName(), key)
	log.Info().Str("path", path).Int("bytes", len(data)).Msg("📦 元ファイルを保管しました")
	return path, nil
}

// Delete 存在しないオブジェクトは無視する
func (s *GCSBlobStore) Delete(ctx context.Context, path string) error {
	prefix := fmt.Sprintf("gs://%s/", s.client.BucketName())
	if !strings.HasPrefix(path, prefix) {
		return fmt.Errorf("バケット外のパスです: %s", path)
	}

	err := s.client.Bucket().Object(strings.TrimPrefix(path, prefix)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("元ファイルの削除に失敗: %w", err)
	}
	return nil
}
