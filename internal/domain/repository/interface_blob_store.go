package repository

import "context"

// BlobStore はアップロードされた元ファイルを保管する
type BlobStore interface {
	// Put は保存先のパス（gs://bucket/key など）を返す
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}
