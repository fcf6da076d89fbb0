package repository

import (
	"context"

	"GISData-App/internal/domain/model"
)

// FileCatalog はアップロード済みファイルの一覧・行政区分の参照を担う読み取り専用インターフェース
type FileCatalog interface {
	ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error)
	// ListStates は登録済みファイルの州を重複なく昇順で返す
	ListStates(ctx context.Context) ([]string, error)
	// ListDistricts は state が空でなければ州で絞り込む（部分一致）
	ListDistricts(ctx context.Context, state string) ([]string, error)
}

// FileRepository はファイルと配下の地物の永続化を担う
type FileRepository interface {
	FileCatalog
	// CreateWithFeatures はファイルと全地物を1トランザクションで保存する。失敗時は何も残さない
	CreateWithFeatures(ctx context.Context, file *model.FileRecord, features []model.Feature) error
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// Delete は配下の地物も削除する
	Delete(ctx context.Context, id string) error
}
