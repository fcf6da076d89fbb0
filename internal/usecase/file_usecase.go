package usecase

import (
	"context"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
)

type FileUseCase interface {
	ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error)
	ListStates(ctx context.Context) ([]string, error)
	ListDistricts(ctx context.Context, state string) ([]string, error)
	GetFile(ctx context.Context, id string) (*model.FileRecord, error)
	// GetFileFeatures はファイルが存在しない場合 NotFound を返す
	GetFileFeatures(ctx context.Context, id string, skip, limit int) ([]model.Feature, error)
	GetReport(ctx context.Context, id string) (*model.UploadReport, error)
	DeleteFile(ctx context.Context, id string) error
}

type fileUseCaseImpl struct {
	files    repository.FileRepository
	catalog  repository.FileCatalog
	features repository.FeatureRepository
	reports  repository.UploadReportRepository
	blobs    repository.BlobStore
}

// NewFileUseCase は新しいFileUseCaseインスタンスを作成
// catalog が nil の場合は files を一覧の参照先に使う
func NewFileUseCase(
	files repository.FileRepository,
	catalog repository.FileCatalog,
	features repository.FeatureRepository,
	reports repository.UploadReportRepository,
	blobs repository.BlobStore,
) FileUseCase {
	if catalog == nil {
		catalog = files
	}
	return &fileUseCaseImpl{
		files:    files,
		catalog:  catalog,
		features: features,
		reports:  reports,
		blobs:    blobs,
	}
}

func (u *fileUseCaseImpl) ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error) {
	return u.catalog.ListFiles(ctx, filter)
}

func (u *fileUseCaseImpl) ListStates(ctx context.Context) ([]string, error) {
	return u.catalog.ListStates(ctx)
}

func (u *fileUseCaseImpl) ListDistricts(ctx context.Context, state string) ([]string, error) {
	return u.catalog.ListDistricts(ctx, state)
}

func (u *fileUseCaseImpl) GetFile(ctx context.Context, id string) (*model.FileRecord, error) {
	return u.files.GetByID(ctx, id)
}

func (u *fileUseCaseImpl) GetFileFeatures(ctx context.Context, id string, skip, limit int) ([]model.Feature, error) {
	if _, err := u.files.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return u.features.ListByFile(ctx, id, skip, limit)
}

func (u *fileUseCaseImpl) GetReport(ctx context.Context, id string) (*model.UploadReport, error) {
	return u.reports.Get(ctx, id)
}

// DeleteFile 保管した元ファイルの削除失敗はログのみ
func (u *fileUseCaseImpl) DeleteFile(ctx context.Context, id string) error {
	file, err := u.files.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := u.files.Delete(ctx, id); err != nil {
		return err
	}

	if file.StoragePath != "" && u.blobs != nil {
		if err := u.blobs.Delete(ctx, file.StoragePath); err != nil {
			log.Warn().Err(err).Str("path", file.StoragePath).Msg("⚠️ 元ファイルの削除に失敗しました")
		}
	}
	log.Info().Str("file_id", id).Msg("🗑️ ファイルを削除しました")
	return nil
}
