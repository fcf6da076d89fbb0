package repository

import (
	"context"

	"GISData-App/internal/domain/model"
)

// UploadReportRepository は取り込み結果レポートを有効期限付きで保存する
type UploadReportRepository interface {
	Save(ctx context.Context, report *model.UploadReport, ttlHours int) error
	Get(ctx context.Context, fileID string) (*model.UploadReport, error)
}
