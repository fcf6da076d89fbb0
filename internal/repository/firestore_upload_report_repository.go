package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
)

const uploadReportsCollection = "uploadReports"

// FirestoreUploadReportRepository 取り込みレポートを expireAt 付きで保存する（TTLポリシーで自動削除）
type FirestoreUploadReportRepository struct {
	client *firestore.Client
}

func NewFirestoreUploadReportRepository(client *firestore.Client) repository.UploadReportRepository {
	return &FirestoreUploadReportRepository{
		client: client,
	}
}

// Save ドキュメントIDはファイルID
func (r *FirestoreUploadReportRepository) Save(ctx context.Context, report *model.UploadReport, ttlHours int) error {
	data := report.ToFirestoreUploadReport(ttlHours)
	if _, err := r.client.Collection(uploadReportsCollection).Doc(report.FileID).Set(ctx, data); err != nil {
		log.Error().Err(err).Str("file_id", report.FileID).Msg("❌ Failed to save upload report")
		return fmt.Errorf("取り込みレポートの保存に失敗しました: %w", err)
	}

	log.Info().Str("file_id", report.FileID).Int("ttl_hours", ttlHours).Msg("✅ Upload report saved")
	return nil
}

func (r *FirestoreUploadReportRepository) Get(ctx context.Context, fileID string) (*model.UploadReport, error) {
	doc, err := r.client.Collection(uploadReportsCollection).Doc(fileID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, model.NewNotFoundError(fmt.Sprintf("Upload report for file %s not found (expired or invalid id)", fileID))
		}
		return nil, fmt.Errorf("取り込みレポートの取得に失敗しました: %w", err)
	}

	var data model.FirestoreUploadReport
	if err := doc.DataTo(&data); err != nil {
		return nil, fmt.Errorf("データの変換に失敗しました: %w", err)
	}
	return data.ToUploadReport(fileID), nil
}

// NoopUploadReportRepository Firestore未設定時に使う。保存せず、取得は常に NotFound
type NoopUploadReportRepository struct{}

func NewNoopUploadReportRepository() repository.UploadReportRepository {
	return NoopUploadReportRepository{}
}

func (NoopUploadReportRepository) Save(ctx context.Context, report *model.UploadReport, ttlHours int) error {
	return nil
}

func (NoopUploadReportRepository) Get(ctx context.Context, fileID string) (*model.UploadReport, error) {
	return nil, model.NewNotFoundError("upload reports are not enabled")
}
