package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/coordinate"
	"GISData-App/internal/domain/helper"
	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/parser"
	"GISData-App/internal/domain/repository"
)

// UploadRequest アップロード1件分の入力
type UploadRequest struct {
	Data     []byte
	Filename string
	State    string // 空の場合は属性・ファイル名から推定する
	District string
	Policy   string // 空の場合は既定のポリシー
}

// UploadResponse 保存したファイルと取り込みレポート
type UploadResponse struct {
	File   *model.FileRecord   `json:"file"`
	Report *model.UploadReport `json:"report"`
}

type UploadUseCase interface {
	// Upload はファイルを解析・正規化し、1地物以上残った場合のみ保存する
	Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error)
}

// UploadConfig アップロード処理の設定
type UploadConfig struct {
	MaxBytes       int64
	DefaultPolicy  model.FeatureErrorPolicy
	ReportTTLHours int
}

type uploadUseCaseImpl struct {
	parser   *parser.Parser
	pipeline *coordinate.Pipeline
	files    repository.FileRepository
	reports  repository.UploadReportRepository
	blobs    repository.BlobStore // nil の場合は元ファイルを保管しない
	metrics  MetricsRecorder
	config   UploadConfig
}

// NewUploadUseCase は新しいUploadUseCaseインスタンスを作成
func NewUploadUseCase(
	p *parser.Parser,
	pipeline *coordinate.Pipeline,
	files repository.FileRepository,
	reports repository.UploadReportRepository,
	blobs repository.BlobStore,
	metrics MetricsRecorder,
	config UploadConfig,
) UploadUseCase {
	if config.DefaultPolicy == "" {
		config.DefaultPolicy = model.ContinueOnFeatureError
	}
	return &uploadUseCaseImpl{
		parser:   p,
		pipeline: pipeline,
		files:    files,
		reports:  reports,
		blobs:    blobs,
		metrics:  metricsOrNoop(metrics),
		config:   config,
	}
}

func (u *uploadUseCaseImpl) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	filename := filepath.Base(req.Filename)
	if len(req.Data) == 0 {
		return nil, &model.GeoError{Kind: model.ErrEmptyInput, Message: "uploaded file is empty"}
	}
	if u.config.MaxBytes > 0 && int64(len(req.Data)) > u.config.MaxBytes {
		return nil, model.NewValidationError(fmt.Sprintf("file size %d bytes exceeds the limit of %d bytes", len(req.Data), u.config.MaxBytes))
	}

	policy := u.config.DefaultPolicy
	if req.Policy != "" {
		p, ok := model.ParseFeatureErrorPolicy(req.Policy)
		if !ok {
			return nil, model.NewValidationError(fmt.Sprintf("invalid policy %q; use continue or abort", req.Policy))
		}
		policy = p
	}

	log.Info().Str("filename", filename).Int("bytes", len(req.Data)).Str("policy", string(policy)).Msg("🚀 アップロード処理開始")

	// Step 1: 形式判定と解析
	features, fileType, err := u.parser.Parse(req.Data, filename)
	if err != nil {
		u.metrics.RecordUpload(string(fileType), resultError, 0, 0, nil)
		return nil, err
	}
	log.Info().Str("file_type", string(fileType)).Int("features", len(features)).Msg("✅ 解析完了")

	// Step 2: 州・地区の決定
	loc := helper.ResolveLocation(helper.LocationMeta{State: req.State, District: req.District}, features, filename)
	if loc.State == "" {
		u.metrics.RecordUpload(string(fileType), resultError, 0, 0, nil)
		return nil, model.NewValidationError("State is required. Please provide state name or ensure file contains state information.")
	}

	// Step 3: 座標の正規化
	survivors, decisions, err := u.pipeline.NormalizeFeatures(features, policy)
	if err != nil {
		u.metrics.RecordUpload(string(fileType), resultError, 0, skippedCount(decisions), nil)
		return nil, err
	}
	skipped := skippedCount(decisions)
	if len(survivors) == 0 {
		u.metrics.RecordUpload(string(fileType), resultError, 0, skipped, nil)
		return nil, noSurvivorsError(decisions)
	}

	// Step 4: 元ファイルの保管と保存
	fileID := uuid.New().String()
	record := &model.FileRecord{
		ID:               fileID,
		Filename:         filename,
		OriginalFilename: req.Filename,
		FileType:         fileType,
		State:            loc.State,
		District:         loc.District,
	}

	if u.blobs != nil {
		path, err := u.blobs.Put(ctx, fmt.Sprintf("uploads/%s/%s", fileID, filename), req.Data, "application/octet-stream")
		if err != nil {
			u.metrics.RecordUpload(string(fileType), resultError, 0, skipped, nil)
			return nil, fmt.Errorf("元ファイルの保管に失敗: %w", err)
		}
		record.StoragePath = path
	}

	stored := make([]model.Feature, 0, len(survivors))
	for _, f := range survivors {
		stored = append(stored, model.Feature{
			ID:         uuid.New().String(),
			Name:       f.Name,
			Properties: model.SanitizeProperties(f.Properties),
			Geometry:   f.Geometry,
		})
	}

	if err := u.files.CreateWithFeatures(ctx, record, stored); err != nil {
		if record.StoragePath != "" {
			if delErr := u.blobs.Delete(ctx, record.StoragePath); delErr != nil {
				log.Warn().Err(delErr).Str("path", record.StoragePath).Msg("⚠️ 保管した元ファイルの削除に失敗しました")
			}
		}
		u.metrics.RecordUpload(string(fileType), resultError, 0, skipped, nil)
		return nil, fmt.Errorf("ファイルの保存に失敗: %w", err)
	}

	// Step 5: レポート（保存に失敗してもアップロードは成功扱い）
	report := &model.UploadReport{
		FileID:         fileID,
		Filename:       filename,
		FileType:       fileType,
		Policy:         string(policy),
		ParsedCount:    len(features),
		StoredCount:    len(stored),
		SkippedCount:   skipped,
		TransformedCRS: transformedCounts(decisions),
		Decisions:      decisions,
		CreatedAt:      time.Now().UTC(),
	}
	if err := u.reports.Save(ctx, report, u.config.ReportTTLHours); err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Msg("⚠️ 取り込みレポートの保存に失敗しました")
	}

	u.metrics.RecordUpload(string(fileType), resultSuccess, len(stored), skipped, report.TransformedCRS)
	log.Info().
		Str("file_id", fileID).
		Int("stored", len(stored)).
		Int("skipped", skipped).
		Msg("🎉 アップロード完了")

	return &UploadResponse{File: record, Report: report}, nil
}

// transformedCounts 保存された地物の検出CRSごとの件数
func transformedCounts(decisions []model.FeatureDecision) map[string]int {
	counts := map[string]int{}
	for _, d := range decisions {
		if !d.Skipped && d.DetectedCRS != "" {
			counts[d.DetectedCRS]++
		}
	}
	return counts
}

func skippedCount(decisions []model.FeatureDecision) int {
	n := 0
	for _, d := range decisions {
		if d.Skipped {
			n++
		}
	}
	return n
}

// noSurvivorsError 全地物が失敗した場合のエラー。最初の失敗理由を含める
func noSurvivorsError(decisions []model.FeatureDecision) error {
	msg := "no valid features could be stored; every feature failed coordinate normalization"
	for _, d := range decisions {
		if d.Error != "" {
			msg += fmt.Sprintf(" (first error: feature %d: %s)", d.Index, d.Error)
			break
		}
	}
	return model.NewParseError(msg, nil)
}
