package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/converter"
	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
)

type ExportUseCase interface {
	// DownloadFile は1ファイル分の地物を指定フォーマットに変換する
	DownloadFile(ctx context.Context, fileID, format string) (*model.ExportResult, error)
	// Download は選択条件に一致する地物を変換する。複数ファイルを結合しない場合はZIPにまとめる
	Download(ctx context.Context, sel *model.ExportSelection) (*model.ExportResult, error)
}

type exportUseCaseImpl struct {
	files     repository.FileRepository
	features  repository.FeatureRepository
	converter *converter.Converter
	metrics   MetricsRecorder
}

// NewExportUseCase は新しいExportUseCaseインスタンスを作成
func NewExportUseCase(
	files repository.FileRepository,
	features repository.FeatureRepository,
	conv *converter.Converter,
	metrics MetricsRecorder,
) ExportUseCase {
	return &exportUseCaseImpl{
		files:     files,
		features:  features,
		converter: conv,
		metrics:   metricsOrNoop(metrics),
	}
}

// exportGroup 1ファイル分の出力対象
type exportGroup struct {
	file     *model.FileRecord
	features []model.Feature
}

func (g exportGroup) source() converter.Source {
	return converter.Source{Name: baseName(g.file), Features: toCanonical(g.features)}
}

func (u *exportUseCaseImpl) DownloadFile(ctx context.Context, fileID, format string) (*model.ExportResult, error) {
	name, err := checkFormat(format)
	if err != nil {
		return nil, err
	}

	file, err := u.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	features, err := u.features.ListByFileIDs(ctx, []string{fileID})
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, model.NewNotFoundError(fmt.Sprintf("No features found for file %s", fileID))
	}

	return u.convert(name, func() (*model.ExportResult, error) {
		return u.converter.Convert(toCanonical(features), name, baseName(file))
	})
}

func (u *exportUseCaseImpl) Download(ctx context.Context, sel *model.ExportSelection) (*model.ExportResult, error) {
	name, err := checkFormat(sel.Format)
	if err != nil {
		return nil, err
	}

	groups, err := u.selectGroups(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, model.NewNotFoundError("No features found for the given selection")
	}

	if sel.Merge || len(groups) == 1 {
		sources := make([]converter.Source, len(groups))
		for i, g := range groups {
			sources[i] = g.source()
		}
		return u.convert(name, func() (*model.ExportResult, error) {
			return u.converter.Merge(sources, name)
		})
	}

	return u.convert(name, func() (*model.ExportResult, error) {
		return u.zipPerFile(ctx, groups, name)
	})
}

// selectGroups feature_ids > file_ids > state/district の順で対象を決める
func (u *exportUseCaseImpl) selectGroups(ctx context.Context, sel *model.ExportSelection) ([]exportGroup, error) {
	switch {
	case len(sel.FeatureIDs) > 0:
		features, err := u.features.ListByIDs(ctx, sel.FeatureIDs)
		if err != nil {
			return nil, err
		}
		return u.groupByFile(ctx, features)

	case len(sel.FileIDs) > 0:
		features, err := u.features.ListByFileIDs(ctx, sel.FileIDs)
		if err != nil {
			return nil, err
		}
		return u.groupByFile(ctx, features)

	case sel.State != "" || sel.District != "":
		files, err := u.files.ListFiles(ctx, model.FileFilter{State: sel.State, District: sel.District})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(files))
		for i, f := range files {
			ids[i] = f.ID
		}
		features, err := u.features.ListByFileIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		return u.groupByFile(ctx, features)
	}

	return nil, model.NewValidationError("file_ids, feature_ids, state or district is required")
}

// groupByFile 地物の並び順を保ったままファイルごとにまとめる
func (u *exportUseCaseImpl) groupByFile(ctx context.Context, features []model.Feature) ([]exportGroup, error) {
	var groups []exportGroup
	index := map[string]int{}
	for _, f := range features {
		i, ok := index[f.FileID]
		if !ok {
			file, err := u.files.GetByID(ctx, f.FileID)
			if err != nil {
				return nil, err
			}
			i = len(groups)
			index[f.FileID] = i
			groups = append(groups, exportGroup{file: file})
		}
		groups[i].features = append(groups[i].features, f)
	}
	return groups, nil
}

// zipPerFile ファイルごとに変換し、"{ファイル名}{拡張子}" のエントリとしてZIPにまとめる
func (u *exportUseCaseImpl) zipPerFile(ctx context.Context, groups []exportGroup, format string) (*model.ExportResult, error) {
	results, err := convertParallel(ctx, u.converter, groups, format)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	taken := map[string]bool{}

	for _, res := range results {
		entry := uniqueEntryName(res, taken)
		taken[entry] = true

		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("ZIPの作成に失敗: %w", err)
		}
		if _, err := w.Write(res.Content); err != nil {
			return nil, fmt.Errorf("ZIPの書き込みに失敗: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ZIPの作成に失敗: %w", err)
	}

	return &model.ExportResult{
		Content:   buf.Bytes(),
		MimeType:  "application/zip",
		Extension: ".zip",
		BaseName:  fmt.Sprintf("export_%d_files", len(groups)),
	}, nil
}

// uniqueEntryName 既に使われていれば {base}_{n}{ext} を空きが見つかるまで試す
func uniqueEntryName(res *model.ExportResult, taken map[string]bool) string {
	entry := res.Filename()
	for n := 1; taken[entry]; n++ {
		entry = fmt.Sprintf("%s_%d%s", res.BaseName, n, res.Extension)
	}
	return entry
}

func (u *exportUseCaseImpl) convert(format string, fn func() (*model.ExportResult, error)) (*model.ExportResult, error) {
	res, err := fn()
	if err != nil {
		u.metrics.RecordConversion(format, resultError)
		log.Error().Err(err).Str("format", format).Msg("❌ 変換に失敗しました")
		return nil, err
	}
	u.metrics.RecordConversion(format, resultSuccess)
	return res, nil
}

func checkFormat(format string) (string, error) {
	if format == "" {
		format = "geojson"
	}
	name, ok := converter.NormalizeFormat(format)
	if !ok {
		return "", model.NewUnsupportedFormatError(fmt.Sprintf(
			"unsupported output format %q; supported: %s", format, strings.Join(converter.SupportedFormats(), ", ")))
	}
	return name, nil
}

// baseName 出力ファイル名（拡張子なしの元ファイル名）
func baseName(file *model.FileRecord) string {
	name := filepath.Base(file.Filename)
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != "" && stem != "." {
		return stem
	}
	return file.ID
}

func toCanonical(features []model.Feature) []model.CanonicalFeature {
	out := make([]model.CanonicalFeature, len(features))
	for i, f := range features {
		out[i] = model.CanonicalFeature{
			Name:       f.Name,
			Geometry:   f.Geometry,
			Properties: f.Properties,
		}
	}
	return out
}
