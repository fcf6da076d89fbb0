package converter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

// encodeFunc 表を1フォーマットのバイト列に変換する
type encodeFunc func(c *Converter, t *table, baseName string) ([]byte, error)

type outputFormat struct {
	mimeType  string
	extension string
	encode    encodeFunc
}

// outputFormats 出力フォーマット名（別名を含む）ごとの変換器
var outputFormats = map[string]outputFormat{
	"geojson":   {"application/geo+json", ".geojson", encodeGeoJSON},
	"json":      {"application/json", ".json", encodeGeoJSON},
	"shp":       {"application/zip", ".zip", encodeShapefileZip},
	"shapefile": {"application/zip", ".zip", encodeShapefileZip},
	"zip":       {"application/zip", ".zip", encodeShapefileZip},
	"kml":       {"application/vnd.google-earth.kml+xml", ".kml", encodeKML},
	"kmz":       {"application/vnd.google-earth.kmz", ".kmz", encodeKMZ},
	"gpx":       {"application/gpx+xml", ".gpx", encodeGPX},
	"csv":       {"text/csv", ".csv", encodeCSV},
}

// SupportedFormats 対応している出力フォーマット名の一覧
func SupportedFormats() []string {
	names := make([]string, 0, len(outputFormats))
	for name := range outputFormats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeFormat 大文字小文字と先頭のドットを無視してフォーマット名を正規化する
func NormalizeFormat(format string) (string, bool) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	_, ok := outputFormats[name]
	return name, ok
}

// Converter 地物リストを各フォーマットに変換する
type Converter struct {
	scratchDir       string
	lossyKMLFallback bool
}

// NewConverter Converter を作成
// lossyKMLFallback が true の場合、KMLの変換に失敗したときGeoJSONを埋め込んだPlacemarkを出力する
func NewConverter(scratchDir string, lossyKMLFallback bool) *Converter {
	return &Converter{
		scratchDir:       scratchDir,
		lossyKMLFallback: lossyKMLFallback,
	}
}

// Convert 地物リストを指定フォーマットに変換する。失敗した場合は何も出力しない
func (c *Converter) Convert(features []model.CanonicalFeature, format, baseName string) (*model.ExportResult, error) {
	if len(features) == 0 {
		return nil, &model.GeoError{Kind: model.ErrEmptyInput, Message: "no features provided for conversion"}
	}

	name, ok := NormalizeFormat(format)
	if !ok {
		return nil, model.NewUnsupportedFormatError(fmt.Sprintf(
			"unsupported output format %q; supported: %s", format, strings.Join(SupportedFormats(), ", ")))
	}
	if baseName == "" {
		baseName = "output"
	}

	out := outputFormats[name]
	content, err := out.encode(c, newTable(features), baseName)
	if err != nil {
		return nil, fmt.Errorf("%s への変換に失敗: %w", name, err)
	}

	log.Info().Str("format", name).Int("features", len(features)).Int("bytes", len(content)).Msg("📦 変換が完了しました")

	return &model.ExportResult{
		Content:   content,
		MimeType:  out.mimeType,
		Extension: out.extension,
		BaseName:  baseName,
	}, nil
}

// Source 結合対象の1ファイル分の地物
type Source struct {
	Name     string
	Features []model.CanonicalFeature
}

// MergedBaseName 2ファイル以上なら "merged_{n}_files"、1ファイルならそのファイル名
func MergedBaseName(sources []Source) string {
	switch len(sources) {
	case 0:
		return "merged"
	case 1:
		return sources[0].Name
	}
	return fmt.Sprintf("merged_%d_files", len(sources))
}

// Merge 複数ファイルの地物を1つの表にまとめて変換する
func (c *Converter) Merge(sources []Source, format string) (*model.ExportResult, error) {
	var all []model.CanonicalFeature
	for _, s := range sources {
		all = append(all, s.Features...)
	}
	if len(all) == 0 {
		return nil, &model.GeoError{Kind: model.ErrEmptyInput, Message: "no features found in any of the files"}
	}
	return c.Convert(all, format, MergedBaseName(sources))
}
