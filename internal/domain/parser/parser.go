package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

// upload 判定対象のアップロード
type upload struct {
	data       []byte
	filename   string
	ext        string
	zipEntries []string // ZIPとして読めない場合は nil
}

func newUpload(data []byte, filename string) *upload {
	u := &upload{data: data, filename: filename, ext: FileExt(filename)}
	if u.ext == ".zip" {
		u.zipEntries = listZipEntries(data)
	}
	return u
}

func (u *upload) hasZipEntry(ext string) bool {
	for _, name := range u.zipEntries {
		if strings.EqualFold(path.Ext(name), ext) {
			return true
		}
	}
	return false
}

// dispatchRule 判定規則（上から順に評価し、最初に一致したものを採用）
type dispatchRule struct {
	name   string
	match  func(u *upload) bool
	parser FormatParser
}

// Parser 拡張子とZIPの中身からパーサーを選択する
type Parser struct {
	rules []dispatchRule
}

// NewParser 全フォーマットのパーサーを登録した Parser を作成
// scratchDir はShapefile展開用の一時ディレクトリの親（空ならOSの既定）
func NewParser(scratchDir string) *Parser {
	geoJSON := NewGeoJSONParser()
	shapefile := NewShapefileParser(scratchDir)
	kml := NewKMLParser()
	kmz := NewKMZParser(kml)

	return &Parser{
		rules: []dispatchRule{
			{name: "zip+shp", match: func(u *upload) bool { return u.hasZipEntry(".shp") }, parser: shapefile},
			{name: "zip+kml", match: func(u *upload) bool { return u.hasZipEntry(".kml") }, parser: kmz},
			{name: ".geojson", match: extIs(".geojson"), parser: geoJSON},
			{name: ".json", match: extIs(".json"), parser: geoJSON},
			{name: ".kml", match: extIs(".kml"), parser: kml},
			{name: ".kmz", match: extIs(".kmz"), parser: kmz},
			{name: ".shp", match: extIs(".shp"), parser: bareShapefileParser{}},
			{name: ".gpx", match: extIs(".gpx"), parser: NewGPXParser()},
			{name: ".csv", match: extIs(".csv"), parser: NewCSVParser()},
		},
	}
}

func extIs(ext string) func(u *upload) bool {
	return func(u *upload) bool { return u.ext == ext }
}

func (p *Parser) selectRule(u *upload) (dispatchRule, bool) {
	for _, r := range p.rules {
		if r.match(u) {
			return r, true
		}
	}
	return dispatchRule{}, false
}

// DetectFileType ファイル種別を判定する（パースは行わない）
func (p *Parser) DetectFileType(data []byte, filename string) model.FileType {
	if r, ok := p.selectRule(newUpload(data, filename)); ok {
		return r.parser.FileType()
	}
	return model.FileTypeUnknown
}

// Parse ファイルを判定して地物リストに変換する
func (p *Parser) Parse(data []byte, filename string) ([]model.CanonicalFeature, model.FileType, error) {
	u := newUpload(data, filename)
	rule, ok := p.selectRule(u)
	if !ok {
		return nil, model.FileTypeUnknown, model.NewUnsupportedFormatError(
			fmt.Sprintf("unsupported file type %q; supported: .geojson, .json, .kml, .kmz, .zip (Shapefile or KMZ), .gpx, .csv", u.ext))
	}

	log.Debug().Str("filename", filename).Str("rule", rule.name).Msg("📂 パーサーを選択しました")

	if len(data) == 0 {
		return nil, rule.parser.FileType(), model.NewParseError("file is empty", nil)
	}

	features, err := rule.parser.Parse(data, FileStem(filename))
	if err != nil {
		return nil, rule.parser.FileType(), err
	}
	if len(features) == 0 {
		return nil, rule.parser.FileType(), model.NewParseError(
			fmt.Sprintf("no usable geometries found in %s file", rule.parser.FileType()), nil)
	}

	return features, rule.parser.FileType(), nil
}

func listZipEntries(data []byte) []string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// bareShapefileParser 単体の .shp は .shx/.dbf がないため読み込めない
type bareShapefileParser struct{}

func (bareShapefileParser) FileType() model.FileType { return model.FileTypeShapefile }

func (bareShapefileParser) Parse(_ []byte, _ string) ([]model.CanonicalFeature, error) {
	return nil, model.NewParseError(
		"shapefile upload must be a ZIP archive containing .shp, .shx and .dbf (and optionally .prj) files", nil)
}
