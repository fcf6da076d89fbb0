package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-shapefile"

	"GISData-App/internal/domain/model"
)

// shapefileParts 1セットとして読み込む拡張子。.shp/.shx/.dbf は必須
var (
	shapefileParts    = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}
	shapefileRequired = []string{".shp", ".shx", ".dbf"}
)

type shapefileParser struct {
	scratchDir string
}

// NewShapefileParser ZIP圧縮されたShapefileのパーサー
func NewShapefileParser(scratchDir string) FormatParser {
	return &shapefileParser{scratchDir: scratchDir}
}

func (p *shapefileParser) FileType() model.FileType {
	return model.FileTypeShapefile
}

// shapefileSet ZIP内で同じ名前を持つShapefile構成ファイルの組
type shapefileSet struct {
	stem  string
	parts map[string]*zip.File
}

func (s *shapefileSet) complete() bool {
	for _, ext := range shapefileRequired {
		if s.parts[ext] == nil {
			return false
		}
	}
	return true
}

// Parse ZIP内の .shp ごとに構成ファイルを一時ディレクトリへ展開して読み込む
// 型ごとに分割されたエクスポートのように複数セットを含む場合は、すべてのセットを順に取り込む
func (p *shapefileParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, model.NewParseError("invalid ZIP archive", err)
	}

	sets := shapefileSets(zr)
	var complete []*shapefileSet
	for _, s := range sets {
		if !s.complete() {
			log.Warn().Str("set", s.stem).Msg("⚠️ .shx/.dbf が揃っていないShapefileをスキップしました")
			continue
		}
		complete = append(complete, s)
	}
	if len(complete) == 0 {
		return nil, model.NewParseError("invalid shapefile archive (.shp, .shx and .dbf are required)", nil)
	}

	dir, err := os.MkdirTemp(p.scratchDir, "shp-read-*")
	if err != nil {
		return nil, fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}
	defer os.RemoveAll(dir)

	var features []model.CanonicalFeature
	index := 0
	for i, s := range complete {
		base := filepath.Join(dir, fmt.Sprintf("layer%d", i))
		if err := extractShapefileSet(s, base); err != nil {
			return nil, err
		}

		r, err := shapefile.Read(base, &shapefile.ReadShapefileOptions{
			DBF: &shapefile.ReadDBFOptions{SkipBrokenFields: true},
		})
		if err != nil {
			return nil, model.NewParseError(fmt.Sprintf("invalid shapefile %s", s.stem), err)
		}
		if r.SHP == nil || r.DBF == nil || len(r.SHP.Records) != len(r.DBF.Records) {
			return nil, model.NewParseError(fmt.Sprintf("shapefile %s: .shp and .dbf record counts differ", s.stem), nil)
		}

		for j := 0; j < r.NumRecords(); j++ {
			rec, recGeom := r.Record(j)
			idx := index
			index++

			g, err := orbFromGeom(recGeom)
			if err != nil {
				log.Warn().Err(err).Str("set", s.stem).Int("record", j).Msg("⚠️ Shapefileのレコードをスキップしました")
				continue
			}

			props := model.SanitizeProperties(rec)
			features = append(features, model.CanonicalFeature{
				Name:       nameFromProperties(props, fallbackName(stem, idx)),
				Geometry:   g,
				Properties: props,
			})
		}
	}

	log.Debug().Int("sets", len(complete)).Int("features", len(features)).Msg("📦 Shapefileを読み込みました")
	return features, nil
}

// shapefileSets .shp を持つ名前ごとに構成ファイルをまとめる。順序はZIP内の .shp の出現順
func shapefileSets(zr *zip.Reader) []*shapefileSet {
	byStem := make(map[string]*shapefileSet)
	var order []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if !isShapefilePart(ext) {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(f.Name, path.Ext(f.Name)))
		s, ok := byStem[key]
		if !ok {
			s = &shapefileSet{stem: path.Base(strings.TrimSuffix(f.Name, path.Ext(f.Name))), parts: make(map[string]*zip.File)}
			byStem[key] = s
		}
		if s.parts[ext] == nil {
			s.parts[ext] = f
		}
		if ext == ".shp" {
			order = append(order, key)
		}
	}

	sets := make([]*shapefileSet, 0, len(order))
	for _, key := range order {
		sets = append(sets, byStem[key])
	}
	return sets
}

func isShapefilePart(ext string) bool {
	for _, e := range shapefileParts {
		if e == ext {
			return true
		}
	}
	return false
}

// extractShapefileSet 構成ファイルを base + 小文字の拡張子で書き出す
func extractShapefileSet(s *shapefileSet, base string) error {
	for ext, f := range s.parts {
		if err := extractZipFile(f, base+ext); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return model.NewParseError(fmt.Sprintf("cannot open %s in archive", f.Name), err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return model.NewParseError(fmt.Sprintf("cannot read %s in archive", f.Name), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("一時ファイルの書き込みに失敗: %w", err)
	}
	return nil
}

// orbFromGeom go-geom のジオメトリを orb に変換（2次元のみ）
func orbFromGeom(g geom.T) (orb.Geometry, error) {
	if g == nil || g.Empty() {
		return nil, fmt.Errorf("ジオメトリが空です")
	}

	switch v := g.(type) {
	case *geom.Point:
		return orb.Point{v.X(), v.Y()}, nil
	case *geom.MultiPoint:
		return orb.MultiPoint(pointsFromCoords(v.Coords())), nil
	case *geom.LineString:
		return orb.LineString(pointsFromCoords(v.Coords())), nil
	case *geom.MultiLineString:
		mls := make(orb.MultiLineString, 0, v.NumLineStrings())
		for _, line := range v.Coords() {
			mls = append(mls, orb.LineString(pointsFromCoords(line)))
		}
		return mls, nil
	case *geom.Polygon:
		return polygonFromCoords(v.Coords()), nil
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, v.NumPolygons())
		for _, poly := range v.Coords() {
			mp = append(mp, polygonFromCoords(poly))
		}
		return mp, nil
	}
	return nil, fmt.Errorf("未対応のジオメトリ型です: %T", g)
}

func pointsFromCoords(coords []geom.Coord) []orb.Point {
	points := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, orb.Point{c.X(), c.Y()})
	}
	return points
}

func polygonFromCoords(rings [][]geom.Coord) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		poly = append(poly, orb.Ring(pointsFromCoords(ring)))
	}
	return poly
}
