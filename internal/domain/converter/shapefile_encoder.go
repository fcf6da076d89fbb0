package converter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"GISData-App/internal/domain/model"
)

// DBFの制約
const (
	dbfMaxFieldName   = 10
	dbfStringLength   = 254
	dbfNumberLength   = 18
	dbfFloatLength    = 24
	dbfFloatPrecision = 8
)

// wgs84PRJ EPSG:4326 の .prj（ESRI WKT）
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// shapeKind Shapefileは1ファイル1ジオメトリ型のため、型ごとにファイルを分ける
type shapeKind struct {
	suffix    string
	shapeType shp.ShapeType
}

var (
	kindPoint      = shapeKind{"point", shp.POINT}
	kindMultiPoint = shapeKind{"multipoint", shp.MULTIPOINT}
	kindLine       = shapeKind{"line", shp.POLYLINE}
	kindPolygon    = shapeKind{"polygon", shp.POLYGON}
)

func shapeKindOf(g orb.Geometry) (shapeKind, bool) {
	switch g.(type) {
	case orb.Point:
		return kindPoint, true
	case orb.MultiPoint:
		return kindMultiPoint, true
	case orb.LineString, orb.MultiLineString:
		return kindLine, true
	case orb.Polygon, orb.MultiPolygon:
		return kindPolygon, true
	}
	return shapeKind{}, false
}

// dbfColumn 属性列とDBFフィールドの対応
type dbfColumn struct {
	key   string
	field shp.Field
	kind  byte // 'C' 文字列, 'N' 整数, 'F' 浮動小数
}

// encodeShapefileZip 一時ディレクトリにShapefile一式を書き出してZIPにまとめる。一時ディレクトリは必ず削除する
func encodeShapefileZip(c *Converter, t *table, baseName string) ([]byte, error) {
	dir, err := os.MkdirTemp(c.scratchDir, "shp-write-*")
	if err != nil {
		return nil, fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}
	defer os.RemoveAll(dir)

	groups := make(map[shapeKind][]row)
	var kinds []shapeKind
	for i, r := range t.rows {
		kind, ok := shapeKindOf(r.geometry)
		if !ok {
			return nil, fmt.Errorf("行%d のジオメトリ %T はShapefileに出力できません", i, r.geometry)
		}
		if _, exists := groups[kind]; !exists {
			kinds = append(kinds, kind)
		}
		groups[kind] = append(groups[kind], r)
	}

	columns := dbfColumns(t)
	stem := safeFileStem(baseName)
	for _, kind := range kinds {
		name := stem
		if len(kinds) > 1 {
			name = stem + "_" + kind.suffix
		}
		if err := writeShapefile(filepath.Join(dir, name), kind, columns, groups[kind]); err != nil {
			return nil, err
		}
	}

	return zipDirectory(dir)
}

func writeShapefile(basePath string, kind shapeKind, columns []dbfColumn, rows []row) error {
	w, err := shp.Create(basePath+".shp", kind.shapeType)
	if err != nil {
		return fmt.Errorf("Shapefileの作成に失敗: %w", err)
	}

	fields := make([]shp.Field, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, col.field)
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return fmt.Errorf("DBFフィールドの設定に失敗: %w", err)
	}

	for _, r := range rows {
		idx := int(w.Write(toShape(r.geometry)))
		for fieldIdx, col := range columns {
			value, ok := dbfValue(col, r.values[col.key])
			if !ok {
				continue
			}
			if err := w.WriteAttribute(idx, fieldIdx, value); err != nil {
				w.Close()
				return fmt.Errorf("属性 %s の書き込みに失敗: %w", col.key, err)
			}
		}
	}
	w.Close()

	if err := fixDBFName(basePath); err != nil {
		return err
	}
	if err := os.WriteFile(basePath+".prj", []byte(wgs84PRJ), 0o600); err != nil {
		return fmt.Errorf(".prj の書き込みに失敗: %w", err)
	}
	if err := os.WriteFile(basePath+".cpg", []byte("UTF-8"), 0o600); err != nil {
		return fmt.Errorf(".cpg の書き込みに失敗: %w", err)
	}
	return nil
}

// fixDBFName go-shp v0.1.1 は属性ファイルを "{base}dbf"（ドットなし）で作るため "{base}.dbf" に付け替える
func fixDBFName(basePath string) error {
	misnamed := basePath + "dbf"
	if _, err := os.Stat(misnamed); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("DBFファイルの確認に失敗: %w", err)
	}
	if err := os.Rename(misnamed, basePath+".dbf"); err != nil {
		return fmt.Errorf("DBFファイル名の修正に失敗: %w", err)
	}
	return nil
}

// dbfColumns 列の型を推定し、10文字以内の重複しないフィールド名を割り当てる
func dbfColumns(t *table) []dbfColumn {
	used := make(map[string]bool)
	columns := make([]dbfColumn, 0, len(t.columns))

	for _, key := range t.columns {
		name := uniqueFieldName(key, used)
		kind := inferDBFKind(t.rows, key)

		var field shp.Field
		switch kind {
		case 'N':
			field = shp.NumberField(name, dbfNumberLength)
		case 'F':
			field = shp.FloatField(name, dbfFloatLength, dbfFloatPrecision)
		default:
			field = shp.StringField(name, dbfStringLength)
		}
		columns = append(columns, dbfColumn{key: key, field: field, kind: kind})
	}
	return columns
}

func uniqueFieldName(key string, used map[string]bool) string {
	base := truncateBytes(key, dbfMaxFieldName)
	if base == "" {
		base = "field"
	}
	name := base
	for i := 1; used[strings.ToLower(name)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		name = truncateBytes(base, dbfMaxFieldName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

// inferDBFKind 全行が整数なら 'N'、数値なら 'F'、それ以外は 'C'
func inferDBFKind(rows []row, key string) byte {
	kind := byte(0)
	for _, r := range rows {
		var k byte
		switch v := r.values[key].(type) {
		case nil:
			continue
		case int, int32, int64:
			k = 'N'
		case float64:
			if v == math.Trunc(v) && math.Abs(v) < 1e15 {
				k = 'N'
			} else {
				k = 'F'
			}
		default:
			return 'C'
		}
		if kind == 0 || (kind == 'N' && k == 'F') {
			kind = k
		}
	}
	if kind == 0 {
		return 'C'
	}
	return kind
}

// dbfValue go-shp が受け付ける int / float64 / string に変換する。nil は書き込まない
func dbfValue(col dbfColumn, v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	switch col.kind {
	case 'N':
		switch n := v.(type) {
		case int:
			return n, true
		case int32:
			return int(n), true
		case int64:
			return int(n), true
		case float64:
			return int(n), true
		}
	case 'F':
		switch n := v.(type) {
		case int:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		case float64:
			return n, true
		}
	}
	return truncateBytes(model.StringValue(v), dbfStringLength), true
}

// truncateBytes UTF-8の文字境界を保ったまま n バイト以内に切り詰める
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func toShape(g orb.Geometry) shp.Shape {
	switch v := g.(type) {
	case orb.Point:
		return &shp.Point{X: v.X(), Y: v.Y()}
	case orb.MultiPoint:
		points := shpPoints(v)
		return &shp.MultiPoint{
			Box:       shp.BBoxFromPoints(points),
			NumPoints: int32(len(points)),
			Points:    points,
		}
	case orb.LineString:
		return shp.NewPolyLine([][]shp.Point{shpPoints(v)})
	case orb.MultiLineString:
		parts := make([][]shp.Point, 0, len(v))
		for _, ls := range v {
			parts = append(parts, shpPoints(ls))
		}
		return shp.NewPolyLine(parts)
	case orb.Polygon:
		return shpPolygon(polygonRings(v))
	case orb.MultiPolygon:
		var rings [][]shp.Point
		for _, p := range v {
			rings = append(rings, polygonRings(p)...)
		}
		return shpPolygon(rings)
	}
	return &shp.Null{}
}

func shpPolygon(rings [][]shp.Point) *shp.Polygon {
	poly := shp.Polygon(*shp.NewPolyLine(rings))
	return &poly
}

// polygonRings 外周は時計回り、穴は反時計回りに揃える
func polygonRings(p orb.Polygon) [][]shp.Point {
	rings := make([][]shp.Point, 0, len(p))
	for i, r := range p {
		ring := append(orb.Ring(nil), r...)
		outer := i == 0
		if (outer && ring.Orientation() == orb.CCW) || (!outer && ring.Orientation() == orb.CW) {
			ring.Reverse()
		}
		rings = append(rings, shpPoints(ring))
	}
	return rings
}

func shpPoints[S ~[]orb.Point](points S) []shp.Point {
	out := make([]shp.Point, 0, len(points))
	for _, p := range points {
		out = append(out, shp.Point{X: p.X(), Y: p.Y()})
	}
	return out
}

// safeFileStem ZIP内のファイル名に使えない文字を置き換える
func safeFileStem(name string) string {
	stem := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if stem == "" {
		return "output"
	}
	return stem
}

// zipDirectory ディレクトリ直下のファイルを名前順にZIPへまとめる
func zipDirectory(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("一時ディレクトリの読み込みに失敗: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addFileToZip(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ZIPの作成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}

func addFileToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s の読み込みに失敗: %w", name, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("ZIPエントリ %s の作成に失敗: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("ZIPエントリ %s の書き込みに失敗: %w", name, err)
	}
	return nil
}
