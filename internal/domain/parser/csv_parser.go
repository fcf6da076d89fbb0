package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"GISData-App/internal/domain/model"
)

// CSVの列名候補（大文字小文字は区別しない）
var (
	wktColumnNames = []string{"wkt", "geometry", "geom"}
	latColumnNames = []string{"lat", "latitude", "y", "ycoord"}
	lonColumnNames = []string{"lon", "longitude", "lng", "x", "xcoord"}
)

type csvParser struct{}

// NewCSVParser CSV（WKT列 または 緯度経度列）のパーサー
func NewCSVParser() FormatParser {
	return &csvParser{}
}

func (p *csvParser) FileType() model.FileType {
	return model.FileTypeCSV
}

// csvGeometryReader 1行からジオメトリを取り出す。取り出せない行は false
type csvGeometryReader struct {
	columns []int // ジオメトリに使う列（属性から除外する）
	read    func(row []string) (orb.Geometry, bool)
}

func (p *csvParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, model.NewParseError("cannot read CSV header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	geomReader, err := selectCSVGeometryReader(header)
	if err != nil {
		return nil, err
	}

	excluded := make(map[int]bool, len(geomReader.columns))
	for _, c := range geomReader.columns {
		excluded[c] = true
	}
	var keyOrder []string
	for i, h := range header {
		if !excluded[i] {
			keyOrder = append(keyOrder, h)
		}
	}

	var features []model.CanonicalFeature
	for idx := 0; ; idx++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, model.NewParseError("malformed CSV", err)
		}

		g, ok := geomReader.read(row)
		if !ok {
			continue
		}

		props := make(map[string]interface{}, len(keyOrder))
		for i, h := range header {
			if excluded[i] {
				continue
			}
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			props[h] = inferCSVValue(cell)
		}

		features = append(features, model.CanonicalFeature{
			Name:       nameFromProperties(props, fallbackName(stem, idx)),
			Geometry:   g,
			Properties: props,
			KeyOrder:   keyOrder,
		})
	}

	if len(features) == 0 {
		return nil, model.NewParseError("no valid geometries found in CSV", nil)
	}
	return features, nil
}

// selectCSVGeometryReader WKT列を優先し、なければ緯度・経度列の組を使う
func selectCSVGeometryReader(header []string) (*csvGeometryReader, error) {
	if col := findColumn(header, wktColumnNames); col >= 0 {
		return &csvGeometryReader{
			columns: []int{col},
			read: func(row []string) (orb.Geometry, bool) {
				if col >= len(row) {
					return nil, false
				}
				g, err := wkt.Unmarshal(strings.TrimSpace(row[col]))
				if err != nil || !isSupportedGeometry(g) {
					return nil, false
				}
				return g, true
			},
		}, nil
	}

	latCol := findColumn(header, latColumnNames)
	lonCol := findColumn(header, lonColumnNames)
	if latCol >= 0 && lonCol >= 0 {
		return &csvGeometryReader{
			columns: []int{latCol, lonCol},
			read: func(row []string) (orb.Geometry, bool) {
				if latCol >= len(row) || lonCol >= len(row) {
					return nil, false
				}
				lat, err := strconv.ParseFloat(strings.TrimSpace(row[latCol]), 64)
				if err != nil {
					return nil, false
				}
				lon, err := strconv.ParseFloat(strings.TrimSpace(row[lonCol]), 64)
				if err != nil {
					return nil, false
				}
				return orb.Point{lon, lat}, true
			},
		}, nil
	}

	return nil, model.NewParseError("CSV must contain either a WKT column (wkt, geometry, geom) or latitude/longitude columns", nil)
}

// findColumn 候補名の順ではなく列の順で最初に一致した列番号を返す
func findColumn(header []string, candidates []string) int {
	for i, h := range header {
		for _, c := range candidates {
			if strings.EqualFold(h, c) {
				return i
			}
		}
	}
	return -1
}

// inferCSVValue 空欄は null、数値・真偽値は型を推定する
func inferCSVValue(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return model.SanitizeValue(f)
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
