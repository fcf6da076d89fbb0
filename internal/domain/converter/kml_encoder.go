package converter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

const kmlNamespace = "http://www.opengis.net/kml/2.2"

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	ID           string           `xml:"id,attr"`
	Name         string           `xml:"name"`
	Description  string           `xml:"description,omitempty"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData,omitempty"`
	kmlGeometry
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// kmlGeometry いずれか1つだけが設定される
type kmlGeometry struct {
	Point         *kmlCoordinates   `xml:"Point,omitempty"`
	LineString    *kmlCoordinates   `xml:"LineString,omitempty"`
	Polygon       *kmlPolygon       `xml:"Polygon,omitempty"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry,omitempty"`
}

type kmlMultiGeometry struct {
	Points      []kmlCoordinates `xml:"Point"`
	LineStrings []kmlCoordinates `xml:"LineString"`
	Polygons    []kmlPolygon     `xml:"Polygon"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	LinearRing kmlCoordinates `xml:"LinearRing"`
}

// encodeKML XMLツリーを組み立てる。失敗した場合は出力できない行を除いて再試行し、
// それも失敗した場合は設定に応じてGeoJSONを埋め込んだKMLを出力する
func encodeKML(c *Converter, t *table, baseName string) ([]byte, error) {
	out, err := buildKMLDocument(t, baseName, false)
	if err == nil {
		return out, nil
	}
	log.Warn().Err(err).Msg("⚠️ KMLの変換に失敗したため、出力できない行を除いて再試行します")

	out, tolerantErr := buildKMLDocument(t, baseName, true)
	if tolerantErr == nil {
		return out, nil
	}

	if !c.lossyKMLFallback {
		return nil, errors.Join(err, tolerantErr)
	}

	log.Warn().Err(tolerantErr).Msg("⚠️ GeoJSONを埋め込んだKMLを出力します（属性とジオメトリの構造は失われます）")
	return lossyKML(c, t, baseName)
}

// buildKMLDocument tolerant が true の場合は出力できない行をスキップする
func buildKMLDocument(t *table, baseName string, tolerant bool) ([]byte, error) {
	doc := kmlRoot{
		Xmlns:    kmlNamespace,
		Document: kmlDocument{Name: baseName},
	}

	for i, r := range t.rows {
		geom, err := toKMLGeometry(r.geometry)
		if err != nil {
			if tolerant {
				log.Warn().Err(err).Int("row", i).Msg("⚠️ KMLに出力できない行をスキップしました")
				continue
			}
			return nil, fmt.Errorf("行%d: %w", i, err)
		}

		name := r.name()
		if name == "" {
			name = fmt.Sprintf("Feature_%d", i)
		}
		pm := kmlPlacemark{
			ID:          fmt.Sprintf("placemark_%d", i),
			Name:        name,
			Description: model.StringValue(r.values["description"]),
			kmlGeometry: geom,
		}
		pm.ExtendedData = kmlExtendedDataOf(t.columns, r)
		doc.Document.Placemarks = append(doc.Document.Placemarks, pm)
	}

	if len(doc.Document.Placemarks) == 0 {
		return nil, errors.New("KMLに出力できる行がありません")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("KMLのエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// kmlExtendedDataOf name と description 以外の null でない属性
func kmlExtendedDataOf(columns []string, r row) *kmlExtendedData {
	var data []kmlData
	for _, col := range columns {
		if col == nameColumn || col == "description" {
			continue
		}
		v := r.values[col]
		if v == nil {
			continue
		}
		data = append(data, kmlData{Name: col, Value: model.StringValue(v)})
	}
	if len(data) == 0 {
		return nil
	}
	return &kmlExtendedData{Data: data}
}

func toKMLGeometry(g orb.Geometry) (kmlGeometry, error) {
	switch v := g.(type) {
	case orb.Point:
		coords, err := kmlCoordinateString(orb.LineString{v})
		if err != nil {
			return kmlGeometry{}, err
		}
		return kmlGeometry{Point: &kmlCoordinates{coords}}, nil

	case orb.LineString:
		coords, err := kmlCoordinateString(v)
		if err != nil {
			return kmlGeometry{}, err
		}
		return kmlGeometry{LineString: &kmlCoordinates{coords}}, nil

	case orb.Polygon:
		poly, err := toKMLPolygon(v)
		if err != nil {
			return kmlGeometry{}, err
		}
		return kmlGeometry{Polygon: poly}, nil

	case orb.MultiPoint:
		multi := &kmlMultiGeometry{}
		for _, p := range v {
			coords, err := kmlCoordinateString(orb.LineString{p})
			if err != nil {
				return kmlGeometry{}, err
			}
			multi.Points = append(multi.Points, kmlCoordinates{coords})
		}
		return kmlGeometry{MultiGeometry: multi}, nil

	case orb.MultiLineString:
		multi := &kmlMultiGeometry{}
		for _, ls := range v {
			coords, err := kmlCoordinateString(ls)
			if err != nil {
				return kmlGeometry{}, err
			}
			multi.LineStrings = append(multi.LineStrings, kmlCoordinates{coords})
		}
		return kmlGeometry{MultiGeometry: multi}, nil

	case orb.MultiPolygon:
		multi := &kmlMultiGeometry{}
		for _, p := range v {
			poly, err := toKMLPolygon(p)
			if err != nil {
				return kmlGeometry{}, err
			}
			multi.Polygons = append(multi.Polygons, *poly)
		}
		return kmlGeometry{MultiGeometry: multi}, nil
	}
	return kmlGeometry{}, fmt.Errorf("ジオメトリ %T はKMLに出力できません", g)
}

func toKMLPolygon(p orb.Polygon) (*kmlPolygon, error) {
	if len(p) == 0 {
		return nil, errors.New("空のポリゴンです")
	}
	outer, err := kmlCoordinateString(p[0])
	if err != nil {
		return nil, err
	}
	poly := &kmlPolygon{Outer: kmlBoundary{kmlCoordinates{outer}}}
	for _, hole := range p[1:] {
		coords, err := kmlCoordinateString(hole)
		if err != nil {
			return nil, err
		}
		poly.Inner = append(poly.Inner, kmlBoundary{kmlCoordinates{coords}})
	}
	return poly, nil
}

// kmlCoordinateString "lon,lat lon,lat ..."（有限値でない座標はエラー）
func kmlCoordinateString[S ~[]orb.Point](points S) (string, error) {
	if len(points) == 0 {
		return "", errors.New("座標がありません")
	}
	parts := make([]string, 0, len(points))
	for _, p := range points {
		if !isFinite(p.X()) || !isFinite(p.Y()) {
			return "", fmt.Errorf("座標 (%v, %v) は有限値ではありません", p.X(), p.Y())
		}
		parts = append(parts, formatCoord(p.X())+","+formatCoord(p.Y()))
	}
	return strings.Join(parts, " "), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lossyKML 全行のGeoJSONを1つのPlacemarkのCDATAに埋め込む
func lossyKML(c *Converter, t *table, baseName string) ([]byte, error) {
	payload, err := encodeGeoJSON(c, t, baseName)
	if err != nil {
		return nil, fmt.Errorf("GeoJSONの埋め込みに失敗: %w", err)
	}

	var escapedName bytes.Buffer
	if err := xml.EscapeText(&escapedName, []byte(baseName)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<kml xmlns="%s">
  <Document>
    <name>%s</name>
    <Placemark>
      <name>Features</name>
      <ExtendedData>
        <Data name="geojson">
          <value><![CDATA[%s]]></value>
        </Data>
      </ExtendedData>
    </Placemark>
  </Document>
</kml>
`, kmlNamespace, escapedName.String(), strings.ReplaceAll(string(payload), "]]>", "]]]]><![CDATA[>"))
	return buf.Bytes(), nil
}

// encodeKMZ KMLを doc.kml としてZIPに格納する
func encodeKMZ(c *Converter, t *table, baseName string) ([]byte, error) {
	kml, err := encodeKML(c, t, baseName)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "doc.kml", Method: zip.Deflate})
	if err != nil {
		return nil, fmt.Errorf("KMZの作成に失敗: %w", err)
	}
	if _, err := w.Write(kml); err != nil {
		return nil, fmt.Errorf("KMZの書き込みに失敗: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("KMZの作成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}
