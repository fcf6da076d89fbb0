package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

// kmlNode 名前空間を問わずに辿れる汎用XML要素
type kmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []kmlNode  `xml:",any"`
}

func (n *kmlNode) name() string {
	return n.XMLName.Local
}

func (n *kmlNode) child(local string) *kmlNode {
	for i := range n.Children {
		if n.Children[i].name() == local {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *kmlNode) childText(local string) string {
	if c := n.child(local); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

func (n *kmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// kmlContainers 再帰的に辿るコンテナ要素
var kmlContainers = map[string]bool{
	"kml":      true,
	"Document": true,
	"Folder":   true,
}

type kmlParser struct{}

// NewKMLParser KMLのパーサー
func NewKMLParser() FormatParser {
	return &kmlParser{}
}

func (p *kmlParser) FileType() model.FileType {
	return model.FileTypeKML
}

func (p *kmlParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	var root kmlNode
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, model.NewParseError("invalid KML document", err)
	}

	var features []model.CanonicalFeature
	p.walk(&root, stem, &features)

	if len(features) == 0 {
		return nil, model.NewParseError("no geometries found in KML file", nil)
	}
	return features, nil
}

// walk コンテナを再帰的に辿り、ジオメトリを持つ Placemark ごとに1地物を追加する
func (p *kmlParser) walk(n *kmlNode, stem string, out *[]model.CanonicalFeature) {
	for i := range n.Children {
		c := &n.Children[i]
		switch {
		case c.name() == "Placemark":
			if f, ok := placemarkFeature(c, fallbackName(stem, len(*out))); ok {
				*out = append(*out, f)
			}
		case kmlContainers[c.name()]:
			p.walk(c, stem, out)
		}
	}
}

func placemarkFeature(pm *kmlNode, fallback string) (model.CanonicalFeature, bool) {
	var g orb.Geometry
	for i := range pm.Children {
		var err error
		g, err = kmlGeometry(&pm.Children[i])
		if err != nil {
			log.Warn().Err(err).Str("placemark", pm.childText("name")).Msg("⚠️ Placemarkのジオメトリを読み込めませんでした")
			return model.CanonicalFeature{}, false
		}
		if g != nil {
			break
		}
	}
	if g == nil {
		return model.CanonicalFeature{}, false
	}

	name := pm.childText("name")
	if name == "" {
		name = fallback
	}

	props := map[string]interface{}{"name": name}
	keyOrder := []string{"name"}
	if desc := pm.childText("description"); desc != "" {
		props["description"] = desc
		keyOrder = append(keyOrder, "description")
	}
	if ext := pm.child("ExtendedData"); ext != nil {
		for _, kv := range extendedData(ext) {
			if _, exists := props[kv[0]]; !exists {
				keyOrder = append(keyOrder, kv[0])
			}
			props[kv[0]] = kv[1]
		}
	}

	return model.CanonicalFeature{
		Name:       name,
		Geometry:   g,
		Properties: props,
		KeyOrder:   keyOrder,
	}, true
}

// extendedData <Data name><value> と <SchemaData><SimpleData name> を読み込む
func extendedData(ext *kmlNode) [][2]string {
	var kvs [][2]string
	for i := range ext.Children {
		c := &ext.Children[i]
		switch c.name() {
		case "Data":
			if key := c.attr("name"); key != "" {
				kvs = append(kvs, [2]string{key, c.childText("value")})
			}
		case "SchemaData":
			for j := range c.Children {
				sd := &c.Children[j]
				if sd.name() == "SimpleData" {
					if key := sd.attr("name"); key != "" {
						kvs = append(kvs, [2]string{key, strings.TrimSpace(sd.Text)})
					}
				}
			}
		}
	}
	return kvs
}

// kmlGeometry ジオメトリ要素を orb に変換。ジオメトリ要素でなければ nil を返す
func kmlGeometry(n *kmlNode) (orb.Geometry, error) {
	switch n.name() {
	case "Point":
		pts, err := parseKMLCoordinates(n.childText("coordinates"))
		if err != nil {
			return nil, err
		}
		if len(pts) != 1 {
			return nil, fmt.Errorf("Point に座標が %d 個あります", len(pts))
		}
		return pts[0], nil

	case "LineString":
		pts, err := parseKMLCoordinates(n.childText("coordinates"))
		if err != nil {
			return nil, err
		}
		if len(pts) < 2 {
			return nil, fmt.Errorf("LineString の座標が不足しています")
		}
		return orb.LineString(pts), nil

	case "Polygon":
		return kmlPolygon(n)

	case "MultiGeometry":
		return kmlMultiGeometry(n)
	}
	return nil, nil
}

func kmlPolygon(n *kmlNode) (orb.Polygon, error) {
	outer := n.child("outerBoundaryIs")
	if outer == nil {
		return nil, fmt.Errorf("Polygon に outerBoundaryIs がありません")
	}
	ring, err := kmlRing(outer)
	if err != nil {
		return nil, err
	}
	poly := orb.Polygon{ring}

	for i := range n.Children {
		c := &n.Children[i]
		if c.name() != "innerBoundaryIs" {
			continue
		}
		hole, err := kmlRing(c)
		if err != nil {
			return nil, err
		}
		poly = append(poly, hole)
	}
	return poly, nil
}

func kmlRing(boundary *kmlNode) (orb.Ring, error) {
	lr := boundary.child("LinearRing")
	if lr == nil {
		return nil, fmt.Errorf("%s に LinearRing がありません", boundary.name())
	}
	pts, err := parseKMLCoordinates(lr.childText("coordinates"))
	if err != nil {
		return nil, err
	}
	if len(pts) < 4 {
		return nil, fmt.Errorf("LinearRing の座標が不足しています")
	}
	return orb.Ring(pts), nil
}

// kmlMultiGeometry 同じ型のみで構成される MultiGeometry を Multi* に変換する
func kmlMultiGeometry(n *kmlNode) (orb.Geometry, error) {
	var parts []orb.Geometry
	for i := range n.Children {
		g, err := kmlGeometry(&n.Children[i])
		if err != nil {
			return nil, err
		}
		if g != nil {
			parts = append(parts, g)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("MultiGeometry が空です")
	}

	switch parts[0].(type) {
	case orb.Point:
		mp := make(orb.MultiPoint, 0, len(parts))
		for _, g := range parts {
			pt, ok := g.(orb.Point)
			if !ok {
				return nil, errMixedMultiGeometry
			}
			mp = append(mp, pt)
		}
		return mp, nil
	case orb.LineString:
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, g := range parts {
			ls, ok := g.(orb.LineString)
			if !ok {
				return nil, errMixedMultiGeometry
			}
			mls = append(mls, ls)
		}
		return mls, nil
	case orb.Polygon:
		mp := make(orb.MultiPolygon, 0, len(parts))
		for _, g := range parts {
			poly, ok := g.(orb.Polygon)
			if !ok {
				return nil, errMixedMultiGeometry
			}
			mp = append(mp, poly)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("入れ子の MultiGeometry には対応していません")
}

var errMixedMultiGeometry = errors.New("異なる型が混在した MultiGeometry には対応していません")

// parseKMLCoordinates "lon,lat[,alt] lon,lat[,alt] ..." を解析する（高度は捨てる）
func parseKMLCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	pts := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("座標の形式が不正です: %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("経度の形式が不正です: %q", tuple)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("緯度の形式が不正です: %q", tuple)
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("座標がありません")
	}
	return pts, nil
}
