package parser

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"GISData-App/internal/domain/model"
)

type geoJSONParser struct{}

// NewGeoJSONParser GeoJSON（FeatureCollection / Feature / ジオメトリ単体）のパーサー
func NewGeoJSONParser() FormatParser {
	return &geoJSONParser{}
}

func (p *geoJSONParser) FileType() model.FileType {
	return model.FileTypeGeoJSON
}

func (p *geoJSONParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, model.NewParseError("invalid GeoJSON", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, model.NewParseError("invalid GeoJSON FeatureCollection", err)
		}
		features := make([]model.CanonicalFeature, 0, len(fc.Features))
		for idx, f := range fc.Features {
			cf, ok := canonicalFromGeoJSON(f, fallbackName(stem, idx))
			if !ok {
				log.Warn().Int("index", idx).Str("stem", stem).Msg("⚠️ ジオメトリのない地物をスキップしました")
				continue
			}
			features = append(features, cf)
		}
		return features, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, model.NewParseError("invalid GeoJSON Feature", err)
		}
		cf, ok := canonicalFromGeoJSON(f, stem)
		if !ok {
			return nil, model.NewParseError("GeoJSON Feature has no supported geometry", nil)
		}
		return []model.CanonicalFeature{cf}, nil

	case "Point", "LineString", "Polygon", "MultiPoint", "MultiLineString", "MultiPolygon":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, model.NewParseError(fmt.Sprintf("invalid GeoJSON %s", head.Type), err)
		}
		return []model.CanonicalFeature{{
			Name:       stem,
			Geometry:   g.Geometry(),
			Properties: map[string]interface{}{},
		}}, nil
	}

	return nil, model.NewParseError(fmt.Sprintf("unsupported GeoJSON type %q", head.Type), nil)
}

func canonicalFromGeoJSON(f *geojson.Feature, fallback string) (model.CanonicalFeature, bool) {
	if f == nil || !isSupportedGeometry(f.Geometry) {
		return model.CanonicalFeature{}, false
	}
	props := model.SanitizeProperties(f.Properties)
	return model.CanonicalFeature{
		Name:       nameFromProperties(props, fallback),
		Geometry:   f.Geometry,
		Properties: props,
	}, true
}

// isSupportedGeometry 6種類のジオメトリのみ受け付ける
func isSupportedGeometry(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Point, orb.LineString, orb.Polygon, orb.MultiPoint, orb.MultiLineString, orb.MultiPolygon:
		return true
	}
	return false
}
