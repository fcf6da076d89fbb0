package helper

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeometryFromGeoJSON GeoJSON の geometry オブジェクト（map や生のJSON）を orb.Geometry に変換
func GeometryFromGeoJSON(v interface{}) (orb.Geometry, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil, errors.New("geometry is empty")
	case []byte:
		raw = val
	case json.RawMessage:
		raw = val
	case string:
		raw = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("geometry のJSON変換に失敗: %w", err)
		}
		raw = b
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON geometry: %w", err)
	}
	if g.Coordinates == nil {
		return nil, errors.New("geometry has no coordinates")
	}
	return g.Geometry(), nil
}

// GeometryToGeoJSON orb.Geometry を GeoJSON の geometry オブジェクトに変換
func GeometryToGeoJSON(g orb.Geometry) *geojson.Geometry {
	if g == nil {
		return nil
	}
	return geojson.NewGeometry(g)
}
