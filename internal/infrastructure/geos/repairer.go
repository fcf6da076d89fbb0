// Package geos GEOS（libgeos）を使った位相修復。cgo が必要なためこのパッケージに閉じ込める
package geos

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"

	"GISData-App/internal/domain/coordinate"
)

// bufferQuadSegs 円弧近似の分割数（ゼロ距離バッファでは頂点数に影響しない）
const bufferQuadSegs = 8

type bufferRepairer struct{}

// NewBufferRepairer ゼロ距離バッファで修復する Repairer を作成
func NewBufferRepairer() coordinate.Repairer {
	return &bufferRepairer{}
}

// Repair 不正なジオメトリのみ Buffer(0) を1回だけ適用する
func (r *bufferRepairer) Repair(g orb.Geometry) (orb.Geometry, bool, error) {
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, false, fmt.Errorf("GeoJSON変換に失敗: %w", err)
	}

	geom, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, false, fmt.Errorf("GEOSジオメトリの作成に失敗: %w", err)
	}
	defer geom.Destroy()

	if geom.IsValid() {
		return g, false, nil
	}
	reason := geom.IsValidReason()

	buffered := geom.Buffer(0, bufferQuadSegs)
	if buffered == nil {
		return nil, false, fmt.Errorf("バッファ処理に失敗: %s", reason)
	}
	defer buffered.Destroy()

	if buffered.IsEmpty() {
		return nil, true, nil
	}

	parsed, err := geojson.UnmarshalGeometry([]byte(buffered.ToGeoJSON(-1)))
	if err != nil {
		return nil, false, fmt.Errorf("修復結果の解析に失敗: %w", err)
	}

	repaired := parsed.Geometry()
	switch repaired.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return repaired, true, nil
	}
	return nil, false, fmt.Errorf("修復結果が面ではありません: %s (%s)", repaired.GeoJSONType(), reason)
}
