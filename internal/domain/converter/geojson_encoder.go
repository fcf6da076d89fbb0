package converter

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// encodeGeoJSON 表をそのまま FeatureCollection として出力する
func encodeGeoJSON(_ *Converter, t *table, _ string) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, r := range t.rows {
		if r.geometry == nil {
			return nil, fmt.Errorf("行%d にジオメトリがありません", i)
		}
		f := geojson.NewFeature(r.geometry)
		f.ID = i
		f.Properties = geojson.Properties(r.values)
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
