package coordinate

import (
	"fmt"

	UTM "github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"GISData-App/internal/domain/model"
)

// Transformer 投影座標系のジオメトリをWGS84へ変換する
type Transformer interface {
	ToWGS84(g orb.Geometry, from CRS) (orb.Geometry, error)
}

// utmTransformer UTM(WGS84) → 経度緯度 の逆投影
type utmTransformer struct{}

// NewUTMTransformer UTM の Transformer を作成
func NewUTMTransformer() Transformer {
	return &utmTransformer{}
}

// ToWGS84 全頂点を逆投影した新しいジオメトリを返す（入力は変更しない）
func (t *utmTransformer) ToWGS84(g orb.Geometry, from CRS) (orb.Geometry, error) {
	if from.Zone < 1 || from.Zone > 60 {
		return nil, &model.GeoError{
			Kind:    model.ErrMissingCapability,
			Message: "no transformation available for this CRS",
			CRS:     from.String(),
		}
	}

	var firstErr error
	projected := project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		if firstErr != nil {
			return p
		}
		lat, lon, err := UTM.ToLatLon(p.X(), p.Y(), from.Zone, "", from.North)
		if err != nil {
			firstErr = fmt.Errorf("座標 (%.3f, %.3f) の変換に失敗: %w", p.X(), p.Y(), err)
			return p
		}
		return orb.Point{lon, lat}
	})
	if firstErr != nil {
		return nil, &model.GeoError{
			Kind:    model.ErrTransformFailed,
			Message: "could not reproject coordinates to WGS84",
			CRS:     from.String(),
			Err:     firstErr,
		}
	}

	return projected, nil
}
