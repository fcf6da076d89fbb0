package coordinate

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/model"
)

func TestEnvelope(t *testing.T) {
	t.Run("ポリゴンの外接矩形", func(t *testing.T) {
		poly := orb.Polygon{{{77.5, 12.9}, {77.7, 12.9}, {77.7, 13.1}, {77.5, 13.1}, {77.5, 12.9}}}
		b, ok := Envelope(poly)
		require.True(t, ok)
		assert.Equal(t, orb.Point{77.5, 12.9}, b.Min)
		assert.Equal(t, orb.Point{77.7, 13.1}, b.Max)
	})

	t.Run("入れ子のマルチポリゴン", func(t *testing.T) {
		mp := orb.MultiPolygon{
			{{{1, 1}, {2, 1}, {2, 2}, {1, 1}}},
			{{{-5, -3}, {0, -3}, {0, 0}, {-5, -3}}},
		}
		b, ok := Envelope(mp)
		require.True(t, ok)
		assert.Equal(t, model.BoundingBox{-5, -3, 2, 2}, model.NewBoundingBox(b))
	})

	t.Run("座標がない場合", func(t *testing.T) {
		_, ok := Envelope(orb.LineString{})
		assert.False(t, ok)
	})

	t.Run("途中で打ち切れる", func(t *testing.T) {
		ls := orb.LineString{{1, 1}, {2, 2}, {3, 3}}
		count := 0
		for range Coordinates(ls) {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})
}

func TestValidate(t *testing.T) {
	t.Run("WGS84範囲内", func(t *testing.T) {
		bb, ok := Validate(orb.Point{77.5946, 12.9716})
		assert.True(t, ok)
		assert.Equal(t, model.BoundingBox{77.5946, 12.9716, 77.5946, 12.9716}, bb)
	})

	t.Run("境界値は範囲内", func(t *testing.T) {
		_, ok := Validate(orb.LineString{{-180, -90}, {180, 90}})
		assert.True(t, ok)
	})

	t.Run("範囲外", func(t *testing.T) {
		_, ok := Validate(orb.Point{776000, 1350000})
		assert.False(t, ok)
	})

	t.Run("冪等性", func(t *testing.T) {
		g := orb.LineString{{77.1, 12.1}, {77.2, 12.3}}
		before := orb.Clone(g)
		bb1, ok1 := Validate(g)
		bb2, ok2 := Validate(g)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, bb1, bb2)
		assert.Equal(t, before, g)
	})
}

func TestDetector(t *testing.T) {
	d := NewDetector(nil)

	cases := []struct {
		name  string
		point orb.Point
		epsg  int
	}{
		{"狭い範囲は43N", orb.Point{776000, 1350000}, 32643},
		{"東距833000未満は43N", orb.Point{500000, 2000000}, 32643},
		{"それ以外は44N", orb.Point{850000, 2500000}, 32644},
		{"狭い範囲の外側で東距が大きい", orb.Point{840000, 1100000}, 32644},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			crs, err := d.Detect(orb.Bound{Min: tc.point, Max: tc.point})
			require.NoError(t, err)
			assert.Equal(t, tc.epsg, crs.EPSG)
			assert.True(t, crs.North)
		})
	}

	t.Run("外側範囲外はUnknownProjection", func(t *testing.T) {
		_, err := d.Detect(orb.Bound{Min: orb.Point{1000, 1000}, Max: orb.Point{2000, 2000}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrUnknownProjection))
		assert.Contains(t, err.Error(), "Bounds")
	})

	t.Run("YAMLの判定表", func(t *testing.T) {
		table, err := ParseRuleTable([]byte(`
outer:
  easting: {min: 100000, max: 900000}
  northing: {min: 0, max: 10000000}
rules:
  - epsg: 32755
`))
		require.NoError(t, err)
		crs, err := NewDetector(table).Detect(orb.Bound{Min: orb.Point{300000, 6000000}, Max: orb.Point{300000, 6000000}})
		require.NoError(t, err)
		assert.Equal(t, 55, crs.Zone)
		assert.False(t, crs.North)
	})

	t.Run("UTM以外のEPSGはエラー", func(t *testing.T) {
		_, err := ParseRuleTable([]byte("rules:\n  - epsg: 3857\n"))
		assert.Error(t, err)
	})
}

type fakeRepairer struct {
	calls int
}

func (f *fakeRepairer) Repair(g orb.Geometry) (orb.Geometry, bool, error) {
	f.calls++
	return g, true, nil
}

func TestPipelineNormalize(t *testing.T) {
	t.Run("有効なジオメトリはそのまま", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		g := orb.Point{77.5946, 12.9716}
		res, err := p.Normalize(g)
		require.NoError(t, err)
		assert.Equal(t, g, res.Geometry)
		assert.Nil(t, res.DetectedCRS)
	})

	t.Run("UTM座標をWGS84に変換（バンガロール周辺）", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		res, err := p.Normalize(orb.Point{776000, 1350000})
		require.NoError(t, err)
		require.NotNil(t, res.DetectedCRS)
		assert.Equal(t, "EPSG:32643", res.DetectedCRS.String())

		pt, ok := res.Geometry.(orb.Point)
		require.True(t, ok)
		assert.GreaterOrEqual(t, pt.Lon(), 74.0)
		assert.LessOrEqual(t, pt.Lon(), 78.0)
		assert.GreaterOrEqual(t, pt.Lat(), 12.0)
		assert.LessOrEqual(t, pt.Lat(), 14.0)
	})

	t.Run("入力ジオメトリは変更されない", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		ls := orb.LineString{{776000, 1350000}, {777000, 1351000}}
		_, err := p.Normalize(ls)
		require.NoError(t, err)
		assert.Equal(t, orb.LineString{{776000, 1350000}, {777000, 1351000}}, ls)
	})

	t.Run("変換機能なしはMissingCapability", func(t *testing.T) {
		p := NewPipeline(nil, nil, nil)
		_, err := p.Normalize(orb.Point{776000, 1350000})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrMissingCapability))
		assert.Contains(t, err.Error(), "EPSG:32643")
	})

	t.Run("判定不能はUnknownProjection", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		_, err := p.Normalize(orb.Point{5000, 5000})
		assert.True(t, errors.Is(err, model.ErrUnknownProjection))
	})

	t.Run("面のみ修復対象", func(t *testing.T) {
		r := &fakeRepairer{}
		p := NewPipeline(nil, NewUTMTransformer(), r)

		_, err := p.Normalize(orb.Point{77, 12})
		require.NoError(t, err)
		assert.Equal(t, 0, r.calls)

		res, err := p.Normalize(orb.Polygon{{{77, 12}, {78, 12}, {78, 13}, {77, 12}}})
		require.NoError(t, err)
		assert.Equal(t, 1, r.calls)
		assert.True(t, res.Repaired)
	})

	t.Run("空ジオメトリはParseError", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		_, err := p.Normalize(orb.MultiPoint{})
		assert.True(t, errors.Is(err, model.ErrParse))
	})
}

func TestPipelineBoundsInvariant(t *testing.T) {
	p := NewPipeline(nil, NewUTMTransformer(), nil)
	rng := rand.New(rand.NewSource(43))

	for i := 0; i < 500; i++ {
		pt := orb.Point{
			150000 + rng.Float64()*800000,
			rng.Float64() * 10000000,
		}
		res, err := p.Normalize(pt)
		if err != nil {
			assert.True(t,
				errors.Is(err, model.ErrUnknownProjection) || errors.Is(err, model.ErrTransformFailed),
				"unexpected error for %v: %v", pt, err)
			continue
		}
		_, ok := Validate(res.Geometry)
		assert.True(t, ok, "out of bounds for %v", pt)
	}
}

func TestNormalizeFeatures(t *testing.T) {
	features := []model.CanonicalFeature{
		{Name: "ok", Geometry: orb.Point{77.59, 12.97}},
		{Name: "bad", Geometry: orb.Point{1000, 1000}},
		{Name: "utm", Geometry: orb.Point{776000, 1350000}},
	}

	t.Run("Continueは失敗した地物をスキップ", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		survivors, decisions, err := p.NormalizeFeatures(features, model.ContinueOnFeatureError)
		require.NoError(t, err)
		require.Len(t, survivors, 2)
		assert.Equal(t, "ok", survivors[0].Name)
		assert.Equal(t, "utm", survivors[1].Name)

		require.Len(t, decisions, 3)
		assert.True(t, decisions[1].Skipped)
		assert.NotNil(t, decisions[1].OriginalEnvelope)
		assert.Equal(t, "EPSG:32643", decisions[2].DetectedCRS)
	})

	t.Run("Abortは最初の失敗で中断", func(t *testing.T) {
		p := NewPipeline(nil, NewUTMTransformer(), nil)
		survivors, decisions, err := p.NormalizeFeatures(features, model.AbortOnFirstError)
		require.Error(t, err)
		assert.Nil(t, survivors)
		assert.Len(t, decisions, 2)

		var fe *FeatureError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, 1, fe.Index)
		assert.True(t, errors.Is(err, model.ErrUnknownProjection))
	})
}
