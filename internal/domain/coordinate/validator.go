package coordinate

import (
	"iter"

	"github.com/paulmach/orb"

	"GISData-App/internal/domain/model"
)

// WGS84 の座標範囲
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

// Coordinates ジオメトリの全頂点を順に返すイテレータ
func Coordinates(g orb.Geometry) iter.Seq[orb.Point] {
	return func(yield func(orb.Point) bool) {
		walk(g, yield)
	}
}

func walk(g orb.Geometry, yield func(orb.Point) bool) bool {
	switch v := g.(type) {
	case orb.Point:
		return yield(v)
	case orb.MultiPoint:
		return yieldAll(v, yield)
	case orb.LineString:
		return yieldAll(v, yield)
	case orb.Ring:
		return yieldAll(v, yield)
	case orb.Polygon:
		for _, r := range v {
			if !yieldAll(r, yield) {
				return false
			}
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if !yieldAll(ls, yield) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if !walk(p, yield) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range v {
			if !walk(c, yield) {
				return false
			}
		}
	case orb.Bound:
		return yield(v.Min) && yield(v.Max)
	}
	return true
}

func yieldAll[S ~[]orb.Point](points S, yield func(orb.Point) bool) bool {
	for _, p := range points {
		if !yield(p) {
			return false
		}
	}
	return true
}

// Fold 座標列を左から畳み込む
func Fold[T any](seq iter.Seq[orb.Point], init T, f func(T, orb.Point) T) T {
	acc := init
	for p := range seq {
		acc = f(acc, p)
	}
	return acc
}

// envelopeAcc 外接矩形計算の累積値
type envelopeAcc struct {
	bound orb.Bound
	count int
}

// Envelope ジオメトリの外接矩形を計算する。座標が1つもない場合は false を返す
func Envelope(g orb.Geometry) (orb.Bound, bool) {
	acc := Fold(Coordinates(g), envelopeAcc{}, func(a envelopeAcc, p orb.Point) envelopeAcc {
		if a.count == 0 {
			return envelopeAcc{bound: orb.Bound{Min: p, Max: p}, count: 1}
		}
		return envelopeAcc{bound: a.bound.Extend(p), count: a.count + 1}
	})
	return acc.bound, acc.count > 0
}

// WithinWGS84 外接矩形が経度[-180,180]・緯度[-90,90]に収まるか
func WithinWGS84(b orb.Bound) bool {
	return b.Min.Lon() >= MinLongitude && b.Max.Lon() <= MaxLongitude &&
		b.Min.Lat() >= MinLatitude && b.Max.Lat() <= MaxLatitude
}

// Validate ジオメトリを検証し、外接矩形とWGS84範囲内かどうかを返す
// 検証はジオメトリを変更しないため何度呼んでも同じ結果になる
func Validate(g orb.Geometry) (model.BoundingBox, bool) {
	b, ok := Envelope(g)
	if !ok {
		return model.BoundingBox{}, false
	}
	return model.NewBoundingBox(b), WithinWGS84(b)
}
