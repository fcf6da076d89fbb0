package converter

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"
)

const gpxCreator = "GISData-App"

// encodeGPX Point はウェイポイント、(Multi)LineString は1セグメントのトラックとして出力する
// MultiLineString は全ての線の頂点を1つのセグメントに連結する。その他のジオメトリは出力しない
func encodeGPX(_ *Converter, t *table, _ string) ([]byte, error) {
	doc := &gpx.GPX{Version: "1.1", Creator: gpxCreator}

	for i, r := range t.rows {
		name := r.name()

		switch g := r.geometry.(type) {
		case orb.Point:
			if name == "" {
				name = fmt.Sprintf("Waypoint_%d", i)
			}
			wpt := gpx.GPXPoint{
				Point: gpx.Point{Latitude: g.Lat(), Longitude: g.Lon()},
				Name:  name,
			}
			if ele, ok := numericValue(r.values["elevation"]); ok {
				wpt.Elevation = *gpx.NewNullableFloat64(ele)
			}
			doc.Waypoints = append(doc.Waypoints, wpt)

		case orb.LineString, orb.MultiLineString:
			if name == "" {
				name = fmt.Sprintf("Track_%d", i)
			}
			var points []gpx.GPXPoint
			for _, ls := range lineParts(g) {
				for _, p := range ls {
					points = append(points, gpx.GPXPoint{Point: gpx.Point{Latitude: p.Lat(), Longitude: p.Lon()}})
				}
			}
			doc.Tracks = append(doc.Tracks, gpx.GPXTrack{
				Name:     name,
				Segments: []gpx.GPXTrackSegment{{Points: points}},
			})
		}
	}

	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("GPXのエンコードに失敗: %w", err)
	}
	return out, nil
}

func lineParts(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	}
	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, isFinite(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
