package parser

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/tkrajina/gpxgo/gpx"

	"GISData-App/internal/domain/model"
)

type gpxParser struct{}

// NewGPXParser GPX（ウェイポイント・トラック・ルート）のパーサー
func NewGPXParser() FormatParser {
	return &gpxParser{}
}

func (p *gpxParser) FileType() model.FileType {
	return model.FileTypeGPX
}

func (p *gpxParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, model.NewParseError("invalid GPX document", err)
	}

	var features []model.CanonicalFeature

	// ウェイポイント → Point
	for idx, wpt := range doc.Waypoints {
		name := wpt.Name
		if name == "" {
			name = fmt.Sprintf("%s_waypoint_%d", stem, idx)
		}
		props := map[string]interface{}{"name": name}
		keyOrder := []string{"name"}
		if wpt.Elevation.NotNull() {
			props["elevation"] = wpt.Elevation.Value()
			keyOrder = append(keyOrder, "elevation")
		}
		if !wpt.Timestamp.IsZero() {
			props["time"] = wpt.Timestamp.UTC().Format(time.RFC3339)
			keyOrder = append(keyOrder, "time")
		}
		if wpt.Description != "" {
			props["description"] = wpt.Description
			keyOrder = append(keyOrder, "description")
		}

		features = append(features, model.CanonicalFeature{
			Name:       name,
			Geometry:   orb.Point{wpt.Longitude, wpt.Latitude},
			Properties: props,
			KeyOrder:   keyOrder,
		})
	}

	// トラックのセグメント → LineString
	for trackIdx, track := range doc.Tracks {
		for segIdx, seg := range track.Segments {
			if len(seg.Points) < 2 {
				log.Warn().Int("track", trackIdx).Int("segment", segIdx).Msg("⚠️ 点が2つ未満のセグメントをスキップしました")
				continue
			}
			name := track.Name
			if name == "" {
				name = fmt.Sprintf("%s_track_%d_segment_%d", stem, trackIdx, segIdx)
			}
			var trackName interface{}
			if track.Name != "" {
				trackName = track.Name
			}

			features = append(features, model.CanonicalFeature{
				Name:     name,
				Geometry: lineFromGPXPoints(seg.Points),
				Properties: map[string]interface{}{
					"name":          name,
					"track_name":    trackName,
					"segment_index": segIdx,
				},
				KeyOrder: []string{"name", "track_name", "segment_index"},
			})
		}
	}

	// ルート → LineString
	for routeIdx, route := range doc.Routes {
		if len(route.Points) < 2 {
			log.Warn().Int("route", routeIdx).Msg("⚠️ 点が2つ未満のルートをスキップしました")
			continue
		}
		name := route.Name
		if name == "" {
			name = fmt.Sprintf("%s_route_%d", stem, routeIdx)
		}
		props := map[string]interface{}{"name": name}
		keyOrder := []string{"name"}
		if route.Name != "" {
			props["route_name"] = route.Name
			keyOrder = append(keyOrder, "route_name")
		}
		if route.Description != "" {
			props["description"] = route.Description
			keyOrder = append(keyOrder, "description")
		}

		features = append(features, model.CanonicalFeature{
			Name:       name,
			Geometry:   lineFromGPXPoints(route.Points),
			Properties: props,
			KeyOrder:   keyOrder,
		})
	}

	if len(features) == 0 {
		return nil, model.NewParseError("no features found in GPX file", nil)
	}
	return features, nil
}

func lineFromGPXPoints(points []gpx.GPXPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, pt := range points {
		ls = append(ls, orb.Point{pt.Longitude, pt.Latitude})
	}
	return ls
}
