package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/model"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const sampleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>doc</name>
    <Placemark>
      <name>Office</name>
      <description>HQ</description>
      <ExtendedData>
        <Data name="district"><value>Bangalore Urban</value></Data>
      </ExtendedData>
      <Point><coordinates>77.5946,12.9716,0</coordinates></Point>
    </Placemark>
    <Folder>
      <name>roads</name>
      <Placemark>
        <LineString><coordinates>77.1,12.1 77.2,12.2</coordinates></LineString>
      </Placemark>
      <Folder>
        <Placemark>
          <name>Park</name>
          <Polygon>
            <outerBoundaryIs><LinearRing><coordinates>
              77.0,12.0 77.1,12.0 77.1,12.1 77.0,12.0
            </coordinates></LinearRing></outerBoundaryIs>
          </Polygon>
        </Placemark>
        <Placemark><name>no geometry</name></Placemark>
      </Folder>
    </Folder>
  </Document>
</kml>`

func TestParseGeoJSON(t *testing.T) {
	p := NewParser("")

	t.Run("単一地物のPoint", func(t *testing.T) {
		data := []byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"name":"Station1"},"geometry":{"type":"Point","coordinates":[77.5946,12.9716]}}
		]}`)
		features, fileType, err := p.Parse(data, "stations.geojson")
		require.NoError(t, err)
		assert.Equal(t, model.FileTypeGeoJSON, fileType)
		require.Len(t, features, 1)
		assert.Equal(t, "Station1", features[0].Name)
		assert.Equal(t, orb.Point{77.5946, 12.9716}, features[0].Geometry)
		assert.Equal(t, "Station1", features[0].Properties["name"])
	})

	t.Run("名前がない場合はstem_index", func(t *testing.T) {
		data := []byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}},
			{"type":"Feature","properties":{"v":1},"geometry":null},
			{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]}}
		]}`)
		features, _, err := p.Parse(data, "roads.json")
		require.NoError(t, err)
		require.Len(t, features, 2)
		assert.Equal(t, "roads_0", features[0].Name)
		assert.Equal(t, "roads_2", features[1].Name)
	})

	t.Run("単一Featureとジオメトリ単体はファイル名", func(t *testing.T) {
		features, _, err := p.Parse([]byte(`{"type":"Feature","properties":{"a":1},"geometry":{"type":"Point","coordinates":[1,2]}}`), "one.geojson")
		require.NoError(t, err)
		assert.Equal(t, "one", features[0].Name)

		features, _, err = p.Parse([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`), "shape.geojson")
		require.NoError(t, err)
		assert.Equal(t, "shape", features[0].Name)
		assert.IsType(t, orb.Polygon{}, features[0].Geometry)
	})

	t.Run("不正なJSONはParseError", func(t *testing.T) {
		_, _, err := p.Parse([]byte(`{"type":`), "bad.geojson")
		assert.True(t, errors.Is(err, model.ErrParse))
	})

	t.Run("ジオメトリがない場合はParseError", func(t *testing.T) {
		_, _, err := p.Parse([]byte(`{"type":"FeatureCollection","features":[]}`), "empty.geojson")
		assert.True(t, errors.Is(err, model.ErrParse))
	})
}

func TestParseDispatch(t *testing.T) {
	p := NewParser("")

	t.Run("未対応の拡張子はUnsupportedFormat", func(t *testing.T) {
		_, fileType, err := p.Parse([]byte("hello"), "notes.txt")
		assert.True(t, errors.Is(err, model.ErrUnsupportedFormat))
		assert.Equal(t, model.FileTypeUnknown, fileType)
	})

	t.Run("単体のshpはParseError", func(t *testing.T) {
		_, _, err := p.Parse([]byte{0, 0, 39, 10}, "parcels.shp")
		assert.True(t, errors.Is(err, model.ErrParse))
		assert.Contains(t, err.Error(), "ZIP")
	})

	t.Run("KMLを含むZIPはKMZとして読む", func(t *testing.T) {
		data := zipBytes(t, map[string]string{"layers/doc.kml": sampleKML})
		assert.Equal(t, model.FileTypeKMZ, p.DetectFileType(data, "export.zip"))

		features, fileType, err := p.Parse(data, "export.zip")
		require.NoError(t, err)
		assert.Equal(t, model.FileTypeKMZ, fileType)
		assert.Len(t, features, 3)
	})

	t.Run("SHPを含むZIPはShapefile", func(t *testing.T) {
		data := zipBytes(t, map[string]string{"a.shp": "", "a.shx": "", "a.dbf": "", "a.kml": ""})
		assert.Equal(t, model.FileTypeShapefile, p.DetectFileType(data, "a.zip"))
	})

	t.Run("中身が判定できないZIPはUnsupportedFormat", func(t *testing.T) {
		data := zipBytes(t, map[string]string{"readme.txt": "hi"})
		assert.Equal(t, model.FileTypeUnknown, p.DetectFileType(data, "misc.zip"))
		_, _, err := p.Parse(data, "misc.zip")
		assert.True(t, errors.Is(err, model.ErrUnsupportedFormat))
	})

	t.Run("拡張子は大文字小文字を区別しない", func(t *testing.T) {
		assert.Equal(t, model.FileTypeGeoJSON, p.DetectFileType(nil, "A.GEOJSON"))
		assert.Equal(t, model.FileTypeCSV, p.DetectFileType(nil, "points.CSV"))
	})

	t.Run("空ファイルはParseError", func(t *testing.T) {
		_, _, err := p.Parse(nil, "x.geojson")
		assert.True(t, errors.Is(err, model.ErrParse))
	})
}

func TestParseKML(t *testing.T) {
	p := NewParser("")

	features, fileType, err := p.Parse([]byte(sampleKML), "karnataka_sites.kml")
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeKML, fileType)
	require.Len(t, features, 3)

	t.Run("入れ子のフォルダを辿る", func(t *testing.T) {
		assert.Equal(t, "Office", features[0].Name)
		assert.Equal(t, "karnataka_sites_1", features[1].Name)
		assert.Equal(t, "Park", features[2].Name)
	})

	t.Run("ExtendedDataを属性に読み込む", func(t *testing.T) {
		assert.Equal(t, "HQ", features[0].Properties["description"])
		assert.Equal(t, "Bangalore Urban", features[0].Properties["district"])
		assert.Equal(t, []string{"name", "description", "district"}, features[0].OrderedKeys())
	})

	t.Run("ジオメトリ型", func(t *testing.T) {
		assert.Equal(t, orb.Point{77.5946, 12.9716}, features[0].Geometry)
		assert.Equal(t, orb.LineString{{77.1, 12.1}, {77.2, 12.2}}, features[1].Geometry)
		assert.IsType(t, orb.Polygon{}, features[2].Geometry)
	})

	t.Run("MultiGeometry", func(t *testing.T) {
		data := []byte(`<kml><Placemark><name>m</name><MultiGeometry>
			<Point><coordinates>1,2</coordinates></Point>
			<Point><coordinates>3,4</coordinates></Point>
		</MultiGeometry></Placemark></kml>`)
		features, _, err := p.Parse(data, "m.kml")
		require.NoError(t, err)
		assert.Equal(t, orb.MultiPoint{{1, 2}, {3, 4}}, features[0].Geometry)
	})

	t.Run("KMZにKMLがない場合はParseError", func(t *testing.T) {
		_, _, err := p.Parse(zipBytes(t, map[string]string{"a.txt": "x"}), "a.kmz")
		assert.True(t, errors.Is(err, model.ErrParse))
	})
}

func TestParseGPX(t *testing.T) {
	p := NewParser("")
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="12.97" lon="77.59"><ele>920.5</ele><name>Summit</name><desc>top</desc></wpt>
  <wpt lat="13.0" lon="77.6"></wpt>
  <rte><name>Loop</name><rtept lat="12.1" lon="77.1"/><rtept lat="12.2" lon="77.2"/></rte>
  <trk>
    <trkseg><trkpt lat="12.0" lon="77.0"/><trkpt lat="12.5" lon="77.5"/></trkseg>
    <trkseg><trkpt lat="12.0" lon="77.0"/></trkseg>
  </trk>
</gpx>`)

	features, fileType, err := p.Parse(data, "walk.gpx")
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeGPX, fileType)
	require.Len(t, features, 4)

	t.Run("ウェイポイント", func(t *testing.T) {
		assert.Equal(t, "Summit", features[0].Name)
		assert.Equal(t, orb.Point{77.59, 12.97}, features[0].Geometry)
		assert.Equal(t, 920.5, features[0].Properties["elevation"])
		assert.Equal(t, "top", features[0].Properties["description"])
		assert.Equal(t, "walk_waypoint_1", features[1].Name)
	})

	t.Run("トラックのセグメント", func(t *testing.T) {
		assert.Equal(t, "walk_track_0_segment_0", features[2].Name)
		assert.Equal(t, orb.LineString{{77.0, 12.0}, {77.5, 12.5}}, features[2].Geometry)
		assert.Equal(t, 0, features[2].Properties["segment_index"])
		assert.Nil(t, features[2].Properties["track_name"])
	})

	t.Run("ルート", func(t *testing.T) {
		assert.Equal(t, "Loop", features[3].Name)
		assert.Equal(t, "Loop", features[3].Properties["route_name"])
	})
}

func TestParseCSV(t *testing.T) {
	p := NewParser("")

	t.Run("緯度経度列", func(t *testing.T) {
		features, fileType, err := p.Parse([]byte("lat,lon,name\n12.97,77.59,\"A\"\n"), "points.csv")
		require.NoError(t, err)
		assert.Equal(t, model.FileTypeCSV, fileType)
		require.Len(t, features, 1)
		assert.Equal(t, "A", features[0].Name)
		assert.Equal(t, orb.Point{77.59, 12.97}, features[0].Geometry)
		assert.Equal(t, map[string]interface{}{"name": "A"}, features[0].Properties)
	})

	t.Run("WKT列を優先する", func(t *testing.T) {
		data := []byte("id,WKT,Latitude,Longitude\n1,\"LINESTRING (77 12, 78 13)\",0,0\n2,not wkt,0,0\n")
		features, _, err := p.Parse(data, "lines.csv")
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, orb.LineString{{77, 12}, {78, 13}}, features[0].Geometry)
		assert.Equal(t, "lines_0", features[0].Name)
		assert.Equal(t, int64(1), features[0].Properties["id"])
		assert.Equal(t, []string{"id", "Latitude", "Longitude"}, features[0].OrderedKeys())
	})

	t.Run("不正な行はスキップ", func(t *testing.T) {
		data := []byte("Y,X,label,score\n,77,a,1\n12,abc,b,2\n13,78,c,\n")
		features, _, err := p.Parse(data, "mixed.csv")
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, "mixed_2", features[0].Name)
		assert.Nil(t, features[0].Properties["score"])
	})

	t.Run("有効な行がない場合はParseError", func(t *testing.T) {
		_, _, err := p.Parse([]byte("lat,lon\nx,y\n"), "none.csv")
		assert.True(t, errors.Is(err, model.ErrParse))
	})

	t.Run("座標列がない場合はParseError", func(t *testing.T) {
		_, _, err := p.Parse([]byte("a,b\n1,2\n"), "plain.csv")
		assert.True(t, errors.Is(err, model.ErrParse))
	})
}
