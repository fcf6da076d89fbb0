package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/converter"
	"GISData-App/internal/domain/model"
)

func newExportFixture(t *testing.T) (*memoryStore, *fakeMetrics, ExportUseCase) {
	t.Helper()
	store, files, features := newMemoryStore()
	store.addFile(model.FileRecord{ID: "file-a", Filename: "roads.geojson", State: "Karnataka", District: "Mandya"},
		model.Feature{ID: "a1", Name: "road 1", Geometry: orb.LineString{{76.9, 12.5}, {77.0, 12.6}}, Properties: map[string]interface{}{"lanes": 2.0}},
		model.Feature{ID: "a2", Name: "road 2", Geometry: orb.LineString{{76.8, 12.4}, {76.9, 12.5}}, Properties: map[string]interface{}{"lanes": 4.0}},
	)
	store.addFile(model.FileRecord{ID: "file-b", Filename: "schools.kml", State: "Karnataka", District: "Mysuru"},
		model.Feature{ID: "b1", Name: "school", Geometry: orb.Point{76.6, 12.3}, Properties: map[string]interface{}{"students": 300.0}},
	)
	store.addFile(model.FileRecord{ID: "file-c", Filename: "wells.csv", State: "Kerala", District: "Idukki"},
		model.Feature{ID: "c1", Name: "well", Geometry: orb.Point{77.1, 9.8}, Properties: map[string]interface{}{}},
	)

	metrics := newFakeMetrics()
	return store, metrics, NewExportUseCase(files, features, converter.NewConverter(t.TempDir(), false), metrics)
}

func featureCount(t *testing.T, content []byte) int {
	t.Helper()
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(content, &fc))
	return len(fc.Features)
}

func zipEntries(t *testing.T, content []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestExportUseCaseDownloadFile(t *testing.T) {
	ctx := context.Background()
	_, metrics, uc := newExportFixture(t)

	t.Run("1ファイルをGeoJSONで出力する", func(t *testing.T) {
		res, err := uc.DownloadFile(ctx, "file-a", "geojson")
		require.NoError(t, err)
		assert.Equal(t, "roads.geojson", res.Filename())
		assert.Equal(t, "application/geo+json", res.MimeType)
		assert.Equal(t, 2, featureCount(t, res.Content))
		assert.Equal(t, 1, metrics.conversions["geojson/success"])
	})

	t.Run("フォーマット未指定はGeoJSON", func(t *testing.T) {
		res, err := uc.DownloadFile(ctx, "file-b", "")
		require.NoError(t, err)
		assert.Equal(t, ".geojson", res.Extension)
	})

	t.Run("存在しないファイルはNotFound", func(t *testing.T) {
		_, err := uc.DownloadFile(ctx, "missing", "kml")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("未対応のフォーマットはUnsupportedFormat", func(t *testing.T) {
		_, err := uc.DownloadFile(ctx, "file-a", "dwg")
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrUnsupportedFormat))
		assert.Contains(t, err.Error(), "dwg")
	})
}

func TestExportUseCaseDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("州で選んだ複数ファイルを結合する", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		res, err := uc.Download(ctx, &model.ExportSelection{State: "karnataka", Format: "geojson", Merge: true})
		require.NoError(t, err)
		assert.Equal(t, "merged_2_files.geojson", res.Filename())
		assert.Equal(t, 3, featureCount(t, res.Content))
	})

	t.Run("結合しない場合はファイルごとにZIPにまとめる", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		res, err := uc.Download(ctx, &model.ExportSelection{FileIDs: []string{"file-a", "file-c"}, Format: "kml"})
		require.NoError(t, err)
		assert.Equal(t, "application/zip", res.MimeType)
		assert.Equal(t, "export_2_files.zip", res.Filename())
		assert.Equal(t, []string{"roads.kml", "wells.kml"}, zipEntries(t, res.Content))
	})

	t.Run("地物IDで選んだ場合は元ファイルごとにまとめる", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		res, err := uc.Download(ctx, &model.ExportSelection{FeatureIDs: []string{"a2", "b1"}, Format: "csv"})
		require.NoError(t, err)
		assert.Equal(t, []string{"roads.csv", "schools.csv"}, zipEntries(t, res.Content))
	})

	t.Run("1ファイルだけならZIPにしない", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		res, err := uc.Download(ctx, &model.ExportSelection{District: "idukki", Format: "gpx"})
		require.NoError(t, err)
		assert.Equal(t, "wells.gpx", res.Filename())
	})

	t.Run("同名ファイルのエントリは番号を付ける", func(t *testing.T) {
		store, _, uc := newExportFixture(t)
		store.addFile(model.FileRecord{ID: "file-d", Filename: "roads.geojson", State: "Goa"},
			model.Feature{Name: "coast road", Geometry: orb.LineString{{73.8, 15.4}, {73.9, 15.5}}})

		res, err := uc.Download(ctx, &model.ExportSelection{FileIDs: []string{"file-a", "file-d"}, Format: "geojson"})
		require.NoError(t, err)
		assert.Equal(t, []string{"roads.geojson", "roads_1.geojson"}, zipEntries(t, res.Content))
	})

	t.Run("番号付きの名前と元のファイル名が衝突しない", func(t *testing.T) {
		store, _, uc := newExportFixture(t)
		store.addFile(model.FileRecord{ID: "file-d", Filename: "roads.geojson", State: "Goa"},
			model.Feature{Name: "coast road", Geometry: orb.LineString{{73.8, 15.4}, {73.9, 15.5}}})
		store.addFile(model.FileRecord{ID: "file-e", Filename: "roads_1.geojson", State: "Goa"},
			model.Feature{Name: "ghat road", Geometry: orb.LineString{{74.0, 15.2}, {74.1, 15.3}}})

		res, err := uc.Download(ctx, &model.ExportSelection{FileIDs: []string{"file-a", "file-d", "file-e"}, Format: "geojson"})
		require.NoError(t, err)

		entries := zipEntries(t, res.Content)
		require.Len(t, entries, 3)
		seen := map[string]bool{}
		for _, e := range entries {
			assert.False(t, seen[e], "duplicate entry %s", e)
			seen[e] = true
		}
		assert.Contains(t, entries, "roads.geojson")
	})

	t.Run("条件がない場合はValidation", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		_, err := uc.Download(ctx, &model.ExportSelection{Format: "geojson"})
		assert.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("一致する地物がない場合はNotFound", func(t *testing.T) {
		_, _, uc := newExportFixture(t)
		_, err := uc.Download(ctx, &model.ExportSelection{State: "Punjab", Format: "geojson"})
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestUniqueEntryName(t *testing.T) {
	geojson := func(base string) *model.ExportResult {
		return &model.ExportResult{BaseName: base, Extension: ".geojson"}
	}

	t.Run("空いている番号まで進める", func(t *testing.T) {
		taken := map[string]bool{"roads.geojson": true, "roads_1.geojson": true}
		assert.Equal(t, "roads_2.geojson", uniqueEntryName(geojson("roads"), taken))
	})

	t.Run("未使用の名前はそのまま", func(t *testing.T) {
		assert.Equal(t, "wells.geojson", uniqueEntryName(geojson("wells"), map[string]bool{}))
	})
}
