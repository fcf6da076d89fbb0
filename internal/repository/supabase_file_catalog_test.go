package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/model"
)

func TestFileRowToFileRecord(t *testing.T) {
	data := `[
		{"id":"a","filename":"x.geojson","original_filename":"x.geojson","file_type":"geojson","state":"Karnataka","district":null,"storage_path":null,"total_features":3,"created_at":"2024-05-01T10:00:00.123456+00:00","updated_at":"2024-05-01T10:00:00+00:00"},
		{"id":"b","filename":"y.kml","original_filename":"y.kml","file_type":"kml","state":"Kerala","district":"Idukki","storage_path":"gs://bucket/y.kml","total_features":1,"created_at":"2024-05-02T08:30:00.5","updated_at":"2024-05-02T08:30:00.5"}
	]`
	var rows []fileRow
	require.NoError(t, json.Unmarshal([]byte(data), &rows))

	t.Run("nullは空文字列になる", func(t *testing.T) {
		f, err := rows[0].toFileRecord()
		require.NoError(t, err)
		assert.Equal(t, model.FileTypeGeoJSON, f.FileType)
		assert.Equal(t, "", f.District)
		assert.Equal(t, 3, f.TotalFeatures)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), f.CreatedAt.UTC())
	})

	t.Run("タイムゾーンなしの時刻も読める", func(t *testing.T) {
		f, err := rows[1].toFileRecord()
		require.NoError(t, err)
		assert.Equal(t, "gs://bucket/y.kml", f.StoragePath)
		assert.Equal(t, 2024, f.CreatedAt.Year())
	})

	t.Run("重複を除いて昇順に並べる", func(t *testing.T) {
		dup := append(rows, rows[0])
		states := distinctSorted(dup, func(r fileRow) *string { return r.State })
		assert.Equal(t, []string{"Karnataka", "Kerala"}, states)

		districts := distinctSorted(dup, func(r fileRow) *string { return r.District })
		assert.Equal(t, []string{"Idukki"}, districts)
	})
}
