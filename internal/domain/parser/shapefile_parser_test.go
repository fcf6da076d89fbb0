package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/model"
)

// shapefileFixture 属性付きのShapefile一式を dir に書き出す
// 1件目は名前・人口・日付・メモあり、面積はNaN。2件目は名前と人口が空
func shapefileFixture(t *testing.T, dir, name string) {
	t.Helper()
	base := filepath.Join(dir, name)

	w, err := shp.Create(base+".shp", shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("name", 20),
		shp.NumberField("pop", 10),
		shp.FloatField("area", 12, 3),
		shp.DateField("surveyed"),
		{Name: [11]byte{'n', 'o', 't', 'e'}, Fieldtype: 'M', Size: 10},
	}))

	w.Write(&shp.Point{X: 76.8958, Y: 12.5223})
	require.NoError(t, w.WriteAttribute(0, 0, "Mandya"))
	require.NoError(t, w.WriteAttribute(0, 1, 1200))
	require.NoError(t, w.WriteAttribute(0, 2, math.NaN()))
	require.NoError(t, w.WriteAttribute(0, 3, "20240315"))
	require.NoError(t, w.WriteAttribute(0, 4, "sugar"))

	w.Write(&shp.Point{X: 76.9, Y: 12.6})
	require.NoError(t, w.WriteAttribute(1, 2, 2.5))
	require.NoError(t, w.WriteAttribute(1, 3, "20231201"))
	w.Close()

	// go-shp v0.1.1 は "{base}dbf" で書き出す
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	require.NoError(t, os.WriteFile(base+".cpg", []byte("UTF-8"), 0o600))
}

func zipDir(t *testing.T, dir string, prefix string) []byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		w, err := zw.Create(prefix + e.Name())
		require.NoError(t, err)
		_, err = w.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseShapefile(t *testing.T) {
	p := NewParser(t.TempDir())

	t.Run("DBFの列を属性として読み込む", func(t *testing.T) {
		dir := t.TempDir()
		shapefileFixture(t, dir, "villages")

		features, fileType, err := p.Parse(zipDir(t, dir, ""), "villages.zip")
		require.NoError(t, err)
		assert.Equal(t, model.FileTypeShapefile, fileType)
		require.Len(t, features, 2)

		first := features[0]
		assert.Equal(t, "Mandya", first.Name)
		assert.Equal(t, orb.Point{76.8958, 12.5223}, first.Geometry)
		assert.Equal(t, "Mandya", first.Properties["name"])
		assert.Equal(t, 1200, first.Properties["pop"])
		assert.Equal(t, "sugar", first.Properties["note"])
		assert.Equal(t, "2024-03-15T00:00:00Z", first.Properties["surveyed"])

		// NaN と空欄は null になる
		assert.Contains(t, first.Properties, "area")
		assert.Nil(t, first.Properties["area"])
		assert.Contains(t, features[1].Properties, "pop")
		assert.Nil(t, features[1].Properties["pop"])
		assert.Equal(t, 2.5, features[1].Properties["area"])
	})

	t.Run("名前が空のレコードはファイル名と連番", func(t *testing.T) {
		dir := t.TempDir()
		shapefileFixture(t, dir, "villages")

		features, _, err := p.Parse(zipDir(t, dir, ""), "villages.zip")
		require.NoError(t, err)
		require.Len(t, features, 2)
		assert.Equal(t, "villages_1", features[1].Name)
	})

	t.Run("サブフォルダ内のShapefileも読み込む", func(t *testing.T) {
		dir := t.TempDir()
		shapefileFixture(t, dir, "VILLAGES")

		features, _, err := p.Parse(zipDir(t, dir, "data/"), "upload.zip")
		require.NoError(t, err)
		assert.Len(t, features, 2)
	})

	t.Run("複数のセットをすべて読み込み連番を通す", func(t *testing.T) {
		dir := t.TempDir()
		shapefileFixture(t, dir, "north")
		shapefileFixture(t, dir, "south")

		features, _, err := p.Parse(zipDir(t, dir, ""), "region.zip")
		require.NoError(t, err)
		require.Len(t, features, 4)
		assert.Equal(t, "region_1", features[1].Name)
		assert.Equal(t, "region_3", features[3].Name)
	})

	t.Run("DBFがないセットはParseError", func(t *testing.T) {
		dir := t.TempDir()
		shapefileFixture(t, dir, "villages")
		require.NoError(t, os.Remove(filepath.Join(dir, "villages.dbf")))

		_, _, err := p.Parse(zipDir(t, dir, ""), "villages.zip")
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrParse))
		assert.Contains(t, err.Error(), ".dbf")
	})

	t.Run("一時ディレクトリは削除される", func(t *testing.T) {
		scratch := t.TempDir()
		dir := t.TempDir()
		shapefileFixture(t, dir, "villages")

		_, _, err := NewParser(scratch).Parse(zipDir(t, dir, ""), "villages.zip")
		require.NoError(t, err)
		left, err := os.ReadDir(scratch)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}
