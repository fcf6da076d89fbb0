package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/converter"
	"GISData-App/internal/domain/model"
)

func TestConvertParallel(t *testing.T) {
	groups := make([]exportGroup, 0, 9)
	for i := 0; i < 9; i++ {
		groups = append(groups, exportGroup{
			file: &model.FileRecord{ID: fmt.Sprintf("f%d", i), Filename: fmt.Sprintf("layer_%d.geojson", i)},
			features: []model.Feature{
				{ID: fmt.Sprintf("p%d", i), Geometry: orb.Point{76 + float64(i)*0.1, 12}},
			},
		})
	}
	conv := converter.NewConverter(t.TempDir(), false)

	t.Run("上限を超える件数でも入力順に結果を返す", func(t *testing.T) {
		results, err := convertParallel(context.Background(), conv, groups, "geojson")
		require.NoError(t, err)
		require.Len(t, results, len(groups))
		for i, res := range results {
			assert.Equal(t, fmt.Sprintf("layer_%d", i), res.BaseName)
			assert.Equal(t, ".geojson", res.Extension)
		}
	})

	t.Run("失敗したファイル名をエラーに含める", func(t *testing.T) {
		_, err := convertParallel(context.Background(), conv, groups[:2], "xlsx")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "layer_0.geojson")
	})
}
