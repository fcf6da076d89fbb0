package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GISData-App/internal/domain/model"
)

func TestFileUseCase(t *testing.T) {
	ctx := context.Background()
	setup := func() (*memoryStore, *fakeBlobStore, FileUseCase) {
		store, files, features := newMemoryStore()
		blobs := newFakeBlobStore()
		blobs.objects["gs://test-bucket/uploads/file-a/roads.geojson"] = []byte("{}")
		store.addFile(model.FileRecord{ID: "file-a", Filename: "roads.geojson", State: "Karnataka", District: "Mandya",
			StoragePath: "gs://test-bucket/uploads/file-a/roads.geojson"},
			model.Feature{Name: "r1", Geometry: orb.Point{77, 12}},
			model.Feature{Name: "r2", Geometry: orb.Point{77.1, 12.1}},
			model.Feature{Name: "r3", Geometry: orb.Point{77.2, 12.2}},
		)
		store.addFile(model.FileRecord{ID: "file-b", Filename: "wells.csv", State: "Kerala", District: "Idukki"})
		return store, blobs, NewFileUseCase(files, nil, features, newFakeReportRepository(), blobs)
	}

	t.Run("州・地区の一覧", func(t *testing.T) {
		_, _, uc := setup()
		states, err := uc.ListStates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Karnataka", "Kerala"}, states)

		districts, err := uc.ListDistricts(ctx, "kar")
		require.NoError(t, err)
		assert.Equal(t, []string{"Mandya"}, districts)
	})

	t.Run("地物のページング", func(t *testing.T) {
		_, _, uc := setup()
		features, err := uc.GetFileFeatures(ctx, "file-a", 1, 1)
		require.NoError(t, err)
		require.Len(t, features, 1)
		assert.Equal(t, "r2", features[0].Name)
	})

	t.Run("存在しないファイルの地物はNotFound", func(t *testing.T) {
		_, _, uc := setup()
		_, err := uc.GetFileFeatures(ctx, "missing", 0, 10)
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("削除すると地物と元ファイルも消える", func(t *testing.T) {
		store, blobs, uc := setup()
		require.NoError(t, uc.DeleteFile(ctx, "file-a"))
		assert.Len(t, store.files, 1)
		assert.Empty(t, store.features)
		assert.Empty(t, blobs.objects)

		assert.True(t, errors.Is(uc.DeleteFile(ctx, "file-a"), model.ErrNotFound))
	})

	t.Run("レポートがない場合はNotFound", func(t *testing.T) {
		_, _, uc := setup()
		_, err := uc.GetReport(ctx, "file-a")
		assert.True(t, errors.Is(err, model.ErrNotFound))
	})
}
