package geos

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRepairer(t *testing.T) {
	r := NewBufferRepairer()

	t.Run("正しいポリゴンはそのまま返す", func(t *testing.T) {
		square := orb.Polygon{{{77, 12}, {78, 12}, {78, 13}, {77, 13}, {77, 12}}}

		got, repaired, err := r.Repair(square)
		require.NoError(t, err)
		assert.False(t, repaired)
		assert.Equal(t, square, got)
	})

	t.Run("自己交差したポリゴンを面として修復する", func(t *testing.T) {
		bowtie := orb.Polygon{{{77, 12}, {78, 13}, {78, 12}, {77, 13}, {77, 12}}}

		got, repaired, err := r.Repair(bowtie)
		require.NoError(t, err)
		assert.True(t, repaired)
		require.NotNil(t, got)
		assert.Contains(t, []string{"Polygon", "MultiPolygon"}, got.GeoJSONType())

		b := got.Bound()
		assert.GreaterOrEqual(t, b.Min.Lon(), 77.0)
		assert.LessOrEqual(t, b.Max.Lon(), 78.0)
	})
}
