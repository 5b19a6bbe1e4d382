package pipeline

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ors-matrix/internal/model"
)

func TestPlanChunksize(t *testing.T) {
	tests := []struct {
		name   string
		budget int64
		perRow int64
		want   int64
	}{
		{"default budget", BudgetBytes(0.1), DefaultBytesPerRow, 3579139},
		{"one gib", BudgetBytes(1), 30, 35791394},
		{"exact", 90, 30, 3},
		{"floor", 100, 30, 3},
		{"clamped to one", 10, 30, 1},
		{"zero budget", 0, 30, 1},
		{"non-positive row size uses default", 300, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanChunksize(tt.budget, tt.perRow))
		})
	}
}

func TestEnumerateChunks(t *testing.T) {
	got := slices.Collect(EnumerateChunks(7, 3, 0))
	require.Equal(t, []model.Chunk{
		{Index: 0, Start: 0, Stop: 3},
		{Index: 1, Start: 3, Stop: 6},
		{Index: 2, Start: 6, Stop: 7},
	}, got)

	t.Run("resume", func(t *testing.T) {
		got := slices.Collect(EnumerateChunks(7, 3, 1))
		require.Equal(t, []model.Chunk{
			{Index: 1, Start: 3, Stop: 6},
			{Index: 2, Start: 6, Stop: 7},
		}, got)
	})

	t.Run("start past the end", func(t *testing.T) {
		assert.Empty(t, slices.Collect(EnumerateChunks(7, 3, 3)))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, slices.Collect(EnumerateChunks(0, 3, 0)))
	})

	t.Run("exact multiple", func(t *testing.T) {
		got := slices.Collect(EnumerateChunks(6, 3, 0))
		require.Len(t, got, 2)
		assert.Equal(t, int64(6), got[1].Stop)
	})

	t.Run("early stop", func(t *testing.T) {
		var n int
		for range EnumerateChunks(100, 1, 0) {
			n++
			if n == 4 {
				break
			}
		}
		assert.Equal(t, 4, n)
	})
}

func TestEnumerateChunksCoversInput(t *testing.T) {
	for _, total := range []int64{1, 2, 9, 10, 11, 97} {
		for _, cs := range []int64{1, 2, 3, 10, 200} {
			var next int64
			var count int64
			for c := range EnumerateChunks(total, cs, 0) {
				require.Equal(t, next, c.Start, "total=%d cs=%d", total, cs)
				require.LessOrEqual(t, c.Len(), cs)
				require.Positive(t, c.Len())
				next = c.Stop
				count++
			}
			assert.Equal(t, total, next)
			assert.Equal(t, ChunkCount(total, cs), count)
		}
	}
}
