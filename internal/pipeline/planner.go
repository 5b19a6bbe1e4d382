package pipeline

import (
	"iter"

	"ors-matrix/internal/model"
)

const (
	// BytesPerGiB converts a working-memory budget given in GiB to bytes.
	BytesPerGiB = 1 << 30
	// DefaultBytesPerRow is the estimated in-memory cost of one coordinate pair row.
	DefaultBytesPerRow = 30
)

// BudgetBytes converts a budget in GiB to bytes.
func BudgetBytes(gib float64) int64 {
	return int64(gib * BytesPerGiB)
}

// PlanChunksize returns floor(budgetBytes / bytesPerRow), clamped to at least 1.
func PlanChunksize(budgetBytes, bytesPerRow int64) int64 {
	if bytesPerRow <= 0 {
		bytesPerRow = DefaultBytesPerRow
	}
	n := budgetBytes / bytesPerRow
	if n < 1 {
		return 1
	}
	return n
}

// EnumerateChunks lazily yields chunks start, start+1, ... while
// index*chunksize < totalRows. The last chunk is truncated at totalRows.
func EnumerateChunks(totalRows, chunksize, start int64) iter.Seq[model.Chunk] {
	if chunksize < 1 {
		chunksize = 1
	}
	if start < 0 {
		start = 0
	}
	return func(yield func(model.Chunk) bool) {
		for i := start; i*chunksize < totalRows; i++ {
			c := model.Chunk{Index: i, Start: i * chunksize, Stop: min((i+1)*chunksize, totalRows)}
			if !yield(c) {
				return
			}
		}
	}
}

// ChunkCount returns how many chunks cover totalRows.
func ChunkCount(totalRows, chunksize int64) int64 {
	if totalRows <= 0 || chunksize < 1 {
		return 0
	}
	return (totalRows + chunksize - 1) / chunksize
}
