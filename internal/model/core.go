package model

// Chunk is a contiguous window [Start, Stop) of the input identified by its index.
type Chunk struct {
	Index int64 `json:"index"`
	Start int64 `json:"start"`
	Stop  int64 `json:"stop"`
}

// Len returns the number of rows the chunk covers.
func (c Chunk) Len() int64 { return c.Stop - c.Start }

// FailureDuplicate is the journal code of a measurement dropped because its
// key was already stored by an earlier chunk.
const FailureDuplicate = "duplicate"

// RowFailure is a per-row transient failure observed while querying the routing service.
type RowFailure struct {
	Key     PairKey `json:"key"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
	// GeodesicKm is the great-circle distance of the failed pair, for diagnostics.
	GeodesicKm float64 `json:"geodesic_km"`
}

// Batch is the merged, ordered output of one chunk together with the failures
// observed while producing it.
type Batch struct {
	Chunk        Chunk         `json:"chunk"`
	Measurements []Measurement `json:"measurements"`
	Failures     []RowFailure  `json:"failures"`
}

// AppendResult reports what an append stored.
type AppendResult struct {
	Stored int
	// Duplicates are the keys skipped because an earlier chunk stored them first.
	Duplicates []PairKey
}
