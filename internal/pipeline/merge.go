package pipeline

import (
	"slices"

	"ors-matrix/internal/model"
)

// Merge flattens worker outputs in dispatch order, drops measurements whose
// key was already seen (the first occurrence wins) and sorts the remainder by
// (row_src, row_dest). Failures are flattened and sorted the same way.
func Merge(outputs []WorkerOutput) ([]model.Measurement, []model.RowFailure) {
	var total, nfail int
	for _, o := range outputs {
		total += len(o.Measurements)
		nfail += len(o.Failures)
	}

	seen := make(map[model.PairKey]struct{}, total)
	merged := make([]model.Measurement, 0, total)
	var failures []model.RowFailure
	if nfail > 0 {
		failures = make([]model.RowFailure, 0, nfail)
	}
	for _, o := range outputs {
		for _, m := range o.Measurements {
			if _, dup := seen[m.Key]; dup {
				continue
			}
			seen[m.Key] = struct{}{}
			merged = append(merged, m)
		}
		failures = append(failures, o.Failures...)
	}

	slices.SortStableFunc(merged, func(a, b model.Measurement) int { return a.Key.Compare(b.Key) })
	slices.SortStableFunc(failures, func(a, b model.RowFailure) int { return a.Key.Compare(b.Key) })
	return merged, failures
}
