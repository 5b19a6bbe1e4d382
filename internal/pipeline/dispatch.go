package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ors-matrix/internal/model"
)

// WorkerOutput is what one worker produced for its sub-chunk. Measurements
// keep the sub-chunk's row order.
type WorkerOutput struct {
	Measurements []model.Measurement
	Failures     []model.RowFailure
}

// WorkFunc processes one sub-chunk. A returned error is fatal to the run.
type WorkFunc func(ctx context.Context, rows []model.PairRow) (WorkerOutput, error)

// WorkerCount returns min(pMax, n), and never less than 1 when n >= 1.
func WorkerCount(pMax, n int) int {
	if n <= 0 {
		return 0
	}
	if pMax < 1 {
		pMax = 1
	}
	return min(pMax, n)
}

// SplitSubChunks slices rows into contiguous runs of floor(n/p) rows; the
// last run may be shorter. The result has ceil(n/s) entries.
func SplitSubChunks(rows []model.PairRow, p int) [][]model.PairRow {
	n := len(rows)
	if n == 0 {
		return nil
	}
	if p < 1 {
		p = 1
	}
	s := max(n/p, 1)
	subs := make([][]model.PairRow, 0, (n+s-1)/s)
	for i := 0; i < n; i += s {
		subs = append(subs, rows[i:min(i+s, n)])
	}
	return subs
}

// Dispatch runs work over the sub-chunks of rows with at most
// WorkerCount(pMax, len(rows)) workers in flight, and waits for all of them.
// Outputs are returned in dispatch order. The first worker error cancels the
// others and is returned; no partial output is returned with it.
func Dispatch(ctx context.Context, rows []model.PairRow, pMax int, work WorkFunc) ([]WorkerOutput, int, error) {
	p := WorkerCount(pMax, len(rows))
	if p == 0 {
		return nil, 0, nil
	}
	subs := SplitSubChunks(rows, p)
	outputs := make([]WorkerOutput, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p)
	for i, sub := range subs {
		g.Go(func() error {
			out, err := work(gctx, sub)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, p, err
	}
	return outputs, p, nil
}
