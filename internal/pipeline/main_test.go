package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"ors-matrix/internal/model"
	"ors-matrix/internal/ors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testParams = model.QueryParams{
	Profile:   "driving-car",
	Metric:    model.MetricDistance,
	Units:     model.UnitsKilometers,
	Optimized: true,
}

func pairRows(n int) []model.PairRow {
	rows := make([]model.PairRow, n)
	for i := range rows {
		rows[i] = model.PairRow{
			Key:  model.PairKey{Src: int64(i), Dest: int64(100 + i)},
			Src:  model.Coordinate{Lon: -75 + float64(i)/10, Lat: 45},
			Dest: model.Coordinate{Lon: -73, Lat: 45 + float64(i)/10},
		}
	}
	return rows
}

// fakeQuerier answers with values derived from the row index encoded in the
// source longitude, unless fail returns an error for that index.
type fakeQuerier struct {
	fail func(idx int) error
	mu   sync.Mutex
	seen []int
}

func rowIndex(src model.Coordinate) int {
	return int((src.Lon+75)*10 + 0.5)
}

func (f *fakeQuerier) Query(ctx context.Context, src, dest model.Coordinate, _ model.QueryParams) (ors.Pair, error) {
	if err := ctx.Err(); err != nil {
		return ors.Pair{}, err
	}
	idx := rowIndex(src)
	f.mu.Lock()
	f.seen = append(f.seen, idx)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(idx); err != nil {
			return ors.Pair{}, err
		}
	}
	return ors.Pair{SrcToDest: float64(idx) + 0.5, DestToSrc: float64(idx) + 0.25}, nil
}

func (f *fakeQuerier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type memInput struct {
	rows     []model.PairRow
	selectFn func(start, stop int64) error
	closed   bool
}

func (in *memInput) Count(context.Context) (int64, error) { return int64(len(in.rows)), nil }

func (in *memInput) Select(_ context.Context, start, stop int64) ([]model.PairRow, error) {
	if in.selectFn != nil {
		if err := in.selectFn(start, stop); err != nil {
			return nil, err
		}
	}
	out := make([]model.PairRow, stop-start)
	copy(out, in.rows[start:stop])
	return out, nil
}

func (in *memInput) Close() error {
	in.closed = true
	return nil
}

// memOutput is an in-memory append-only store with the same atomicity as
// the SQLite store.
type memOutput struct {
	mu       sync.Mutex
	rows     []model.Measurement
	keys     map[model.PairKey]struct{}
	chunks   []model.ChunkRecord
	runs     map[string]string
	appendFn func(batch model.Batch) error
}

func newMemOutput() *memOutput {
	return &memOutput{keys: map[model.PairKey]struct{}{}, runs: map[string]string{}}
}

func (o *memOutput) CreateRun(_ context.Context, run model.RunRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[run.ID] = run.Status
	return nil
}

func (o *memOutput) UpdateRunStatus(_ context.Context, id, status string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.runs[id]; !ok {
		return fmt.Errorf("run %s not found", id)
	}
	o.runs[id] = status
	return nil
}

func (o *memOutput) ChunkCommitted(_ context.Context, c model.Chunk) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, rec := range o.chunks {
		if rec.Chunk.Start < c.Stop && rec.Chunk.Stop > c.Start {
			return true, nil
		}
	}
	return false, nil
}

func (o *memOutput) Append(_ context.Context, batch model.Batch, rec model.ChunkRecord) (model.AppendResult, error) {
	if o.appendFn != nil {
		if err := o.appendFn(batch); err != nil {
			return model.AppendResult{}, err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var res model.AppendResult
	for _, m := range batch.Measurements {
		if _, ok := o.keys[m.Key]; ok {
			res.Duplicates = append(res.Duplicates, m.Key)
			continue
		}
		o.keys[m.Key] = struct{}{}
		o.rows = append(o.rows, m)
		res.Stored++
	}
	rec.Records, rec.Duplicates = res.Stored, len(res.Duplicates)
	o.chunks = append(o.chunks, rec)
	return res, nil
}

func (o *memOutput) status(id string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs[id]
}
