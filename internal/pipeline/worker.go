package pipeline

import (
	"context"

	"go.uber.org/zap"

	"ors-matrix/internal/geo"
	"ors-matrix/internal/model"
	"ors-matrix/internal/ors"
)

// DistanceQuerier returns both directional values for one coordinate pair.
// *ors.Client implements it.
type DistanceQuerier interface {
	Query(ctx context.Context, src, dest model.Coordinate, params model.QueryParams) (ors.Pair, error)
}

// RowResult is the outcome of querying one row: either a Measurement or a
// transient Failure, never both.
type RowResult struct {
	Measurement *model.Measurement
	Failure     *model.RowFailure
}

// OK reports whether the row produced a measurement.
func (r RowResult) OK() bool { return r.Measurement != nil }

// Worker queries the routing service row by row for one sub-chunk.
type Worker struct {
	client  DistanceQuerier
	params  model.QueryParams
	logger  *zap.Logger
	tracker *Tracker
}

// NewWorker returns a Worker. A nil tracker disables failure accounting.
func NewWorker(client DistanceQuerier, params model.QueryParams, logger *zap.Logger, tracker *Tracker) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{client: client, params: params, logger: logger, tracker: tracker}
}

// QueryRow queries a single row. Classified routing failures are reported in
// the RowResult; any other error is returned and halts the run.
func (w *Worker) QueryRow(ctx context.Context, row model.PairRow) (RowResult, error) {
	pair, err := w.client.Query(ctx, row.Src, row.Dest, w.params)
	if err == nil {
		return RowResult{Measurement: &model.Measurement{
			Key:       row.Key,
			SrcToDest: pair.SrcToDest,
			DestToSrc: pair.DestToSrc,
		}}, nil
	}
	kind, ok := ors.KindOf(err)
	if !ok {
		return RowResult{}, err
	}
	f := &model.RowFailure{
		Key:        row.Key,
		Code:       string(kind),
		Message:    err.Error(),
		GeodesicKm: geo.RowHaversine(row),
	}
	w.logger.Warn("row query failed",
		zap.Int64("row_src", row.Key.Src),
		zap.Int64("row_dest", row.Key.Dest),
		zap.String("code", f.Code),
		zap.Float64("geodesic_km", f.GeodesicKm),
		zap.Error(err),
	)
	w.tracker.RowFailed(*f)
	return RowResult{Failure: f}, nil
}

// Process queries every row of rows in order. It stops at the first fatal
// error or when ctx is done.
func (w *Worker) Process(ctx context.Context, rows []model.PairRow) (WorkerOutput, error) {
	out := WorkerOutput{Measurements: make([]model.Measurement, 0, len(rows))}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return WorkerOutput{}, err
		}
		res, err := w.QueryRow(ctx, row)
		if err != nil {
			return WorkerOutput{}, err
		}
		if res.OK() {
			out.Measurements = append(out.Measurements, *res.Measurement)
			w.tracker.RowSucceeded()
			continue
		}
		out.Failures = append(out.Failures, *res.Failure)
	}
	return out, nil
}
