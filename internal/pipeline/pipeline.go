// Package pipeline drives a resumable, chunked run of coordinate pairs
// through the routing service matrix endpoint into an append-only store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ors-matrix/internal/model"
)

var (
	// ErrInvalidSettings is returned before any chunk is processed.
	ErrInvalidSettings = errors.New("invalid pipeline settings")
	// ErrInput wraps failures to read the input store.
	ErrInput = errors.New("input store")
	// ErrOutput wraps failures to write the output store.
	ErrOutput = errors.New("output store")
	// ErrChunkCommitted is returned when the journal shows that rows of the
	// next chunk were already appended, which happens when resuming at an
	// iteration that had completed.
	ErrChunkCommitted = errors.New("chunk already appended")
)

// InputStore is a read-only, stably ordered source of pair rows.
type InputStore interface {
	Count(ctx context.Context) (int64, error)
	// Select returns rows [start, stop) in input order.
	Select(ctx context.Context, start, stop int64) ([]model.PairRow, error)
	Close() error
}

// OutputStore durably appends chunk batches and journals the run.
type OutputStore interface {
	CreateRun(ctx context.Context, run model.RunRecord) error
	UpdateRunStatus(ctx context.Context, runID, status string) error
	// ChunkCommitted reports whether any row of c was appended by an earlier
	// chunk. It guards resumes; it never chooses where a run starts.
	ChunkCommitted(ctx context.Context, c model.Chunk) (bool, error)
	// Append commits the batch atomically. A key stored by an earlier chunk
	// keeps its first value and is reported in the result's Duplicates.
	Append(ctx context.Context, batch model.Batch, rec model.ChunkRecord) (model.AppendResult, error)
}

// ChunkError is a fatal error raised while handling chunk Index. Every chunk
// before Index is durably appended; rerun with Iteration = Index to resume.
type ChunkError struct {
	Index int64
	Err   error
}

func (e *ChunkError) Error() string {
	if errors.Is(e.Err, ErrChunkCommitted) {
		return fmt.Sprintf("chunk %d: %v (resume with an --iteration past it)", e.Index, e.Err)
	}
	return fmt.Sprintf("chunk %d: %v (resume with --iteration %d)", e.Index, e.Err, e.Index)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// State is a stage of the driver.
type State int

const (
	StateInit State = iota
	StatePlanning
	StateDispatching
	StateMerging
	StateAppending
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePlanning:
		return "PLANNING"
	case StateDispatching:
		return "DISPATCHING"
	case StateMerging:
		return "MERGING"
	case StateAppending:
		return "APPENDING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Settings controls one run.
type Settings struct {
	// Iteration is the first chunk index to process.
	Iteration int64
	Chunksize int64
	// Workers is the upper bound on concurrent workers per chunk.
	Workers int
	Params  model.QueryParams
	// RunID names the run in the journal; generated when empty.
	RunID string
}

// Validate checks s.
func (s Settings) Validate() error {
	switch {
	case s.Iteration < 0:
		return fmt.Errorf("%w: iteration must be >= 0, got %d", ErrInvalidSettings, s.Iteration)
	case s.Chunksize < 1:
		return fmt.Errorf("%w: chunksize must be >= 1, got %d", ErrInvalidSettings, s.Chunksize)
	case s.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidSettings, s.Workers)
	}
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Summary reports a finished run.
type Summary struct {
	RunID     string        `json:"run_id"`
	TotalRows int64         `json:"total_rows"`
	Chunks    int64         `json:"chunks"`
	Rows      int64         `json:"rows"`
	Records   int64         `json:"records"`
	Failures  int64         `json:"failures"`
	// Duplicates counts measurements dropped because an earlier chunk stored the key.
	Duplicates int64         `json:"duplicates"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l *zap.Logger) Option { return func(d *Driver) { d.logger = l } }

// WithTracker sets the progress tracker.
func WithTracker(t *Tracker) Option { return func(d *Driver) { d.tracker = t } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(d *Driver) { d.now = now } }

// WithStateHook calls fn on every state the driver enters.
func WithStateHook(fn func(State)) Option { return func(d *Driver) { d.onState = fn } }

// Driver runs chunks sequentially: plan, dispatch, merge, append.
type Driver struct {
	input    InputStore
	output   OutputStore
	client   DistanceQuerier
	settings Settings
	logger   *zap.Logger
	tracker  *Tracker
	now      func() time.Time
	state    State
	onState  func(State)
}

// NewDriver returns a driver. The driver owns input and closes it when Run returns.
func NewDriver(input InputStore, output OutputStore, client DistanceQuerier, settings Settings, opts ...Option) *Driver {
	d := &Driver{
		input:    input,
		output:   output,
		client:   client,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.tracker == nil {
		d.tracker = NewTracker(nil, d.logger, nil)
	}
	return d
}

func (d *Driver) setState(s State) {
	if d.state != s {
		d.logger.Debug("pipeline state", zap.Stringer("from", d.state), zap.Stringer("to", s))
	}
	d.state = s
	if d.onState != nil {
		d.onState(s)
	}
}

// Run processes chunks from settings.Iteration to the end of the input. On a
// fatal error the returned error is a *ChunkError naming the chunk to resume
// from, unless the failure happened before the first chunk.
func (d *Driver) Run(ctx context.Context) (sum Summary, err error) {
	d.setState(StateInit)
	defer func() {
		if cerr := d.input.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %v", ErrInput, cerr)
		}
	}()

	if err := d.settings.Validate(); err != nil {
		d.setState(StateFailed)
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		d.setState(StateFailed)
		return Summary{}, err
	}

	total, err := d.input.Count(ctx)
	if err != nil {
		d.setState(StateFailed)
		return Summary{}, fmt.Errorf("%w: count: %w", ErrInput, err)
	}

	runID := d.settings.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := model.RunRecord{
		ID:             runID,
		Status:         model.RunStatusRunning,
		IterationStart: d.settings.Iteration,
		Chunksize:      d.settings.Chunksize,
		TotalRows:      total,
		Params:         d.settings.Params,
		StartedAt:      d.now(),
	}
	run.UpdatedAt = run.StartedAt
	if err := d.output.CreateRun(ctx, run); err != nil {
		d.setState(StateFailed)
		return Summary{}, fmt.Errorf("%w: create run: %w", ErrOutput, err)
	}
	d.tracker.Start(run)

	start := d.now()
	sum = Summary{RunID: runID, TotalRows: total}
	worker := NewWorker(d.client, d.settings.Params, d.logger, d.tracker)

	d.setState(StatePlanning)
	for chunk := range EnumerateChunks(total, d.settings.Chunksize, d.settings.Iteration) {
		rec, err := d.runChunk(ctx, runID, chunk, worker)
		if err != nil {
			return sum, d.fail(ctx, runID, &ChunkError{Index: chunk.Index, Err: err})
		}
		sum.Chunks++
		sum.Rows += chunk.Len()
		sum.Records += int64(rec.Records)
		sum.Failures += int64(rec.Failures)
		sum.Duplicates += int64(rec.Duplicates)
		d.tracker.ChunkDone(rec)
		d.setState(StatePlanning)
	}

	sum.Elapsed = d.now().Sub(start)
	if err := d.output.UpdateRunStatus(context.WithoutCancel(ctx), runID, model.RunStatusCompleted); err != nil {
		d.logger.Warn("journal run status", zap.String("run_id", runID), zap.Error(err))
	}
	d.setState(StateDone)
	d.tracker.Complete()
	return sum, nil
}

func (d *Driver) runChunk(ctx context.Context, runID string, chunk model.Chunk, worker *Worker) (model.ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ChunkRecord{}, err
	}
	startedAt := d.now()

	committed, err := d.output.ChunkCommitted(ctx, chunk)
	if err != nil {
		return model.ChunkRecord{}, fmt.Errorf("%w: journal: %w", ErrOutput, err)
	}
	if committed {
		return model.ChunkRecord{}, fmt.Errorf("%w: rows [%d, %d) overlap a journaled chunk",
			ErrChunkCommitted, chunk.Start, chunk.Stop)
	}

	d.setState(StateDispatching)
	rows, err := d.input.Select(ctx, chunk.Start, chunk.Stop)
	if err != nil {
		return model.ChunkRecord{}, fmt.Errorf("%w: select [%d, %d): %w", ErrInput, chunk.Start, chunk.Stop, err)
	}
	outputs, workers, err := Dispatch(ctx, rows, d.settings.Workers, worker.Process)
	if err != nil {
		return model.ChunkRecord{}, err
	}

	d.setState(StateMerging)
	measurements, failures := Merge(outputs)

	d.setState(StateAppending)
	batch := model.Batch{Chunk: chunk, Measurements: measurements, Failures: failures}
	rec := model.ChunkRecord{
		RunID:     runID,
		Chunk:     chunk,
		Records:   len(measurements),
		Failures:  len(failures),
		Workers:   workers,
		StartedAt: startedAt,
		EndedAt:   d.now(),
	}
	res, err := d.output.Append(ctx, batch, rec)
	if err != nil {
		return model.ChunkRecord{}, fmt.Errorf("%w: append: %w", ErrOutput, err)
	}
	rec.Records, rec.Duplicates = res.Stored, len(res.Duplicates)
	for _, k := range res.Duplicates {
		d.logger.Warn("duplicate key dropped",
			zap.Int64("iteration", chunk.Index),
			zap.Int64("row_src", k.Src),
			zap.Int64("row_dest", k.Dest),
		)
	}
	return rec, nil
}

func (d *Driver) fail(ctx context.Context, runID string, err *ChunkError) error {
	d.setState(StateFailed)
	status := model.RunStatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = model.RunStatusCancelled
	}
	if uerr := d.output.UpdateRunStatus(context.WithoutCancel(ctx), runID, status); uerr != nil {
		d.logger.Warn("journal run status", zap.String("run_id", runID), zap.Error(uerr))
	}
	d.tracker.Fail(status, err)
	return err
}
