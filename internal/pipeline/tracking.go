package pipeline

import (
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"ors-matrix/internal/metrics"
	"ors-matrix/internal/model"
)

// RunMetrics is a snapshot of a run's progress.
type RunMetrics struct {
	RunID          string           `json:"run_id"`
	Status         string           `json:"status"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	Duration       time.Duration    `json:"duration"`
	TotalRows      int64            `json:"total_rows"`
	TotalChunks    int64            `json:"total_chunks"`
	Chunks         int64            `json:"chunks"`
	RowsCompleted  int64            `json:"rows_completed"`
	Records        int64            `json:"records"`
	Failures       int64            `json:"failures"`
	Duplicates     int64            `json:"duplicates"`
	FailuresByCode map[string]int64 `json:"failures_by_code"`
	LastChunk      int64            `json:"last_chunk"`
	Progress       float64          `json:"progress"`
	RowsPerSecond  float64          `json:"rows_per_second"`
}

// Tracker accumulates run progress, feeds the prometheus collectors and
// prints human progress lines. All methods are safe for concurrent use and
// are no-ops on a nil *Tracker.
type Tracker struct {
	mu      sync.RWMutex
	m       RunMetrics
	out     io.Writer
	logger  *zap.Logger
	metrics *metrics.Collectors
	now     func() time.Time
}

// NewTracker returns a Tracker writing progress lines to out. out, logger
// and collectors may be nil.
func NewTracker(out io.Writer, logger *zap.Logger, collectors *metrics.Collectors) *Tracker {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		out:     out,
		logger:  logger,
		metrics: collectors,
		now:     time.Now,
		m:       RunMetrics{FailuresByCode: map[string]int64{}, LastChunk: -1},
	}
}

// Start resets the tracker for run.
func (t *Tracker) Start(run model.RunRecord) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = RunMetrics{
		RunID:          run.ID,
		Status:         model.RunStatusRunning,
		StartTime:      t.now(),
		TotalRows:      run.TotalRows,
		TotalChunks:    ChunkCount(run.TotalRows, run.Chunksize),
		FailuresByCode: map[string]int64{},
		LastChunk:      run.IterationStart - 1,
	}
	fmt.Fprintf(t.out, "🚀 Run %s: %d rows, chunksize %d, starting at iteration %d\n",
		run.ID, run.TotalRows, run.Chunksize, run.IterationStart)
	t.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.Int64("total_rows", run.TotalRows),
		zap.Int64("chunksize", run.Chunksize),
		zap.Int64("iteration", run.IterationStart),
	)
}

// RowSucceeded counts one measured row.
func (t *Tracker) RowSucceeded() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.Rows.WithLabelValues("success").Inc()
}

// RowFailed counts one transiently failed row.
func (t *Tracker) RowFailed(f model.RowFailure) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.m.FailuresByCode[f.Code]++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Rows.WithLabelValues("failed").Inc()
		t.metrics.RowFailures.WithLabelValues(f.Code).Inc()
	}
}

// ChunkDone records an appended chunk.
func (t *Tracker) ChunkDone(rec model.ChunkRecord) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.m.Chunks++
	t.m.RowsCompleted += rec.Chunk.Len()
	t.m.Records += int64(rec.Records)
	t.m.Failures += int64(rec.Failures)
	t.m.Duplicates += int64(rec.Duplicates)
	if rec.Duplicates > 0 {
		t.m.FailuresByCode[model.FailureDuplicate] += int64(rec.Duplicates)
	}
	t.m.LastChunk = rec.Chunk.Index
	if t.m.TotalRows > 0 {
		t.m.Progress = float64(rec.Chunk.Stop) / float64(t.m.TotalRows)
	}
	snap := t.m
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.Chunks.Inc()
		t.metrics.ChunkDuration.Observe(rec.Elapsed().Seconds())
		t.metrics.Workers.Set(float64(rec.Workers))
		t.metrics.Progress.Set(snap.Progress)
		if rec.Duplicates > 0 {
			t.metrics.RowFailures.WithLabelValues(model.FailureDuplicate).Add(float64(rec.Duplicates))
		}
	}
	fmt.Fprintf(t.out, "📦 Iteration: %d (chunk %d/%d); Workers: %d; Rows completed: %d; Progress: %.2f%%; Time: %v\n",
		rec.Chunk.Index, rec.Chunk.Index+1, snap.TotalChunks, rec.Workers, snap.RowsCompleted, snap.Progress*100,
		rec.Elapsed().Round(time.Millisecond))
	t.logger.Info("chunk appended",
		zap.String("run_id", rec.RunID),
		zap.Int64("iteration", rec.Chunk.Index),
		zap.Int("records", rec.Records),
		zap.Int("failures", rec.Failures),
		zap.Int("duplicates", rec.Duplicates),
		zap.Int("workers", rec.Workers),
		zap.Duration("elapsed", rec.Elapsed()),
	)
}

// Complete marks the run as completed.
func (t *Tracker) Complete() {
	if t == nil {
		return
	}
	snap := t.finish(model.RunStatusCompleted)
	fmt.Fprintf(t.out, "✅ Run %s completed in %v: %d chunks, %d records, %d failures, %d duplicates\n",
		snap.RunID, snap.Duration.Round(time.Millisecond), snap.Chunks, snap.Records, snap.Failures, snap.Duplicates)
	t.logger.Info("run completed",
		zap.String("run_id", snap.RunID),
		zap.Int64("chunks", snap.Chunks),
		zap.Int64("records", snap.Records),
		zap.Int64("failures", snap.Failures),
		zap.Int64("duplicates", snap.Duplicates),
		zap.Duration("duration", snap.Duration),
	)
}

// Fail marks the run as ended by err with the given status.
func (t *Tracker) Fail(status string, err error) {
	if t == nil {
		return
	}
	snap := t.finish(status)
	fmt.Fprintf(t.out, "❌ Run %s %s after %v: %v\n", snap.RunID, status, snap.Duration.Round(time.Millisecond), err)
	t.logger.Error("run halted",
		zap.String("run_id", snap.RunID),
		zap.String("status", status),
		zap.Int64("last_chunk", snap.LastChunk),
		zap.Error(err),
	)
}

func (t *Tracker) finish(status string) RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.m.EndTime = &now
	t.m.Status = status
	t.m.Duration = now.Sub(t.m.StartTime)
	if secs := t.m.Duration.Seconds(); secs > 0 {
		t.m.RowsPerSecond = float64(t.m.RowsCompleted) / secs
	}
	return t.snapshot()
}

// Metrics returns a copy of the current run metrics. The status API serves it
// while a run is in progress.
func (t *Tracker) Metrics() RunMetrics {
	if t == nil {
		return RunMetrics{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() RunMetrics {
	m := t.m
	m.FailuresByCode = maps.Clone(t.m.FailuresByCode)
	return m
}
