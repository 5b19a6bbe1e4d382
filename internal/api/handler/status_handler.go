// Package handler serves the read-only status API over the run journal and
// the output table.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"ors-matrix/internal/model"
	"ors-matrix/internal/pipeline"
	"ors-matrix/internal/store"
	"ors-matrix/pkg/router"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// Reader is the read side of the output store.
type Reader interface {
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	GetRun(ctx context.Context, runID string) (model.RunRecord, error)
	ListChunks(ctx context.Context, runID string) ([]model.ChunkRecord, error)
	ListFailures(ctx context.Context, runID string, limit int) ([]model.FailureRecord, error)
	Lookup(ctx context.Context, key model.PairKey) (model.Measurement, error)
	Range(ctx context.Context, from, to model.PairKey, limit int) ([]model.Measurement, error)
}

// Progress reports the live metrics of the run in this process.
type Progress interface {
	Metrics() pipeline.RunMetrics
}

// Status serves the status endpoints. progress is nil when no run shares the
// process, as under serve.
type Status struct {
	store    Reader
	progress Progress
	logger   *zap.Logger
}

func NewStatus(r Reader, progress Progress, logger *zap.Logger) *Status {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Status{store: r, progress: progress, logger: logger}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MeasurementResponse is a stored measurement. Null values are unroutable pairs.
type MeasurementResponse struct {
	RowSrc   int64    `json:"row_src"`
	RowDest  int64    `json:"row_dest"`
	Src2Dest *float64 `json:"src2dest"`
	Dest2Src *float64 `json:"dest2src"`
}

func toResponse(m model.Measurement) MeasurementResponse {
	value := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return MeasurementResponse{
		RowSrc:   m.Key.Src,
		RowDest:  m.Key.Dest,
		Src2Dest: value(m.SrcToDest),
		Dest2Src: value(m.DestToSrc),
	}
}

// ListRuns lists the journaled runs
// @Summary List runs
// @Description Every run recorded in the output database, newest first
// @Tags runs
// @Produce json
// @Success 200 {array} model.RunRecord
// @Failure 500 {object} ErrorResponse
// @Router /runs [get]
func (s *Status) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to fetch runs", err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id} [get]
func (s *Status) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), router.Segment(r.URL.Path, 3))
	if errors.Is(err, store.ErrNotFound) {
		s.fail(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to fetch run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListChunks returns the appended chunks of a run
// @Summary List chunks
// @Description Per-chunk telemetry in append order
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} model.ChunkRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id}/chunks [get]
func (s *Status) ListChunks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.run(w, r)
	if !ok {
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), id)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to fetch chunks", err)
		return
	}
	if chunks == nil {
		chunks = []model.ChunkRecord{}
	}
	writeJSON(w, http.StatusOK, chunks)
}

// ListFailures returns the skipped rows of a run
// @Summary List row failures
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Maximum number of failures" default(100)
// @Success 200 {array} model.FailureRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id}/failures [get]
func (s *Status) ListFailures(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	id, ok := s.run(w, r)
	if !ok {
		return
	}
	failures, err := s.store.ListFailures(r.Context(), id, limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to fetch failures", err)
		return
	}
	if failures == nil {
		failures = []model.FailureRecord{}
	}
	writeJSON(w, http.StatusOK, failures)
}

// Measurements reads back stored rows
// @Summary Read measurements
// @Description With src and dest, one measurement. With src only, every measurement of that source row.
// @Tags measurements
// @Produce json
// @Param src query int true "Source row index"
// @Param dest query int false "Destination row index"
// @Param limit query int false "Maximum number of rows for a source scan" default(100)
// @Success 200 {array} MeasurementResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /measurements [get]
func (s *Status) Measurements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := strconv.ParseInt(q.Get("src"), 10, 64)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "src must be an integer", nil)
		return
	}

	if q.Has("dest") {
		dest, err := strconv.ParseInt(q.Get("dest"), 10, 64)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "dest must be an integer", nil)
			return
		}
		m, err := s.store.Lookup(r.Context(), model.PairKey{Src: src, Dest: dest})
		if errors.Is(err, store.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "measurement not found", nil)
			return
		}
		if err != nil {
			s.fail(w, http.StatusInternalServerError, "failed to read measurement", err)
			return
		}
		writeJSON(w, http.StatusOK, []MeasurementResponse{toResponse(m)})
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ms, err := s.store.Range(r.Context(),
		model.PairKey{Src: src, Dest: math.MinInt64},
		model.PairKey{Src: src, Dest: math.MaxInt64}, limit)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to read measurements", err)
		return
	}
	out := make([]MeasurementResponse, len(ms))
	for i, m := range ms {
		out[i] = toResponse(m)
	}
	writeJSON(w, http.StatusOK, out)
}

// Progress returns the live metrics of the current run
// @Summary Live run progress
// @Description Served while the run command holds the status address
// @Tags runs
// @Produce json
// @Success 200 {object} pipeline.RunMetrics
// @Failure 404 {object} ErrorResponse
// @Router /progress [get]
func (s *Status) Progress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		s.fail(w, http.StatusNotFound, "no run in progress", nil)
		return
	}
	m := s.progress.Metrics()
	if m.RunID == "" {
		s.fail(w, http.StatusNotFound, "no run in progress", nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// run resolves the run id of the path and writes a 404 when it is unknown.
func (s *Status) run(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := router.Segment(r.URL.Path, 3)
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "run not found", nil)
		} else {
			s.fail(w, http.StatusInternalServerError, "failed to fetch run", err)
		}
		return "", false
	}
	return id, true
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and 10000")
	}
	return n, nil
}

func (s *Status) fail(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		s.logger.Error(msg, zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
