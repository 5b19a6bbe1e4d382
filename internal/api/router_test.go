package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ors-matrix/internal/metrics"
	"ors-matrix/internal/model"
	"ors-matrix/internal/pipeline"
	"ors-matrix/internal/store"
)

func TestRouter(t *testing.T) {
	ctx := context.Background()
	out, err := store.OpenOutput(ctx, filepath.Join(t.TempDir(), "network.db"))
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Chunks.Inc()

	tracker := pipeline.NewTracker(io.Discard, nil, nil)
	tracker.Start(model.RunRecord{ID: "run-1", TotalRows: 10, Chunksize: 4})

	srv := httptest.NewServer(NewRouter(out, tracker, reg, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/api/v1/runs", http.StatusOK, "[]"},
		{"/api/v1/runs/missing", http.StatusNotFound, "run not found"},
		{"/api/v1/runs/missing/failures", http.StatusNotFound, "run not found"},
		{"/api/v1/measurements?src=1&dest=2", http.StatusNotFound, "measurement not found"},
		{"/api/v1/progress", http.StatusOK, `"total_chunks":3`},
		{"/metrics", http.StatusOK, "orsmatrix_chunks_total 1"},
		{"/swagger/doc.json", http.StatusOK, "ors-matrix status API"},
		{"/swagger/index.html", http.StatusOK, "swagger"},
		{"/nowhere", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestRouterWithoutRunHasNoProgress(t *testing.T) {
	out, err := store.OpenOutput(context.Background(), filepath.Join(t.TempDir(), "network.db"))
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })

	srv := httptest.NewServer(NewRouter(out, nil, prometheus.NewRegistry(), zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
