package config

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ors-matrix/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Verify())

	assert.Equal(t, "geodesic", cfg.Input.Table)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 0.1, cfg.Run.WorkingMemory)
	assert.EqualValues(t, 30, cfg.Run.BytesPerRow)
	assert.Equal(t, runtime.NumCPU(), cfg.Run.Workers)
	assert.True(t, cfg.Query.Optimized)
	assert.Equal(t, "http://localhost:8080/ors", cfg.ORS.URL)
	assert.Equal(t, 60*time.Second, cfg.ORS.Timeout)
	assert.True(t, cfg.ORS.RetryOverQueryLimit)
	assert.Equal(t, 5, cfg.ORS.RetryMax)

	assert.EqualValues(t, 3579139, cfg.Chunksize())
	assert.Equal(t, model.QueryParams{
		Profile:   "driving-car",
		Metric:    model.MetricDistance,
		Units:     model.UnitsKilometers,
		Optimized: true,
	}, cfg.Params())

	s := cfg.Settings()
	assert.EqualValues(t, 0, s.Iteration)
	assert.Equal(t, cfg.Chunksize(), s.Chunksize)
	assert.NoError(t, s.Validate())

	c := cfg.Client()
	assert.Equal(t, cfg.ORS.URL, c.BaseURL)
	assert.True(t, c.RetryOverQueryLimit)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative iteration", func(c *Config) { c.Run.Iteration = -1 }, "iteration"},
		{"zero memory", func(c *Config) { c.Run.WorkingMemory = 0 }, "working memory"},
		{"zero bytes per row", func(c *Config) { c.Run.BytesPerRow = 0 }, "bytes per row"},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }, "workers"},
		{"empty table", func(c *Config) { c.Input.Table = "" }, "table"},
		{"bad metric", func(c *Config) { c.Query.Metric = "speed" }, "metric"},
		{"bad units", func(c *Config) { c.Query.Units = "furlong" }, "units"},
		{"bad profile", func(c *Config) { c.Query.Profile = "rocket" }, "profile"},
		{"empty url", func(c *Config) { c.ORS.URL = "" }, "ors url"},
		{"zero timeout", func(c *Config) { c.ORS.Timeout = 0 }, "timeout"},
		{"negative retries", func(c *Config) { c.ORS.RetryMax = -1 }, "retry"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Verify()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerifyJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.Workers = 0
	cfg.Log.Level = "loud"
	err := cfg.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "log level")
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "data"
	assert.Equal(t, filepath.Join("data", "db-canada-30km-geodesic.db"), cfg.InputPath())
	assert.Equal(t, filepath.Join("data", "db-canada-30km-network.db"), cfg.OutputPath())

	cfg.Query.Distance = 50
	cfg.Query.Units = "mi"
	assert.Equal(t, filepath.Join("data", "db-canada-50mi-network.db"), cfg.OutputPath())

	cfg.Input.Path = "pairs.csv"
	cfg.Output.Path = "/tmp/out.db"
	assert.Equal(t, filepath.Join("data", "pairs.csv"), cfg.InputPath())
	assert.Equal(t, "/tmp/out.db", cfg.OutputPath())
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			l, err := NewLogger(format, level)
			require.NoError(t, err, "%s/%s", format, level)
			require.NotNil(t, l)
		}
	}

	l, err := NewLogger("text", "none")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(0))

	l, err = NewLogger("json", "warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(0))
	assert.True(t, l.Core().Enabled(1))

	_, err = NewLogger("text", "verbose")
	require.ErrorContains(t, err, "unknown log level")

	assert.Panics(t, func() { MustNewLogger("text", "verbose") })
}
