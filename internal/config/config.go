// Package config holds the run configuration and its defaults.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"ors-matrix/internal/model"
	"ors-matrix/internal/ors"
	"ors-matrix/internal/pipeline"
	"ors-matrix/pkg/utils"
)

// InputConfig names the pair table.
type InputConfig struct {
	// Path is a sqlite database or a .csv file. Empty selects the default
	// file in the data directory.
	Path  string
	Table string
}

type OutputConfig struct {
	Path string
}

// RunConfig controls chunking and parallelism.
type RunConfig struct {
	Iteration int64
	// WorkingMemory is the per-chunk memory budget in GiB.
	WorkingMemory float64
	BytesPerRow   int64
	Workers       int
}

// QueryConfig holds the routing parameters.
type QueryConfig struct {
	Optimized bool
	Metric    string
	Units     string
	Profile   string
	// Distance is the buffer size the input was generated with. It only
	// feeds the default file names.
	Distance int
}

// ORSConfig configures the routing service client.
type ORSConfig struct {
	URL                 string
	Key                 string
	Timeout             time.Duration
	RetryOverQueryLimit bool
	RetryMax            int
}

type StatusConfig struct {
	// Addr is the host:port of the status API. Empty disables it during a run.
	Addr string
}

type LogConfig struct {
	// Format is "text" or "json".
	Format string
	// Level is "none", "debug", "info", "warn" or "error".
	Level string
}

type Config struct {
	Input   InputConfig
	Output  OutputConfig
	DataDir string `mapstructure:"path"`
	Run     RunConfig
	Query   QueryConfig
	ORS     ORSConfig
	Status  StatusConfig
	Log     LogConfig
}

// DefaultConfig returns the configuration used when no flag, environment
// variable or config file overrides a value.
func DefaultConfig() *Config {
	return &Config{
		Input:   InputConfig{Table: "geodesic"},
		DataDir: "./data",
		Run: RunConfig{
			WorkingMemory: 0.1,
			BytesPerRow:   pipeline.DefaultBytesPerRow,
			Workers:       runtime.NumCPU(),
		},
		Query: QueryConfig{
			Optimized: true,
			Metric:    string(model.MetricDistance),
			Units:     string(model.UnitsKilometers),
			Profile:   "driving-car",
			Distance:  30,
		},
		ORS: ORSConfig{
			URL:                 ors.DefaultBaseURL,
			Timeout:             ors.DefaultTimeout,
			RetryOverQueryLimit: true,
			RetryMax:            ors.DefaultRetries,
		},
		Log: LogConfig{Format: "text", Level: "info"},
	}
}

// Verify validates every value before any store is opened.
func (c *Config) Verify() error {
	var errs []error
	if c.Run.Iteration < 0 {
		errs = append(errs, fmt.Errorf("iteration must be >= 0, got %d", c.Run.Iteration))
	}
	if c.Run.WorkingMemory <= 0 {
		errs = append(errs, fmt.Errorf("working memory must be > 0 GiB, got %v", c.Run.WorkingMemory))
	}
	if c.Run.BytesPerRow <= 0 {
		errs = append(errs, fmt.Errorf("bytes per row must be > 0, got %d", c.Run.BytesPerRow))
	}
	if c.Run.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Run.Workers))
	}
	if c.Input.Table == "" {
		errs = append(errs, errors.New("input table must not be empty"))
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ORS.URL == "" {
		errs = append(errs, errors.New("ors url must not be empty"))
	}
	if c.ORS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ors timeout must be > 0, got %v", c.ORS.Timeout))
	}
	if c.ORS.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("ors retry max must be >= 0, got %d", c.ORS.RetryMax))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Params returns the routing parameters shared by every row.
func (c *Config) Params() model.QueryParams {
	return model.QueryParams{
		Profile:   model.Profile(c.Query.Profile),
		Metric:    model.Metric(c.Query.Metric),
		Units:     model.Units(c.Query.Units),
		Optimized: c.Query.Optimized,
	}
}

// Chunksize returns the number of rows held in memory per chunk.
func (c *Config) Chunksize() int64 {
	return pipeline.PlanChunksize(pipeline.BudgetBytes(c.Run.WorkingMemory), c.Run.BytesPerRow)
}

// Settings returns the pipeline settings of this configuration.
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		Iteration: c.Run.Iteration,
		Chunksize: c.Chunksize(),
		Workers:   c.Run.Workers,
		Params:    c.Params(),
	}
}

// Client returns the routing service client configuration.
func (c *Config) Client() ors.Config {
	return ors.Config{
		BaseURL:             c.ORS.URL,
		APIKey:              c.ORS.Key,
		Timeout:             c.ORS.Timeout,
		RetryOverQueryLimit: c.ORS.RetryOverQueryLimit,
		RetryMax:            c.ORS.RetryMax,
	}
}

// Data returns the data directory helper.
func (c *Config) Data() *utils.DataDir { return utils.NewDataDir(c.DataDir) }

// InputPath resolves the input file.
func (c *Config) InputPath() string {
	if c.Input.Path == "" {
		return c.Data().GeodesicPath(c.Query.Distance, c.Query.Units)
	}
	return c.Data().Resolve(c.Input.Path)
}

// OutputPath resolves the output database.
func (c *Config) OutputPath() string {
	if c.Output.Path == "" {
		return c.Data().NetworkPath(c.Query.Distance, c.Query.Units)
	}
	return c.Data().Resolve(c.Output.Path)
}
