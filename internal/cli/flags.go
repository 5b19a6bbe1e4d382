package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ors-matrix/internal/config"
)

// mustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func mustBindEnv(v *viper.Viper, input ...string) {
	if err := v.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// binding ties a config key to a flag name and an environment variable.
type binding struct {
	key  string
	flag string
	env  string
}

// Bindings are applied when a command runs, so that run and serve can
// define the same flag without the last definition winning.
func bind(v *viper.Viper, flags *pflag.FlagSet, bindings []binding) {
	for _, b := range bindings {
		mustBindPFlag(v, b.key, flags.Lookup(b.flag))
		mustBindEnv(v, b.key, b.env)
	}
}

var outputBindings = []binding{
	{"output.path", "out", "ORSMATRIX_OUT"},
	{"path", "path", "ORSMATRIX_PATH"},
	{"query.distance", "distance", "ORSMATRIX_DISTANCE"},
	{"query.units", "units", "ORSMATRIX_UNITS"},
	{"status.addr", "status-addr", "ORSMATRIX_STATUS_ADDR"},
	{"log.format", "log-format", "ORSMATRIX_LOG_FORMAT"},
	{"log.level", "log-level", "ORSMATRIX_LOG_LEVEL"},
}

var runBindings = append([]binding{
	{"input.path", "in", "ORSMATRIX_IN"},
	{"input.table", "table", "ORSMATRIX_TABLE"},
	{"run.iteration", "iteration", "ORSMATRIX_ITERATION"},
	{"run.workingMemory", "working-memory", "ORSMATRIX_WORKING_MEMORY"},
	{"run.bytesPerRow", "bytes-per-row", "ORSMATRIX_BYTES_PER_ROW"},
	{"run.workers", "workers", "ORSMATRIX_WORKERS"},
	{"query.optimized", "optimized", "ORSMATRIX_OPTIMIZED"},
	{"query.metric", "metric", "ORSMATRIX_METRIC"},
	{"query.profile", "profile", "ORSMATRIX_PROFILE"},
	{"ors.url", "ors-url", "ORSMATRIX_ORS_URL"},
	{"ors.key", "ors-key", "ORSMATRIX_ORS_KEY"},
	{"ors.timeout", "ors-timeout", "ORSMATRIX_ORS_TIMEOUT"},
	{"ors.retryOverQueryLimit", "ors-retry-over-query-limit", "ORSMATRIX_ORS_RETRY_OVER_QUERY_LIMIT"},
	{"ors.retryMax", "ors-retry-max", "ORSMATRIX_ORS_RETRY_MAX"},
}, outputBindings...)

// defineOutputFlags defines the flags shared by run and serve.
func defineOutputFlags(flags *pflag.FlagSet, defaults *config.Config, statusAddr, statusUsage string) {
	flags.StringP("out", "o", defaults.Output.Path, "output sqlite database (default: derived from --path, --distance and --units)")
	flags.StringP("path", "d", defaults.DataDir, "data directory for default input and output files")
	flags.Int("distance", defaults.Query.Distance, "buffer distance of the input, used in default file names")
	flags.StringP("units", "u", defaults.Query.Units, "distance units: m, km or mi")
	flags.String("status-addr", statusAddr, statusUsage)
	flags.String("log-format", defaults.Log.Format, "the log format to output logs in: text or json")
	flags.String("log-level", defaults.Log.Level, "the log level to use: none, debug, info, warn or error")
}

func defineRunFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultConfig()

	flags.StringP("in", "f", defaults.Input.Path, "input sqlite database or .csv file (default: derived from --path, --distance and --units)")
	flags.StringP("table", "t", defaults.Input.Table, "input table holding the coordinate pairs")
	flags.Int64P("iteration", "i", defaults.Run.Iteration, "first chunk index to process; resume from the chunk a failed run names")
	flags.Float64P("working-memory", "w", defaults.Run.WorkingMemory, "memory budget per chunk in GiB")
	flags.Int64("bytes-per-row", defaults.Run.BytesPerRow, "estimated in-memory size of one pair row")
	flags.Int("workers", defaults.Run.Workers, "maximum concurrent workers per chunk")
	flags.Bool("optimized", defaults.Query.Optimized, "let the routing service use its optimized graph")
	flags.StringP("metric", "m", defaults.Query.Metric, "matrix metric: distance or duration")
	flags.StringP("profile", "p", defaults.Query.Profile, "routing profile")
	flags.String("ors-url", defaults.ORS.URL, "base URL of the openrouteservice instance")
	flags.String("ors-key", defaults.ORS.Key, "API key sent in the Authorization header")
	flags.Duration("ors-timeout", defaults.ORS.Timeout, "timeout of one matrix request")
	flags.Bool("ors-retry-over-query-limit", defaults.ORS.RetryOverQueryLimit, "retry HTTP 429 responses with exponential backoff")
	flags.Int("ors-retry-max", defaults.ORS.RetryMax, "maximum retries of an over-query-limit response")

	defineOutputFlags(flags, defaults, defaults.Status.Addr, "serve the status API on this host:port during the run (disabled when empty)")
}

const defaultServeAddr = ":8090"

func defineServeFlags(flags *pflag.FlagSet) {
	defineOutputFlags(flags, config.DefaultConfig(), defaultServeAddr, "the host:port address to serve the status API on")
}
