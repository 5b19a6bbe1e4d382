package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ors-matrix/internal/api"
	"ors-matrix/internal/config"
	"ors-matrix/internal/metrics"
	"ors-matrix/internal/ors"
	"ors-matrix/internal/pipeline"
	"ors-matrix/internal/store"
	"ors-matrix/pkg/utils"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Query the matrix endpoint for every input pair, chunk by chunk",
		Long: `Query the matrix endpoint for every input pair, chunk by chunk.

Each chunk is appended to the output database in one transaction. When a run fails,
the error names the chunk to pass to --iteration to resume.`,
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bind(v, cmd.Flags(), runBindings)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ReadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Verify(); err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = Run(ctx, cfg, logger, cmd.OutOrStdout())
			return err
		},
	}
	defineRunFlags(cmd.Flags())
	return cmd
}

// OpenInput opens path as a CSV file when it ends in .csv and as a sqlite
// database otherwise.
func OpenInput(ctx context.Context, path, table string) (pipeline.InputStore, error) {
	if utils.FileType(path) == "csv" {
		in, err := store.OpenCSVInput(path)
		if err != nil {
			return nil, err
		}
		return in, nil
	}
	in, err := store.OpenSQLiteInput(ctx, path, table)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Run executes one pipeline run for cfg, writing progress lines to progress.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, progress io.Writer) (pipeline.Summary, error) {
	if err := cfg.Data().Ensure(); err != nil {
		return pipeline.Summary{}, err
	}

	inPath, outPath := cfg.InputPath(), cfg.OutputPath()
	in, err := OpenInput(ctx, inPath, cfg.Input.Table)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("open input %s: %w", inPath, err)
	}
	output, err := store.OpenOutput(ctx, outPath)
	if err != nil {
		in.Close()
		return pipeline.Summary{}, fmt.Errorf("open output %s: %w", outPath, err)
	}
	defer output.Close()

	reg := newRegistry()
	tracker := pipeline.NewTracker(progress, logger, metrics.New(reg))

	if cfg.Status.Addr != "" {
		statusCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := api.NewRouter(output, tracker, reg, logger).Start(statusCtx, cfg.Status.Addr); err != nil {
				logger.Error("status server", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	settings := cfg.Settings()
	logger.Info("starting run",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.Int64("chunksize", settings.Chunksize),
		zap.Int("workers", settings.Workers),
		zap.Int64("iteration", settings.Iteration),
	)

	driver := pipeline.NewDriver(in, output, ors.NewClient(cfg.Client(), logger), settings,
		pipeline.WithLogger(logger),
		pipeline.WithTracker(tracker),
	)
	return driver.Run(ctx)
}
