package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ors-matrix/internal/api"
	"ors-matrix/internal/config"
	"ors-matrix/internal/store"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API over an output database",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bind(v, cmd.Flags(), outputBindings)
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

			output, err := store.OpenOutputReadOnly(ctx, cfg.OutputPath())
			if err != nil {
				return err
			}
			defer output.Close()

			return api.NewRouter(output, nil, newRegistry(), logger).Start(ctx, cfg.Status.Addr)
		},
	}
	defineServeFlags(cmd.Flags())
	return cmd
}
