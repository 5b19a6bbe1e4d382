// Package cli contains the commands of the orsmatrix binary.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ors-matrix/internal/config"
)

const envPrefix = "ORSMATRIX"

// NewRootCommand enables all children commands to read flags from CLI flags,
// environment variables prefixed with ORSMATRIX, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "orsmatrix",
		Short: "Batch distance and duration matrices from openrouteservice",
		Long: `orsmatrix reads coordinate pairs from a sqlite table or CSV file, queries the
openrouteservice matrix endpoint for both directions of every pair, and appends the
results to a sqlite database one chunk at a time.

A run interrupted at chunk N is resumed with --iteration N.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCommand(v), newServeCommand(v), newExportCommand(v))
	return root
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	configPaths := []string{"/etc/orsmatrix", "$HOME/.orsmatrix", "."}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}
	return v
}

// ReadConfig returns the configuration merged from defaults, config.yaml,
// environment variables and bound flags. A missing config.yaml is not an error.
func ReadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.DefaultConfig()

	v.SetTypeByDefaultValue(true)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
