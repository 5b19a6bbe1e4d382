package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ors-matrix/internal/store"
)

var exportBindings = append([]binding{
	{"export.format", "format", "ORSMATRIX_EXPORT_FORMAT"},
	{"export.file", "file", "ORSMATRIX_EXPORT_FILE"},
}, outputBindings...)

func newExportCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the measurement table of an output database as CSV or JSON lines",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, _ []string) {
			bind(v, cmd.Flags(), exportBindings)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ReadConfig(v)
			if err != nil {
				return err
			}
			format := v.GetString("export.format")
			if err := store.ValidateFormat(format); err != nil {
				return err
			}
			return exportTable(cmd, cfg.OutputPath(), format, v.GetString("export.file"))
		},
	}
	flags := cmd.Flags()
	flags.String("format", store.FormatCSV, "export format: csv or json")
	flags.String("file", "-", "destination file, - for stdout")
	defineServeFlags(flags)
	return cmd
}

func exportTable(cmd *cobra.Command, path, format, file string) (err error) {
	ctx := cmd.Context()
	output, err := store.OpenOutputReadOnly(ctx, path)
	if err != nil {
		return err
	}
	defer output.Close()

	var w io.Writer = cmd.OutOrStdout()
	if file != "" && file != "-" {
		f, ferr := os.Create(file)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", file, cerr)
			}
		}()
		w = f
	}
	n, err := output.Export(ctx, w, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "💾 Exported %d records from %s\n", n, path)
	return nil
}
