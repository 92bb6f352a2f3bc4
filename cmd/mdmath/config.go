package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thiago4532/mdmath.nvim/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration mdmath would run with: built-in defaults, then the
configuration file, then MDMATH_* environment variables and flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.load()
			if err != nil {
				return err
			}
			f := config.Format(format)
			if f != config.FormatTOML && f != config.FormatYAML {
				return fmt.Errorf("%w: %q", config.ErrUnknownFormat, format)
			}
			out := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(out, "# %s\n", path)
			}
			return config.Encode(out, f, cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(config.FormatTOML), "Output format: toml or yaml")
	return cmd
}
