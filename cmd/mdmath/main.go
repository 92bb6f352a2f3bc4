// Package main is the entry point for mdmath: the Neovim render host and a
// standalone renderer for Markdown files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thiago4532/mdmath.nvim/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "mdmath",
		Short: "Render LaTeX equations of Markdown buffers as terminal images",
		Long: `mdmath finds the equations of Markdown documents, has them rendered by an
external worker process and shows the images in the terminal.

Run "mdmath host" from Neovim to serve the mdmath.nvim plugin, or
"mdmath render FILE" to render a file from the shell.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file")

	root.AddCommand(
		newHostCmd(opts),
		newRenderCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and applies the logging flags. It returns
// the path the configuration came from.
func (o *rootOptions) load() (config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mdmath %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
