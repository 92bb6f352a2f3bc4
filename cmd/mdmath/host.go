package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/logging"
	"github.com/Thiago4532/mdmath.nvim/internal/nvimhost"
)

func newHostCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Serve the mdmath.nvim plugin over stdio",
		Long: `Runs as a Neovim RPC host. Neovim starts it as a job and talks msgpack-rpc
over stdin and stdout, so logs only go to the configured log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log, "")
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("host starting", zap.String("version", version))
			return nvimhost.Serve(ctx, nvimhost.Options{
				Config:     cfg,
				ConfigPath: path,
				Logger:     logger,
				In:         os.Stdin,
				Out:        os.Stdout,
			})
		},
	}
}
