package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/app"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API (и встроенный cron, если задан CRON_INTERVAL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, cfg.Release)
			if err != nil {
				log.Base.Warn("sentry init failed", zap.Error(err))
			}
			defer flush()

			log.Base.Info("starting", zap.String("env", cfg.Env), zap.String("version", cmd.Root().Version))
			if err := app.Serve(cmd.Context(), c); err != nil {
				observability.CaptureErr(err)
				return err
			}
			log.Base.Info("stopped")
			return nil
		},
	}
}
