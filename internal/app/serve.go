package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/cron"
	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/httpapi"
	"github.com/Spok95/tutoring-platform/internal/jobs"
	"github.com/Spok95/tutoring-platform/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type serveParams struct {
	dig.In

	Config *config.Config
	Log    *logging.Log
	DB     *sqlx.DB
	Server *httpapi.Server
	Cron   *cron.Service
}

// Serve — миграции, HTTP-сервер и (если задан CRON_INTERVAL) встроенный планировщик.
// Возвращается после отмены ctx и остановки всех частей.
func Serve(ctx context.Context, c *dig.Container) error {
	return c.Invoke(func(p serveParams) error {
		log := p.Log.Named("app")
		defer func() { _ = p.DB.Close() }()

		if err := db.Migrate(ctx, p.DB.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			log.Info("http server started", zap.String("addr", p.Config.HTTPAddr))
			return p.Server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shCtx, cancel := ctxutil.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			log.Info("shutting down http server")
			return p.Server.Shutdown(shCtx)
		})

		if p.Config.CronInterval > 0 {
			runner := jobs.New(gctx, p.Log.Named("jobs"))
			runner.Every(p.Config.CronInterval, "cron", func(ctx context.Context) error {
				return p.Cron.Run(ctx, time.Now()).Err()
			})
			log.Info("in-process cron enabled", zap.Duration("interval", p.Config.CronInterval))
			g.Go(func() error {
				<-gctx.Done()
				runner.Wait()
				return nil
			})
		}

		return g.Wait()
	})
}

// RunCron — один проход cron (для `tutoring cron run`).
func RunCron(ctx context.Context, c *dig.Container, now time.Time) (cron.Report, error) {
	var rep cron.Report
	err := c.Invoke(func(svc *cron.Service) {
		rep = svc.Run(ctx, now)
	})
	return rep, err
}
