package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/Spok95/tutoring-platform/internal/app"
	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/logging"
)

var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "tutoring",
		Short:         "Бронирование уроков, журнал уроков и напоминания",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(cronCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(userCmd())
	root.AddCommand(tokensCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// bootstrap — конфиг, логгер и контейнер; общая часть всех команд, которым нужна БД.
func bootstrap() (*config.Config, *logging.Log, *dig.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	c, err := app.BuildContainer(cfg, log)
	if err != nil {
		log.Closer()
		return nil, nil, nil, err
	}
	return cfg, log, c, nil
}
