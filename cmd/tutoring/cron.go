package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutoring-platform/internal/app"
	"github.com/Spok95/tutoring-platform/internal/cronclient"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Напоминания и добор списаний",
	}
	cmd.AddCommand(cronRunCmd(), cronTriggerCmd())
	return cmd
}

// cron run — один проход напрямую через БД, без HTTP.
func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Выполнить один проход cron локально",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			rep, err := app.RunCron(cmd.Context(), c, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			return rep.Err()
		},
	}
}

// cron trigger — для внешнего планировщика: POST /v1/cron с общим секретом.
func cronTriggerCmd() *cobra.Command {
	var (
		baseURL string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Вызвать /v1/cron у работающего сервера",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				return errors.New("cron token is empty: pass --token or set CRON_TOKEN")
			}
			out, err := cronclient.Trigger(cmd.Context(), baseURL, token, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "адрес сервера")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CRON_TOKEN"), "общий секрет cron")
	cmd.Flags().DurationVar(&timeout, "timeout", cronclient.DefaultTimeout, "таймаут запроса")
	return cmd
}
