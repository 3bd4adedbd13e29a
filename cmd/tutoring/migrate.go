package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutoring-platform/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Миграции схемы БД",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			version, err := app.Migrations(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	}
}
