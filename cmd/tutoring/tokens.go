package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutoring-platform/internal/app"
)

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Журнал уроков",
	}
	cmd.AddCommand(tokensGrantCmd())
	return cmd
}

func tokensGrantCmd() *cobra.Command {
	var (
		studentID int64
		amount    int
		ref       string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Начислить уроки ученику (повтор с тем же --ref ничего не меняет)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			applied, err := app.GrantTokens(cmd.Context(), c, studentID, amount, ref)
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintf(cmd.OutOrStdout(), "already granted: %s\n", ref)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d to student %d\n", amount, studentID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&studentID, "student", 0, "id ученика")
	cmd.Flags().IntVar(&amount, "amount", 0, "количество уроков")
	cmd.Flags().StringVar(&ref, "ref", "", "внешняя ссылка для идемпотентности (manual:<ticket>)")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}
