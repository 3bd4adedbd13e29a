package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/Spok95/tutoring-platform/internal/app"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Выгрузки в xlsx",
	}
	cmd.AddCommand(exportTokensCmd())
	return cmd
}

func exportTokensCmd() *cobra.Command {
	var (
		studentID int64
		output    string
	)
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Выписка журнала уроков ученика",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			if output == "" {
				// имя файла известно только после чтения ученика
				tmp, err := os.CreateTemp(".", ".statement-*.xlsx")
				if err != nil {
					return err
				}
				name, err := writeStatement(cmd, c, studentID, tmp)
				if err != nil {
					_ = os.Remove(tmp.Name())
					return err
				}
				if err := os.Rename(tmp.Name(), name); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := writeStatement(cmd, c, studentID, f); err != nil {
				_ = os.Remove(output)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().Int64Var(&studentID, "student", 0, "id ученика")
	cmd.Flags().StringVarP(&output, "output", "o", "", "файл (по умолчанию — имя выписки в текущем каталоге)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func writeStatement(cmd *cobra.Command, c *dig.Container, studentID int64, f *os.File) (string, error) {
	w := bufio.NewWriter(f)
	name, err := app.ExportTokens(cmd.Context(), c, studentID, w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return name, err
}
