package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/tutoring-platform/internal/app"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const defaultTokenTTL = 30 * 24 * time.Hour

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Пользователи и их JWT",
	}
	cmd.AddCommand(userCreateCmd(), userTokenCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var (
		role, name, email, phone string
		ttl                      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Завести пользователя и выпустить JWT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := models.Role(role)
			switch r {
			case models.Student, models.Professor, models.Admin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			u := models.User{Role: r, Name: name, Email: email}
			if phone != "" {
				u.Phone = &phone
			}

			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			id, token, err := app.CreateUser(cmd.Context(), c, u, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %d\ntoken: %s\n", id, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.Student), "student|professor|admin")
	cmd.Flags().StringVar(&name, "name", "", "имя")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "телефон (для SMS преподавателю)")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "срок жизни JWT")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить JWT существующему пользователю",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, c, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Closer()

			token, err := app.IssueToken(cmd.Context(), c, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "id", 0, "id пользователя")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "срок жизни JWT")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
