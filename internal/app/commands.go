package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/export"
	"github.com/Spok95/tutoring-platform/internal/httpapi"
	"github.com/Spok95/tutoring-platform/internal/ledger"
	"github.com/Spok95/tutoring-platform/internal/models"
)

// Migrations — операции над схемой для `tutoring migrate`.
func Migrations(ctx context.Context, c *dig.Container, action string) (int64, error) {
	var version int64
	err := c.Invoke(func(database *sqlx.DB) error {
		defer func() { _ = database.Close() }()
		var err error
		switch action {
		case "up":
			err = db.Migrate(ctx, database.DB)
		case "down":
			err = db.MigrateDown(ctx, database.DB)
		case "status":
			err = db.MigrationStatus(ctx, database.DB)
		default:
			return fmt.Errorf("unknown migrate action %q", action)
		}
		if err != nil {
			return err
		}
		version, err = db.MigrationVersion(ctx, database.DB)
		return err
	})
	return version, err
}

// ExportTokens пишет xlsx-выписку журнала уроков ученика в w.
func ExportTokens(ctx context.Context, c *dig.Container, studentID int64, w io.Writer) (string, error) {
	var name string
	err := c.Invoke(func(cfg *config.Config, users *db.Users, led *ledger.Service) error {
		u, err := users.Get(ctx, studentID)
		if err != nil {
			return err
		}
		events, err := led.History(ctx, studentID)
		if err != nil {
			return err
		}
		now := time.Now()
		f, err := export.TokenStatement(*u, events, cfg.Location, now)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		name = export.StatementFilename(u.Name, now)
		return export.Write(f, w)
	})
	return name, err
}

// CreateUser заводит пользователя и выпускает для него JWT (bootstrap без внешнего IdP).
func CreateUser(ctx context.Context, c *dig.Container, u models.User, ttl time.Duration) (int64, string, error) {
	var (
		id    int64
		token string
	)
	err := c.Invoke(func(cfg *config.Config, users *db.Users) error {
		var err error
		if id, err = users.Create(ctx, u); err != nil {
			return err
		}
		token, err = httpapi.GenerateToken(cfg.JWTSecret, id, u.Role, ttl)
		return err
	})
	return id, token, err
}

// IssueToken — JWT для существующего пользователя.
func IssueToken(ctx context.Context, c *dig.Container, userID int64, ttl time.Duration) (string, error) {
	var token string
	err := c.Invoke(func(cfg *config.Config, users *db.Users) error {
		u, err := users.Get(ctx, userID)
		if err != nil {
			return err
		}
		token, err = httpapi.GenerateToken(cfg.JWTSecret, u.ID, u.Role, ttl)
		return err
	})
	return token, err
}

// GrantTokens — ручное начисление уроков (поддержка, промо). ref делает операцию идемпотентной.
func GrantTokens(ctx context.Context, c *dig.Container, studentID int64, amount int, ref string) (bool, error) {
	var applied bool
	err := c.Invoke(func(led *ledger.Service) error {
		var err error
		applied, err = led.Grant(ctx, studentID, amount, ref)
		return err
	})
	return applied, err
}
