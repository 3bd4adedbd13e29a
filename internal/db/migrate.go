package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/Spok95/tutoring-platform/internal/db/migrations"
)

func init() {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		panic(err)
	}
}

// Migrate — накатить все миграции вверх.
func Migrate(ctx context.Context, database *sql.DB) error {
	if err := goose.UpContext(ctx, database, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// MigrateDown — откатить одну миграцию.
func MigrateDown(ctx context.Context, database *sql.DB) error {
	if err := goose.DownContext(ctx, database, "."); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

func MigrationStatus(ctx context.Context, database *sql.DB) error {
	return goose.StatusContext(ctx, database, ".")
}

func MigrationVersion(ctx context.Context, database *sql.DB) (int64, error) {
	return goose.GetDBVersionContext(ctx, database)
}
