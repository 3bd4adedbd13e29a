//go:build testutil
// +build testutil

// Package testdb поднимает одноразовый Postgres в контейнере и накатывает миграции.
package testdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/models"
)

type DBHandle struct {
	DB     *sqlx.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("tutoring"),
		postgres.WithUsername("tutoring"),
		postgres.WithPassword("tutoring"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	database, err := db.Open(ctx, uri)
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	if err := db.Migrate(ctx, database.DB); err != nil {
		_ = database.Close()
		_ = pg.Terminate(ctx)
		cancel()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DBHandle{
		DB:     database,
		cancel: cancel,
		stop:   pg.Terminate,
	}, nil
}

// MustStart — Start для тестов: контейнер гасится в t.Cleanup.
func MustStart(t *testing.T) *DBHandle {
	t.Helper()
	h, err := Start(context.Background())
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

// SeedUser — пользователь с уникальным email.
func SeedUser(t *testing.T, database *sqlx.DB, role models.Role, name string) int64 {
	t.Helper()
	id, err := db.NewUsers(database).Create(context.Background(), models.User{
		Role:  role,
		Name:  name,
		Email: fmt.Sprintf("%s-%d@example.test", role, time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}
