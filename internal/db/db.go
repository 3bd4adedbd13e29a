package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
)

// ErrNotFound — строки нет. Репозитории не протаскивают sql.ErrNoRows наружу.
var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// inTx — транзакция READ COMMITTED; откат, если fn вернула ошибку или commit не прошёл.
func inTx(ctx context.Context, database *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := database.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
