package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
)

// Tokens — хранилище журнала уроков. Пишет в token_events только ledger.
type Tokens struct {
	db *sqlx.DB
}

func NewTokens(database *sqlx.DB) *Tokens { return &Tokens{db: database} }

// Append — вставка события, если она не нарушает ни один уникальный индекс
// (одно CONSUME/REFUND на бронь, один external_ref). false — такое событие уже есть.
func (r *Tokens) Append(ctx context.Context, ev models.TokenEvent) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO token_events (id, student_id, reservation_id, type, delta, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
		ev.ID, ev.StudentID, ev.ReservationID, string(ev.Type), ev.Delta, ev.ExternalRef, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append %s: %w", ev.Type, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *Tokens) Balance(ctx context.Context, studentID int64) (int, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var sum int
	if err := r.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(delta), 0) FROM token_events WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return sum, nil
}

func (r *Tokens) History(ctx context.Context, studentID int64) ([]models.TokenEvent, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.TokenEvent
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, student_id, reservation_id, type, delta, external_ref, created_at
		FROM token_events
		WHERE student_id = $1
		ORDER BY created_at, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return out, nil
}

func (r *Tokens) HasEvent(ctx context.Context, reservationID int64, t models.TokenEventType) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var ok bool
	err := r.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM token_events WHERE reservation_id = $1 AND type = $2)`,
		reservationID, string(t))
	if err != nil {
		return false, fmt.Errorf("has %s: %w", t, err)
	}
	return ok, nil
}
