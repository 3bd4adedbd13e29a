package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const slotColumns = `s.id, s.professor_id, s.week_start, s.day_of_week, s.hour, s.minute, s.room_id, s.capacity, s.reminder_sent_at, s.created_at`

type Slots struct {
	db *sqlx.DB
}

func NewSlots(database *sqlx.DB) *Slots { return &Slots{db: database} }

func (r *Slots) Get(ctx context.Context, id int64) (*models.Slot, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var s models.Slot
	if err := r.db.GetContext(ctx, &s, `SELECT `+slotColumns+` FROM slots s WHERE s.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// DueForReminder — слоты дня недели, по которым ещё не слали напоминание
// и есть хотя бы одна активная бронь. Точное окно по времени считает вызывающий.
func (r *Slots) DueForReminder(ctx context.Context, weekStart time.Time, dayOfWeek int) ([]models.Slot, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.Slot
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.week_start = $1
		  AND s.day_of_week = $2
		  AND s.reminder_sent_at IS NULL
		  AND EXISTS (SELECT 1 FROM reservations r WHERE r.slot_id = s.id AND r.cancelled_at IS NULL)
		ORDER BY s.hour, s.minute`, weekStart, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("due for reminder: %w", err)
	}
	return out, nil
}

// BookedInWeeks — слоты с активными бронями в неделях [fromWeek, toWeek].
func (r *Slots) BookedInWeeks(ctx context.Context, fromWeek, toWeek time.Time) ([]models.Slot, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.Slot
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.week_start BETWEEN $1 AND $2
		  AND EXISTS (SELECT 1 FROM reservations r WHERE r.slot_id = s.id AND r.cancelled_at IS NULL)
		ORDER BY s.week_start, s.day_of_week, s.hour, s.minute`, fromWeek, toWeek)
	if err != nil {
		return nil, fmt.Errorf("booked in weeks: %w", err)
	}
	return out, nil
}

// ClaimReminder — атомарно помечает слот как «напомнили». true — мы первые.
func (r *Slots) ClaimReminder(ctx context.Context, slotID int64) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE slots
		SET reminder_sent_at = now()
		WHERE id = $1 AND reminder_sent_at IS NULL`, slotID)
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
