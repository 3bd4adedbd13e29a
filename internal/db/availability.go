package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

const availabilityColumns = `id, professor_id, week_start, day_of_week, hour, minute, slot_id, created_at`

// AvailabilityPlan — по текущим строкам недели решает, что удалить и что добавить.
// Вызывается внутри транзакции, строки недели уже заблокированы.
type AvailabilityPlan func(existing []models.Availability) (removeIDs []int64, add []schedule.Coord)

type Availabilities struct {
	db *sqlx.DB
}

func NewAvailabilities(database *sqlx.DB) *Availabilities { return &Availabilities{db: database} }

func (r *Availabilities) List(ctx context.Context, professorID int64, weekStart time.Time) ([]models.Availability, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.Availability
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+availabilityColumns+`
		FROM professor_availabilities
		WHERE professor_id = $1 AND week_start = $2
		ORDER BY day_of_week, hour, minute`, professorID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("list availabilities: %w", err)
	}
	return out, nil
}

// Reconcile — удаление и вставка одной транзакцией. Для каждой новой строки
// заводится (или переиспользуется) бронируемый слот; слот удалённой строки
// удаляется, только если на него никто никогда не записывался.
func (r *Availabilities) Reconcile(ctx context.Context, professorID int64, weekStart time.Time, plan AvailabilityPlan) (added, removed int, err error) {
	err = inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing []models.Availability
		if err := tx.SelectContext(ctx, &existing, `
			SELECT `+availabilityColumns+`
			FROM professor_availabilities
			WHERE professor_id = $1 AND week_start = $2
			FOR UPDATE`, professorID, weekStart); err != nil {
			return fmt.Errorf("load availabilities: %w", err)
		}

		removeIDs, add := plan(existing)

		if len(removeIDs) > 0 {
			var slotIDs []int64
			if err := tx.SelectContext(ctx, &slotIDs, `
				WITH d AS (
					DELETE FROM professor_availabilities
					WHERE professor_id = $1 AND id = ANY($2)
					RETURNING slot_id
				)
				SELECT slot_id FROM d WHERE slot_id IS NOT NULL`,
				professorID, pq.Array(removeIDs)); err != nil {
				return fmt.Errorf("delete availabilities: %w", err)
			}
			removed = len(removeIDs)

			if len(slotIDs) > 0 {
				if _, err := tx.ExecContext(ctx, `
					DELETE FROM slots s
					WHERE s.id = ANY($1)
					  AND NOT EXISTS (SELECT 1 FROM reservations r WHERE r.slot_id = s.id)`,
					pq.Array(slotIDs)); err != nil {
					return fmt.Errorf("delete free slots: %w", err)
				}
			}
		}

		if len(add) == 0 {
			return nil
		}

		slotStmt, err := tx.PreparexContext(ctx, `
			INSERT INTO slots (professor_id, week_start, day_of_week, hour, minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (professor_id, week_start, day_of_week, hour, minute)
			DO UPDATE SET professor_id = EXCLUDED.professor_id
			RETURNING id`)
		if err != nil {
			return err
		}
		defer func() { _ = slotStmt.Close() }()

		availStmt, err := tx.PreparexContext(ctx, `
			INSERT INTO professor_availabilities (professor_id, week_start, day_of_week, hour, minute, slot_id)
			VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return err
		}
		defer func() { _ = availStmt.Close() }()

		for _, c := range add {
			var slotID int64
			if err := slotStmt.QueryRowxContext(ctx, professorID, weekStart, c.DayOfWeek, c.Hour, c.Minute).Scan(&slotID); err != nil {
				return fmt.Errorf("upsert slot %s: %w", c.Key(), err)
			}
			if _, err := availStmt.ExecContext(ctx, professorID, weekStart, c.DayOfWeek, c.Hour, c.Minute, slotID); err != nil {
				return fmt.Errorf("insert availability %s: %w", c.Key(), err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, removed, nil
}
