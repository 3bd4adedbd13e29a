package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

var (
	ErrSlotFull      = errors.New("slot is full")
	ErrAlreadyBooked = errors.New("slot already booked by this student")
	ErrNoTokens      = errors.New("no lesson tokens available")
)

const reservationColumns = `r.id, r.student_id, r.slot_id, r.created_at, r.cancelled_at`

const reservationDetailSelect = `
	SELECT ` + reservationColumns + `,
	       s.professor_id, s.week_start, s.day_of_week, s.hour, s.minute,
	       st.name AS student_name, st.email AS student_email,
	       p.name  AS professor_name, p.email AS professor_email
	FROM reservations r
	JOIN slots s  ON s.id = r.slot_id
	JOIN users st ON st.id = r.student_id
	JOIN users p  ON p.id = s.professor_id`

// ReservationOwner — кто записан, кто ведёт урок и когда он начинается.
type ReservationOwner struct {
	ReservationID int64     `db:"reservation_id"`
	StudentID     int64     `db:"student_id"`
	ProfessorID   int64     `db:"professor_id"`
	Cancelled     bool      `db:"cancelled"`
	WeekStart     time.Time `db:"week_start"`
	DayOfWeek     int       `db:"day_of_week"`
	Hour          int       `db:"hour"`
	Minute        int       `db:"minute"`
}

func (o ReservationOwner) StartsAt(loc *time.Location) time.Time {
	return schedule.StartsAt(o.WeekStart, schedule.Coord{DayOfWeek: o.DayOfWeek, Hour: o.Hour, Minute: o.Minute}, loc)
}

type Reservations struct {
	db *sqlx.DB
}

func NewReservations(database *sqlx.DB) *Reservations { return &Reservations{db: database} }

func (r *Reservations) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out models.Reservation
	if err := r.db.GetContext(ctx, &out, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *Reservations) GetDetail(ctx context.Context, id int64) (*models.ReservationDetail, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out models.ReservationDetail
	if err := r.db.GetContext(ctx, &out, reservationDetailSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

// ActiveDetailsBySlots — неотменённые брони по набору слотов.
func (r *Reservations) ActiveDetailsBySlots(ctx context.Context, slotIDs []int64) ([]models.ReservationDetail, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &out, reservationDetailSelect+`
		WHERE r.slot_id = ANY($1) AND r.cancelled_at IS NULL
		ORDER BY r.slot_id, r.id`, pq.Array(slotIDs)); err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}
	return out, nil
}

// MissingConsume — активные брони по слотам без события CONSUME.
// Брони, где преподаватель отметил отсутствие, не списываются никогда.
func (r *Reservations) MissingConsume(ctx context.Context, slotIDs []int64) ([]models.Reservation, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []models.Reservation
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+reservationColumns+`
		FROM reservations r
		WHERE r.slot_id = ANY($1)
		  AND r.cancelled_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM token_events e WHERE e.reservation_id = r.id AND e.type = 'CONSUME')
		  AND NOT EXISTS (SELECT 1 FROM student_evaluations ev WHERE ev.reservation_id = r.id AND ev.is_absent)
		ORDER BY r.id`, pq.Array(slotIDs))
	if err != nil {
		return nil, fmt.Errorf("missing consume: %w", err)
	}
	return out, nil
}

// Owners — владельцы броней; отсутствующих id в ответе нет.
func (r *Reservations) Owners(ctx context.Context, ids []int64) ([]ReservationOwner, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var out []ReservationOwner
	err := r.db.SelectContext(ctx, &out, `
		SELECT r.id AS reservation_id, r.student_id, s.professor_id, r.cancelled_at IS NOT NULL AS cancelled,
		       s.week_start, s.day_of_week, s.hour, s.minute
		FROM reservations r
		JOIN slots s ON s.id = r.slot_id
		WHERE r.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("reservation owners: %w", err)
	}
	return out, nil
}

// Book — запись ученика на слот. Строки ученика и слота блокируются, чтобы
// параллельные записи не превысили ни вместимость, ни число доступных уроков.
// Доступно = баланс − активные брони, по которым ещё не было списания.
func (r *Reservations) Book(ctx context.Context, studentID, slotID int64) (*models.Reservation, error) {
	var out models.Reservation
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var uid int64
		if err := tx.GetContext(ctx, &uid,
			`SELECT id FROM users WHERE id = $1 AND role = 'student' FOR UPDATE`, studentID); err != nil {
			return notFound(err)
		}

		// слот без строки доступности снят преподавателем, даже если сама строка слота осталась
		var capacity int
		if err := tx.GetContext(ctx, &capacity, `
			SELECT s.capacity FROM slots s
			WHERE s.id = $1
			  AND EXISTS (SELECT 1 FROM professor_availabilities a WHERE a.slot_id = s.id)
			FOR UPDATE`, slotID); err != nil {
			return notFound(err)
		}

		var taken int
		var mine bool
		if err := tx.QueryRowxContext(ctx, `
			SELECT count(*), COALESCE(bool_or(student_id = $2), false)
			FROM reservations
			WHERE slot_id = $1 AND cancelled_at IS NULL`, slotID, studentID).Scan(&taken, &mine); err != nil {
			return err
		}
		if mine {
			return ErrAlreadyBooked
		}
		if taken >= capacity {
			return ErrSlotFull
		}

		var available int
		if err := tx.GetContext(ctx, &available, `
			SELECT
			  (SELECT COALESCE(SUM(delta), 0) FROM token_events WHERE student_id = $1)
			  -
			  (SELECT count(*) FROM reservations r
			   WHERE r.student_id = $1 AND r.cancelled_at IS NULL
			     AND NOT EXISTS (SELECT 1 FROM token_events e WHERE e.reservation_id = r.id AND e.type = 'CONSUME'))`,
			studentID); err != nil {
			return err
		}
		if available <= 0 {
			return ErrNoTokens
		}

		return tx.GetContext(ctx, &out, `
			INSERT INTO reservations AS r (student_id, slot_id)
			VALUES ($1, $2)
			RETURNING `+reservationColumns, studentID, slotID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel — мягкая отмена; false, если бронь уже была отменена.
func (r *Reservations) Cancel(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET cancelled_at = now() WHERE id = $1 AND cancelled_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CancelBySlot — отменяет все активные брони слота и возвращает их.
func (r *Reservations) CancelBySlot(ctx context.Context, slotID int64) ([]models.ReservationDetail, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `
		UPDATE reservations SET cancelled_at = now()
		WHERE slot_id = $1 AND cancelled_at IS NULL
		RETURNING id`, slotID); err != nil {
		return nil, fmt.Errorf("cancel by slot: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var out []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &out, reservationDetailSelect+` WHERE r.id = ANY($1) ORDER BY r.id`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("cancelled details: %w", err)
	}
	return out, nil
}
