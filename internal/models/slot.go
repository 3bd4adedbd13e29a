package models

import (
	"time"

	"github.com/Spok95/tutoring-platform/internal/schedule"
)

// Slot — бронируемая координата недели у конкретного преподавателя.
type Slot struct {
	ID             int64      `db:"id" json:"id"`
	ProfessorID    int64      `db:"professor_id" json:"professorId"`
	WeekStart      time.Time  `db:"week_start" json:"weekStart"`
	DayOfWeek      int        `db:"day_of_week" json:"dayOfWeek"`
	Hour           int        `db:"hour" json:"hour"`
	Minute         int        `db:"minute" json:"minute"`
	RoomID         *string    `db:"room_id" json:"roomId"`
	Capacity       int        `db:"capacity" json:"capacity"`
	ReminderSentAt *time.Time `db:"reminder_sent_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

func (s Slot) Coord() schedule.Coord {
	return schedule.Coord{DayOfWeek: s.DayOfWeek, Hour: s.Hour, Minute: s.Minute}
}

func (s Slot) StartsAt(loc *time.Location) time.Time {
	return schedule.StartsAt(s.WeekStart, s.Coord(), loc)
}

// Availability — заявленная готовность преподавателя вести урок в координате недели.
type Availability struct {
	ID          int64     `db:"id" json:"id"`
	ProfessorID int64     `db:"professor_id" json:"professorId"`
	WeekStart   time.Time `db:"week_start" json:"weekStart"`
	DayOfWeek   int       `db:"day_of_week" json:"dayOfWeek"`
	Hour        int       `db:"hour" json:"hour"`
	Minute      int       `db:"minute" json:"minute"`
	SlotID      *int64    `db:"slot_id" json:"slotId"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

func (a Availability) Coord() schedule.Coord {
	return schedule.Coord{DayOfWeek: a.DayOfWeek, Hour: a.Hour, Minute: a.Minute}
}

type Reservation struct {
	ID          int64      `db:"id" json:"id"`
	StudentID   int64      `db:"student_id" json:"studentId"`
	SlotID      int64      `db:"slot_id" json:"slotId"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelledAt"`
}

func (r Reservation) Active() bool { return r.CancelledAt == nil }

// ReservationDetail — бронь вместе со слотом и участниками (для напоминаний и писем).
type ReservationDetail struct {
	Reservation
	ProfessorID    int64     `db:"professor_id"`
	WeekStart      time.Time `db:"week_start"`
	DayOfWeek      int       `db:"day_of_week"`
	Hour           int       `db:"hour"`
	Minute         int       `db:"minute"`
	StudentName    string    `db:"student_name"`
	StudentEmail   string    `db:"student_email"`
	ProfessorName  string    `db:"professor_name"`
	ProfessorEmail string    `db:"professor_email"`
}

func (d ReservationDetail) StartsAt(loc *time.Location) time.Time {
	return schedule.StartsAt(d.WeekStart, schedule.Coord{DayOfWeek: d.DayOfWeek, Hour: d.Hour, Minute: d.Minute}, loc)
}
