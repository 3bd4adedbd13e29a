// Package booking — запись учеников на слоты и отмены (учеником или преподавателем).
package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/notify"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

type SlotFinder interface {
	Get(ctx context.Context, id int64) (*models.Slot, error)
}

type ReservationStore interface {
	Book(ctx context.Context, studentID, slotID int64) (*models.Reservation, error)
	GetDetail(ctx context.Context, id int64) (*models.ReservationDetail, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	CancelBySlot(ctx context.Context, slotID int64) ([]models.ReservationDetail, error)
}

type Refunder interface {
	Refund(ctx context.Context, reservationID int64) (bool, error)
}

type Mailer interface {
	SendSlotConfirmationEmail(ctx context.Context, l notify.Lesson) (notify.EmailResult, error)
	SendProfessorCancellationEmail(ctx context.Context, l notify.Lesson) (notify.EmailResult, error)
}

// SlotCancellation — итог отмены слота преподавателем.
type SlotCancellation struct {
	Cancelled  int `json:"cancelled"`
	Refunded   int `json:"refunded"`
	EmailsSent int `json:"emailsSent"`
}

type Service struct {
	slots        SlotFinder
	reservations ReservationStore
	ledger       Refunder
	mail         Mailer
	loc          *time.Location
	log          *zap.Logger
	now          func() time.Time
}

func New(slots SlotFinder, reservations ReservationStore, ledger Refunder, mail Mailer, loc *time.Location, log *zap.Logger) *Service {
	return &Service{
		slots:        slots,
		reservations: reservations,
		ledger:       ledger,
		mail:         mail,
		loc:          loc,
		log:          log,
		now:          time.Now,
	}
}

// Reserve — записать ученика на будущий слот. Вместимость и число доступных уроков
// проверяются под блокировкой в хранилище; письмо-подтверждение не влияет на результат.
func (s *Service) Reserve(ctx context.Context, studentID, slotID int64) (*models.Reservation, error) {
	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("slot %d not found", slotID)
		}
		return nil, apperr.Internal("load slot", err)
	}
	if !slot.StartsAt(s.loc).After(s.now()) {
		return nil, apperr.Conflict("slot %d has already started", slotID)
	}

	res, err := s.reservations.Book(ctx, studentID, slotID)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound("student %d or slot %d not found", studentID, slotID)
	case errors.Is(err, db.ErrAlreadyBooked):
		return nil, apperr.Conflict("slot %d already booked", slotID)
	case errors.Is(err, db.ErrSlotFull):
		return nil, apperr.Conflict("slot %d is full", slotID)
	case errors.Is(err, db.ErrNoTokens):
		return nil, apperr.Conflict("insufficient tokens")
	default:
		return nil, apperr.Internal("book slot", err)
	}

	s.log.Info("slot booked",
		zap.Int64("reservation_id", res.ID), zap.Int64("student_id", studentID), zap.Int64("slot_id", slotID))

	if d, err := s.reservations.GetDetail(ctx, res.ID); err != nil {
		s.log.Warn("confirmation email skipped", zap.Int64("reservation_id", res.ID), zap.Error(err))
	} else {
		s.email(ctx, "booking.confirmation", *d, s.mail.SendSlotConfirmationEmail)
	}
	return res, nil
}

// Cancel — отмена брони её владельцем до начала урока; списанный урок возвращается.
// Повторная отмена ничего не меняет.
func (s *Service) Cancel(ctx context.Context, studentID, reservationID int64) error {
	d, err := s.reservations.GetDetail(ctx, reservationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("reservation %d not found", reservationID)
		}
		return apperr.Internal("load reservation", err)
	}
	if d.StudentID != studentID {
		return apperr.Forbidden("reservation %d does not belong to student %d", reservationID, studentID)
	}
	if d.Active() {
		if !d.StartsAt(s.loc).After(s.now()) {
			return apperr.Conflict("lesson of reservation %d has already started", reservationID)
		}
		changed, err := s.reservations.Cancel(ctx, reservationID)
		if err != nil {
			return apperr.Internal("cancel reservation", err)
		}
		if changed {
			s.log.Info("reservation cancelled", zap.Int64("reservation_id", reservationID), zap.Int64("student_id", studentID))
		}
	}

	// урок мог быть списан заранее; возврат идемпотентен, повторная отмена добирает его после сбоя
	refunded, err := s.ledger.Refund(ctx, reservationID)
	if err != nil {
		s.log.Error("refund failed", zap.Int64("reservation_id", reservationID), zap.Error(err))
		observability.CaptureErrWith(err, map[string]string{"op": "booking.refund"})
		return apperr.Internal("refund cancelled reservation", err)
	}
	if refunded {
		s.log.Info("lesson refunded on cancel", zap.Int64("reservation_id", reservationID))
	}
	return nil
}

// CancelSlot — преподаватель снимает урок: все брони отменяются, списанные уроки
// возвращаются, ученики получают письмо. Сбой по одному ученику не останавливает остальных.
func (s *Service) CancelSlot(ctx context.Context, professorID, slotID int64) (SlotCancellation, error) {
	var out SlotCancellation

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return out, apperr.NotFound("slot %d not found", slotID)
		}
		return out, apperr.Internal("load slot", err)
	}
	if slot.ProfessorID != professorID {
		return out, apperr.Forbidden("slot %d is not taught by professor %d", slotID, professorID)
	}

	cancelled, err := s.reservations.CancelBySlot(ctx, slotID)
	if err != nil {
		return out, apperr.Internal("cancel slot reservations", err)
	}
	out.Cancelled = len(cancelled)

	for _, d := range cancelled {
		refunded, err := s.ledger.Refund(ctx, d.ID)
		if err != nil {
			s.log.Error("refund failed", zap.Int64("reservation_id", d.ID), zap.Error(err))
			observability.CaptureErrWith(err, map[string]string{"op": "booking.refund"})
		} else if refunded {
			out.Refunded++
		}
		if s.email(ctx, "booking.cancellation", d, s.mail.SendProfessorCancellationEmail) {
			out.EmailsSent++
		}
	}

	s.log.Info("slot cancelled by professor",
		zap.Int64("slot_id", slotID), zap.Int64("professor_id", professorID),
		zap.Int("cancelled", out.Cancelled), zap.Int("refunded", out.Refunded))
	return out, nil
}

type sendFunc func(ctx context.Context, l notify.Lesson) (notify.EmailResult, error)

func (s *Service) email(ctx context.Context, op string, d models.ReservationDetail, send sendFunc) bool {
	_, err := send(ctx, notify.Lesson{
		To:        d.StudentEmail,
		Student:   d.StudentName,
		Professor: d.ProfessorName,
		StartsAt:  d.StartsAt(s.loc),
	})
	if err != nil {
		metrics.Notification("email", "failed")
		s.log.Warn("email failed", zap.String("op", op), zap.Int64("reservation_id", d.ID), zap.Error(err))
		observability.CaptureErrWith(err, map[string]string{"op": op})
		return false
	}
	metrics.Notification("email", "sent")
	return true
}
