// Package ledger — журнал уроков ученика: выдача, списание за урок, возврат, сгорание.
// Баланс всегда выводится из событий; списание по брони происходит не более одного раза.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/models"
)

// Store — хранилище событий. Append обязан быть атомарной условной вставкой:
// конфликт по уникальности (CONSUME/REFUND на бронь, external_ref) даёт false без ошибки.
type Store interface {
	Append(ctx context.Context, ev models.TokenEvent) (bool, error)
	Balance(ctx context.Context, studentID int64) (int, error)
	History(ctx context.Context, studentID int64) ([]models.TokenEvent, error)
	HasEvent(ctx context.Context, reservationID int64, t models.TokenEventType) (bool, error)
}

// ReservationFinder — ledger не знает про слоты, ему нужна только принадлежность брони.
type ReservationFinder interface {
	Get(ctx context.Context, id int64) (*models.Reservation, error)
}

type Service struct {
	store        Store
	reservations ReservationFinder
	log          *zap.Logger
	now          func() time.Time
}

func New(store Store, reservations ReservationFinder, log *zap.Logger) *Service {
	return &Service{store: store, reservations: reservations, log: log, now: time.Now}
}

// Consume — списать урок за бронь. Повторный вызов по той же брони — тихий no-op.
func (s *Service) Consume(ctx context.Context, studentID, reservationID int64) error {
	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("reservation %d not found", reservationID)
		}
		return fmt.Errorf("consume: load reservation: %w", err)
	}
	if res.StudentID != studentID {
		return apperr.Forbidden("reservation %d does not belong to student %d", reservationID, studentID)
	}

	inserted, err := s.append(ctx, models.TokenEvent{
		StudentID:     studentID,
		ReservationID: &reservationID,
		Type:          models.TokenConsume,
		Delta:         -1,
	})
	if err != nil {
		return err
	}
	if inserted {
		s.log.Info("lesson consumed", zap.Int64("student_id", studentID), zap.Int64("reservation_id", reservationID))
	} else {
		s.log.Debug("consume skipped: already consumed", zap.Int64("reservation_id", reservationID))
	}
	return nil
}

// Grant — начислить уроки; ref делает начисление идемпотентным (id инвойса и т.п.).
func (s *Service) Grant(ctx context.Context, studentID int64, amount int, ref string) (bool, error) {
	if amount <= 0 {
		return false, apperr.BadRequest("grant amount must be positive, got %d", amount)
	}
	return s.append(ctx, models.TokenEvent{
		StudentID:   studentID,
		Type:        models.TokenGrant,
		Delta:       amount,
		ExternalRef: refPtr(ref),
	})
}

// Refund — вернуть урок за бронь, если по ней было списание. Не более одного раза.
func (s *Service) Refund(ctx context.Context, reservationID int64) (bool, error) {
	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, apperr.NotFound("reservation %d not found", reservationID)
		}
		return false, fmt.Errorf("refund: load reservation: %w", err)
	}
	consumed, err := s.store.HasEvent(ctx, reservationID, models.TokenConsume)
	if err != nil {
		return false, err
	}
	if !consumed {
		return false, nil
	}
	return s.append(ctx, models.TokenEvent{
		StudentID:     res.StudentID,
		ReservationID: &reservationID,
		Type:          models.TokenRefund,
		Delta:         1,
	})
}

// Expire — сжечь остаток (например, при окончании подписки). Отрицательный баланс не трогаем.
func (s *Service) Expire(ctx context.Context, studentID int64, ref string) (int, error) {
	bal, err := s.store.Balance(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if bal <= 0 {
		return 0, nil
	}
	inserted, err := s.append(ctx, models.TokenEvent{
		StudentID:   studentID,
		Type:        models.TokenExpire,
		Delta:       -bal,
		ExternalRef: refPtr(ref),
	})
	if err != nil || !inserted {
		return 0, err
	}
	return bal, nil
}

func (s *Service) Balance(ctx context.Context, studentID int64) (int, error) {
	return s.store.Balance(ctx, studentID)
}

func (s *Service) History(ctx context.Context, studentID int64) ([]models.TokenEvent, error) {
	return s.store.History(ctx, studentID)
}

func (s *Service) append(ctx context.Context, ev models.TokenEvent) (bool, error) {
	ev.ID = uuid.New()
	ev.CreatedAt = s.now().UTC()
	inserted, err := s.store.Append(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("ledger %s: %w", ev.Type, err)
	}
	metrics.LedgerEvent(string(ev.Type), inserted)
	return inserted, nil
}

func refPtr(ref string) *string {
	if ref == "" {
		return nil
	}
	return &ref
}
