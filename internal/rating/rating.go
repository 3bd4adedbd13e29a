// Package rating — оценки учеников преподавателем (со списанием урока) и
// оценки преподавателя учениками.
package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

type OwnerFinder interface {
	Owners(ctx context.Context, ids []int64) ([]db.ReservationOwner, error)
}

type Store interface {
	UpsertStudentEvaluations(ctx context.Context, evs []models.StudentEvaluation) ([]models.StudentEvaluation, error)
	UpsertProfessorRating(ctx context.Context, pr models.ProfessorRating) (*models.ProfessorRating, error)
	ProfessorScore(ctx context.Context, professorID int64) (*float64, int, error)
}

type Consumer interface {
	Consume(ctx context.Context, studentID, reservationID int64) error
}

// EvaluationInput — оценка одного ученика в пачке преподавателя.
type EvaluationInput struct {
	ReservationID       int64   `json:"reservationId" validate:"required,gt=0"`
	CourseMastery       int     `json:"courseMasteryRating" validate:"min=0,max=5"`
	FundamentalsMastery int     `json:"fundamentalsMasteryRating" validate:"min=0,max=5"`
	Focus               int     `json:"focusRating" validate:"min=0,max=5"`
	Discipline          int     `json:"disciplineRating" validate:"min=0,max=5"`
	IsAbsent            bool    `json:"isStudentAbsent"`
	Comment             *string `json:"comment" validate:"omitempty,max=2000"`
}

// Score — средняя оценка; Average == nil, пока оценок нет.
type Score struct {
	ProfessorID int64    `json:"professorId"`
	Average     *float64 `json:"average"`
	Count       int      `json:"count"`
}

type Service struct {
	owners   OwnerFinder
	store    Store
	ledger   Consumer
	validate *validator.Validate
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func New(owners OwnerFinder, store Store, ledger Consumer, loc *time.Location, log *zap.Logger) *Service {
	return &Service{
		owners:   owners,
		store:    store,
		ledger:   ledger,
		validate: validator.New(),
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// RecordEvaluations — сохранить пачку оценок. Все брони проверяются до записи:
// каждая должна существовать, относиться к слоту этого преподавателя и урок уже начался.
// Для присутствовавших учеников урок списывается; сбой списания не ломает ответ,
// его доберёт cron.
func (s *Service) RecordEvaluations(ctx context.Context, professorID int64, in []EvaluationInput) ([]models.StudentEvaluation, error) {
	if len(in) == 0 {
		return nil, apperr.BadRequest("no evaluations")
	}
	ids := make([]int64, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for i, ev := range in {
		if err := s.validate.Struct(ev); err != nil {
			return nil, apperr.BadRequest("evaluation %d: %v", i, err)
		}
		if seen[ev.ReservationID] {
			return nil, apperr.BadRequest("reservation %d evaluated twice", ev.ReservationID)
		}
		seen[ev.ReservationID] = true
		ids = append(ids, ev.ReservationID)
	}

	owners, err := s.ownersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, id := range ids {
		o, ok := owners[id]
		switch {
		case !ok:
			return nil, apperr.NotFound("reservation %d not found", id)
		case o.ProfessorID != professorID:
			return nil, apperr.Forbidden("reservation %d is not in a slot of professor %d", id, professorID)
		case o.Cancelled:
			return nil, apperr.Conflict("reservation %d is cancelled", id)
		case o.StartsAt(s.loc).After(now):
			return nil, apperr.Conflict("lesson of reservation %d has not started yet", id)
		}
	}

	rows := make([]models.StudentEvaluation, 0, len(in))
	for _, ev := range in {
		rows = append(rows, models.StudentEvaluation{
			ReservationID:       ev.ReservationID,
			ProfessorID:         professorID,
			CourseMastery:       ev.CourseMastery,
			FundamentalsMastery: ev.FundamentalsMastery,
			Focus:               ev.Focus,
			Discipline:          ev.Discipline,
			IsAbsent:            ev.IsAbsent,
			Comment:             ev.Comment,
		})
	}
	saved, err := s.store.UpsertStudentEvaluations(ctx, rows)
	if err != nil {
		return nil, apperr.Internal("save evaluations", err)
	}

	for _, ev := range saved {
		if ev.IsAbsent {
			continue
		}
		studentID := owners[ev.ReservationID].StudentID
		if err := s.ledger.Consume(ctx, studentID, ev.ReservationID); err != nil {
			s.log.Error("consume after evaluation failed",
				zap.Int64("reservation_id", ev.ReservationID), zap.Int64("student_id", studentID), zap.Error(err))
			observability.CaptureErrWith(err, map[string]string{"op": "rating.consume"})
		}
	}

	s.log.Info("evaluations recorded", zap.Int64("professor_id", professorID), zap.Int("count", len(saved)))
	return saved, nil
}

// RateProfessor — оценка преподавателя учеником по своей брони (1..5). Повтор перезаписывает.
func (s *Service) RateProfessor(ctx context.Context, studentID, reservationID int64, rating int, comment *string) (*models.ProfessorRating, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.BadRequest("rating must be between 1 and 5, got %d", rating)
	}
	if comment != nil && len([]rune(*comment)) > 2000 {
		return nil, apperr.BadRequest("comment is too long")
	}

	owners, err := s.ownersByID(ctx, []int64{reservationID})
	if err != nil {
		return nil, err
	}
	o, ok := owners[reservationID]
	switch {
	case !ok:
		return nil, apperr.NotFound("reservation %d not found", reservationID)
	case o.StudentID != studentID:
		return nil, apperr.Forbidden("reservation %d does not belong to student %d", reservationID, studentID)
	case o.Cancelled:
		return nil, apperr.Conflict("reservation %d is cancelled", reservationID)
	}

	saved, err := s.store.UpsertProfessorRating(ctx, models.ProfessorRating{
		ReservationID: reservationID,
		StudentID:     studentID,
		ProfessorID:   o.ProfessorID,
		Rating:        rating,
		Comment:       comment,
	})
	if err != nil {
		return nil, apperr.Internal("save rating", err)
	}
	return saved, nil
}

func (s *Service) ProfessorScore(ctx context.Context, professorID int64) (Score, error) {
	avg, n, err := s.store.ProfessorScore(ctx, professorID)
	if err != nil {
		return Score{}, apperr.Internal("professor score", err)
	}
	return Score{ProfessorID: professorID, Average: avg, Count: n}, nil
}

func (s *Service) ownersByID(ctx context.Context, ids []int64) (map[int64]db.ReservationOwner, error) {
	list, err := s.owners.Owners(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("load reservations", fmt.Errorf("owners: %w", err))
	}
	out := make(map[int64]db.ReservationOwner, len(list))
	for _, o := range list {
		out[o.ReservationID] = o
	}
	return out, nil
}
