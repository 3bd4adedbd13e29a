// Package availability — недельная доступность преподавателя. Новое желаемое
// множество координат сводится с сохранённым через разность, а не полной заменой.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

type Store interface {
	List(ctx context.Context, professorID int64, weekStart time.Time) ([]models.Availability, error)
	Reconcile(ctx context.Context, professorID int64, weekStart time.Time, plan db.AvailabilityPlan) (added, removed int, err error)
}

type Result struct {
	Message string `json:"message"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// Save — привести доступность недели к desired. Дата недели проверяется до любого
// обращения к БД; удаление и вставка идут одной транзакцией.
func (s *Service) Save(ctx context.Context, professorID int64, weekStart string, desired []schedule.Coord) (Result, error) {
	ws, err := schedule.ParseWeekStart(weekStart)
	if err != nil {
		return Result{}, apperr.BadRequest("%v", err)
	}

	added, removed, err := s.store.Reconcile(ctx, professorID, ws, func(existing []models.Availability) ([]int64, []schedule.Coord) {
		return Diff(existing, desired)
	})
	if err != nil {
		s.log.Error("save availabilities failed",
			zap.Int64("professor_id", professorID), zap.String("week_start", weekStart), zap.Error(err))
		return Result{}, apperr.Internal("failed to save availabilities", err)
	}

	s.log.Info("availabilities reconciled",
		zap.Int64("professor_id", professorID), zap.String("week_start", weekStart),
		zap.Int("added", added), zap.Int("removed", removed))

	return Result{
		Message: fmt.Sprintf("Availabilities saved for week %s", weekStart),
		Added:   added,
		Removed: removed,
	}, nil
}

func (s *Service) List(ctx context.Context, professorID int64, weekStart string) ([]models.Availability, error) {
	ws, err := schedule.ParseWeekStart(weekStart)
	if err != nil {
		return nil, apperr.BadRequest("%v", err)
	}
	rows, err := s.store.List(ctx, professorID, ws)
	if err != nil {
		return nil, apperr.Internal("failed to load availabilities", err)
	}
	return rows, nil
}

// Diff — какие строки удалить (есть, но не нужны) и какие координаты добавить
// (нужны, но нет). Совпадающие не трогаются; повторы в desired схлопываются.
func Diff(existing []models.Availability, desired []schedule.Coord) (removeIDs []int64, add []schedule.Coord) {
	want := make(map[string]schedule.Coord, len(desired))
	for _, c := range desired {
		want[c.Key()] = c
	}

	have := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		k := a.Coord().Key()
		if _, ok := want[k]; !ok {
			removeIDs = append(removeIDs, a.ID)
			continue
		}
		have[k] = struct{}{}
	}

	for k, c := range want {
		if _, ok := have[k]; !ok {
			add = append(add, c)
		}
	}
	sort.Slice(add, func(i, j int) bool { return add[i].Key() < add[j].Key() })
	return removeIDs, add
}
