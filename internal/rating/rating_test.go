package rating

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/ledger"
	"github.com/Spok95/tutoring-platform/internal/models"
)

type fakeOwners map[int64]db.ReservationOwner

func (f fakeOwners) Owners(_ context.Context, ids []int64) ([]db.ReservationOwner, error) {
	var out []db.ReservationOwner
	for _, id := range ids {
		if o, ok := f[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f fakeOwners) Get(_ context.Context, id int64) (*models.Reservation, error) {
	o, ok := f[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &models.Reservation{ID: id, StudentID: o.StudentID}, nil
}

type fakeStore struct {
	evals   map[int64]models.StudentEvaluation
	ratings map[int64]models.ProfessorRating
	writes  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{evals: map[int64]models.StudentEvaluation{}, ratings: map[int64]models.ProfessorRating{}}
}

func (f *fakeStore) UpsertStudentEvaluations(_ context.Context, evs []models.StudentEvaluation) ([]models.StudentEvaluation, error) {
	f.writes++
	for _, ev := range evs {
		f.evals[ev.ReservationID] = ev
	}
	return evs, nil
}

func (f *fakeStore) UpsertProfessorRating(_ context.Context, pr models.ProfessorRating) (*models.ProfessorRating, error) {
	f.ratings[pr.ReservationID] = pr
	return &pr, nil
}

func (f *fakeStore) ProfessorScore(_ context.Context, professorID int64) (*float64, int, error) {
	sum, n := 0, 0
	for _, r := range f.ratings {
		if r.ProfessorID == professorID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return nil, 0, nil
	}
	avg := float64(sum) / float64(n)
	return &avg, n, nil
}

type failingConsumer struct{ calls int }

func (f *failingConsumer) Consume(context.Context, int64, int64) error {
	f.calls++
	return errors.New("db down")
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	ledger *ledger.MemStore
}

var week = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// owner — бронь на урок понедельника 9:00 (по умолчанию уже прошёл).
func owner(id, student, professor int64) db.ReservationOwner {
	return db.ReservationOwner{ReservationID: id, StudentID: student, ProfessorID: professor, WeekStart: week, Hour: 9}
}

func newService(t *testing.T, owners fakeOwners, store Store, consumer Consumer) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	svc := New(owners, store, consumer, loc, zap.NewNop())
	// понедельник 12:00 по Парижу
	svc.now = func() time.Time { return time.Date(2025, 1, 6, 12, 0, 0, 0, loc) }
	return svc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cancelled := owner(4, 13, 7)
	cancelled.Cancelled = true
	upcoming := owner(5, 14, 7)
	upcoming.DayOfWeek, upcoming.Hour = 2, 14

	owners := fakeOwners{
		1: owner(1, 10, 7),
		2: owner(2, 11, 7),
		3: owner(3, 12, 8),
		4: cancelled,
		5: upcoming,
	}
	mem := ledger.NewMemStore()
	store := newFakeStore()
	svc := newService(t, owners, store, ledger.New(mem, owners, zap.NewNop()))
	return &fixture{svc: svc, store: store, ledger: mem}
}

func eval(id int64, absent bool) EvaluationInput {
	return EvaluationInput{ReservationID: id, CourseMastery: 4, FundamentalsMastery: 3, Focus: 5, Discipline: 2, IsAbsent: absent}
}

func TestRecordEvaluations_ConsumesPresentStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.svc.RecordEvaluations(ctx, 7, []EvaluationInput{eval(1, false), eval(2, true)})
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	assert.Equal(t, 1, f.ledger.Count(1, models.TokenConsume))
	assert.Zero(t, f.ledger.Count(2, models.TokenConsume), "absent student is not charged")

	// повторная отправка перезаписывает, но второй раз не списывает
	again := eval(1, false)
	again.Focus = 1
	_, err = f.svc.RecordEvaluations(ctx, 7, []EvaluationInput{again})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.evals[1].Focus)
	assert.Equal(t, 1, f.ledger.Count(1, models.TokenConsume))
}

func TestRecordEvaluations_RejectsWholeBatch(t *testing.T) {
	cases := []struct {
		name string
		in   []EvaluationInput
		kind apperr.Kind
	}{
		{"empty", nil, apperr.KindBadRequest},
		{"rating out of range", []EvaluationInput{{ReservationID: 1, Focus: 6}}, apperr.KindBadRequest},
		{"duplicate reservation", []EvaluationInput{eval(1, false), eval(1, true)}, apperr.KindBadRequest},
		{"unknown reservation", []EvaluationInput{eval(1, false), eval(99, false)}, apperr.KindNotFound},
		{"other professor", []EvaluationInput{eval(1, false), eval(3, false)}, apperr.KindForbidden},
		{"cancelled", []EvaluationInput{eval(4, false)}, apperr.KindConflict},
		{"lesson not started", []EvaluationInput{eval(1, false), eval(5, false)}, apperr.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.RecordEvaluations(context.Background(), 7, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Zero(t, f.store.writes)
			assert.Zero(t, f.ledger.Count(1, models.TokenConsume))
			assert.Zero(t, f.ledger.Count(5, models.TokenConsume))
		})
	}
}

func TestRecordEvaluations_ConsumeFailureIsNotReturned(t *testing.T) {
	owners := fakeOwners{1: owner(1, 10, 7)}
	store := newFakeStore()
	consumer := &failingConsumer{}
	svc := newService(t, owners, store, consumer)

	saved, err := svc.RecordEvaluations(context.Background(), 7, []EvaluationInput{eval(1, false)})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.Equal(t, 1, consumer.calls)
}

func TestRateProfessorAndScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	score, err := f.svc.ProfessorScore(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, score.Average)
	raw, err := json.Marshal(score)
	require.NoError(t, err)
	assert.JSONEq(t, `{"professorId":7,"average":null,"count":0}`, string(raw))

	_, err = f.svc.RateProfessor(ctx, 10, 1, 5, nil)
	require.NoError(t, err)
	_, err = f.svc.RateProfessor(ctx, 11, 2, 2, nil)
	require.NoError(t, err)
	// повтор по той же брони перезаписывает оценку
	_, err = f.svc.RateProfessor(ctx, 11, 2, 4, nil)
	require.NoError(t, err)

	score, err = f.svc.ProfessorScore(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, score.Average)
	assert.InDelta(t, 4.5, *score.Average, 1e-9)
	assert.Equal(t, 2, score.Count)
}

func TestRateProfessor_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RateProfessor(ctx, 10, 1, 0, nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	_, err = f.svc.RateProfessor(ctx, 11, 1, 5, nil)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.svc.RateProfessor(ctx, 10, 42, 5, nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.svc.RateProfessor(ctx, 13, 4, 5, nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}
