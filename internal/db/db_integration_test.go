//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/ledger"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/schedule"
	"github.com/Spok95/tutoring-platform/internal/testutil/testdb"
)

var week = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func replaceWith(desired ...schedule.Coord) db.AvailabilityPlan {
	return func(existing []models.Availability) ([]int64, []schedule.Coord) {
		return diff(existing, desired)
	}
}

// diff — упрощённая разность для тестов репозитория (сервисная версия покрыта отдельно).
func diff(existing []models.Availability, desired []schedule.Coord) ([]int64, []schedule.Coord) {
	want := map[string]bool{}
	for _, c := range desired {
		want[c.Key()] = true
	}
	have := map[string]bool{}
	var remove []int64
	for _, a := range existing {
		have[a.Coord().Key()] = true
		if !want[a.Coord().Key()] {
			remove = append(remove, a.ID)
		}
	}
	var add []schedule.Coord
	for _, c := range desired {
		if !have[c.Key()] {
			add = append(add, c)
			have[c.Key()] = true
		}
	}
	return remove, add
}

func slotAt(t *testing.T, avails *db.Availabilities, profID int64, c schedule.Coord) int64 {
	t.Helper()
	rows, err := avails.List(context.Background(), profID, week)
	require.NoError(t, err)
	for _, a := range rows {
		if a.Coord() == c {
			require.NotNil(t, a.SlotID)
			return *a.SlotID
		}
	}
	t.Fatalf("no availability at %s", c.Key())
	return 0
}

func TestReconcile_KeepsUntouchedRows(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")

	a := schedule.Coord{DayOfWeek: 0, Hour: 10}
	b := schedule.Coord{DayOfWeek: 1, Hour: 14, Minute: 30}
	c := schedule.Coord{DayOfWeek: 4, Hour: 9}

	added, removed, err := avails.Reconcile(ctx, prof, week, replaceWith(a, b))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, removed)

	before, err := avails.List(ctx, prof, week)
	require.NoError(t, err)
	var bID int64
	for _, row := range before {
		if row.Coord() == b {
			bID = row.ID
		}
	}
	require.NotZero(t, bID)

	added, removed, err = avails.Reconcile(ctx, prof, week, replaceWith(b, c))
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	after, err := avails.List(ctx, prof, week)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, bID, after[0].ID, "unchanged coordinate keeps its row")
	assert.Equal(t, c, after[1].Coord())

	// повтор того же множества — ничего не меняется
	added, removed, err = avails.Reconcile(ctx, prof, week, replaceWith(b, c))
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestReconcile_BookedSlotSurvivesRemoval(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	slots := db.NewSlots(h.DB)
	reservations := db.NewReservations(h.DB)
	led := ledger.New(db.NewTokens(h.DB), reservations, zap.NewNop())

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	student := testdb.SeedUser(t, h.DB, models.Student, "Student")
	c := schedule.Coord{DayOfWeek: 2, Hour: 16}

	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	slotID := slotAt(t, avails, prof, c)

	_, err = led.Grant(ctx, student, 1, "test:grant")
	require.NoError(t, err)
	_, err = reservations.Book(ctx, student, slotID)
	require.NoError(t, err)

	_, removed, err := avails.Reconcile(ctx, prof, week, replaceWith())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = slots.Get(ctx, slotID)
	assert.NoError(t, err, "slot with a reservation must stay")
}

func TestBook_Guards(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	reservations := db.NewReservations(h.DB)
	led := ledger.New(db.NewTokens(h.DB), reservations, zap.NewNop())

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	s1 := testdb.SeedUser(t, h.DB, models.Student, "S1")
	s2 := testdb.SeedUser(t, h.DB, models.Student, "S2")
	c := schedule.Coord{DayOfWeek: 3, Hour: 11}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	slotID := slotAt(t, avails, prof, c)

	_, err = reservations.Book(ctx, s1, slotID)
	assert.ErrorIs(t, err, db.ErrNoTokens)

	_, err = led.Grant(ctx, s1, 2, "test:s1")
	require.NoError(t, err)
	_, err = led.Grant(ctx, s2, 1, "test:s2")
	require.NoError(t, err)

	res, err := reservations.Book(ctx, s1, slotID)
	require.NoError(t, err)
	assert.True(t, res.Active())

	_, err = reservations.Book(ctx, s1, slotID)
	assert.ErrorIs(t, err, db.ErrAlreadyBooked)

	_, err = reservations.Book(ctx, s2, slotID)
	assert.ErrorIs(t, err, db.ErrSlotFull)

	_, err = reservations.Book(ctx, s1, 999999)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestConsume_ConcurrentExactlyOnce(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	tokens := db.NewTokens(h.DB)
	reservations := db.NewReservations(h.DB)
	led := ledger.New(tokens, reservations, zap.NewNop())

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	student := testdb.SeedUser(t, h.DB, models.Student, "Student")
	c := schedule.Coord{DayOfWeek: 0, Hour: 8}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)

	_, err = led.Grant(ctx, student, 3, "invoice:in_test")
	require.NoError(t, err)
	res, err := reservations.Book(ctx, student, slotAt(t, avails, prof, c))
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- led.Consume(ctx, student, res.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := led.Balance(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, 2, bal)

	has, err := tokens.HasEvent(ctx, res.ID, models.TokenConsume)
	require.NoError(t, err)
	assert.True(t, has)

	// повтор выдачи по тому же инвойсу не проходит
	applied, err := led.Grant(ctx, student, 3, "invoice:in_test")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRefund_AfterConsumeOnce(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	reservations := db.NewReservations(h.DB)
	led := ledger.New(db.NewTokens(h.DB), reservations, zap.NewNop())

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	student := testdb.SeedUser(t, h.DB, models.Student, "Student")
	c := schedule.Coord{DayOfWeek: 5, Hour: 12}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	_, err = led.Grant(ctx, student, 1, "test:grant")
	require.NoError(t, err)
	res, err := reservations.Book(ctx, student, slotAt(t, avails, prof, c))
	require.NoError(t, err)

	refunded, err := led.Refund(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, refunded, "nothing consumed yet")

	require.NoError(t, led.Consume(ctx, student, res.ID))
	for i := 0; i < 3; i++ {
		_, err := led.Refund(ctx, res.ID)
		require.NoError(t, err)
	}
	bal, err := led.Balance(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, 1, bal)
}

func TestClaimReminder_SingleWinner(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	slots := db.NewSlots(h.DB)

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	c := schedule.Coord{DayOfWeek: 6, Hour: 18, Minute: 30}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	slotID := slotAt(t, avails, prof, c)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := slots.ClaimReminder(ctx, slotID)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestProfessorScore_NoRatings(t *testing.T) {
	h := testdb.MustStart(t)
	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")

	avg, count, err := db.NewEvaluations(h.DB).ProfessorScore(context.Background(), prof)
	require.NoError(t, err)
	assert.Nil(t, avg)
	assert.Zero(t, count)
}

// bookWithToken — выдать ученику урок и записать его на слот.
func bookWithToken(t *testing.T, h *testdb.DBHandle, studentID, slotID int64) *models.Reservation {
	t.Helper()
	ctx := context.Background()
	led := ledger.New(db.NewTokens(h.DB), db.NewReservations(h.DB), zap.NewNop())
	_, err := led.Grant(ctx, studentID, 1, fmt.Sprintf("test:%d:%d", studentID, slotID))
	require.NoError(t, err)
	res, err := db.NewReservations(h.DB).Book(ctx, studentID, slotID)
	require.NoError(t, err)
	return res
}

func TestBook_WithdrawnSlotIsNotBookable(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	slots := db.NewSlots(h.DB)
	reservations := db.NewReservations(h.DB)

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	student := testdb.SeedUser(t, h.DB, models.Student, "Student")
	c := schedule.Coord{DayOfWeek: 1, Hour: 15}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	slotID := slotAt(t, avails, prof, c)

	res := bookWithToken(t, h, student, slotID)
	changed, err := reservations.Cancel(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, changed)

	_, _, err = avails.Reconcile(ctx, prof, week, replaceWith())
	require.NoError(t, err)

	// строка слота осталась ради истории броней, но записаться на неё нельзя
	_, err = slots.Get(ctx, slotID)
	require.NoError(t, err)
	_, err = reservations.Book(ctx, student, slotID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// преподаватель вернул время: тот же слот снова доступен
	_, _, err = avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	assert.Equal(t, slotID, slotAt(t, avails, prof, c))
	_, err = reservations.Book(ctx, student, slotID)
	assert.NoError(t, err)
}

func TestMissingConsume_SkipsCancelledConsumedAndAbsent(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	reservations := db.NewReservations(h.DB)
	led := ledger.New(db.NewTokens(h.DB), reservations, zap.NewNop())

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	c := schedule.Coord{DayOfWeek: 0, Hour: 10}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(c))
	require.NoError(t, err)
	slotID := slotAt(t, avails, prof, c)
	_, err = h.DB.ExecContext(ctx, `UPDATE slots SET capacity = 4 WHERE id = $1`, slotID)
	require.NoError(t, err)

	active := bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "Active"), slotID)
	cancelled := bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "Cancelled"), slotID)
	absent := bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "Absent"), slotID)
	consumed := bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "Consumed"), slotID)

	_, err = reservations.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = db.NewEvaluations(h.DB).UpsertStudentEvaluations(ctx, []models.StudentEvaluation{
		{ReservationID: absent.ID, ProfessorID: prof, IsAbsent: true},
	})
	require.NoError(t, err)
	require.NoError(t, led.Consume(ctx, consumed.StudentID, consumed.ID))

	missing, err := reservations.MissingConsume(ctx, []int64{slotID})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, active.ID, missing[0].ID)

	none, err := reservations.MissingConsume(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDueForReminderAndBookedInWeeks(t *testing.T) {
	h := testdb.MustStart(t)
	ctx := context.Background()
	avails := db.NewAvailabilities(h.DB)
	slots := db.NewSlots(h.DB)
	reservations := db.NewReservations(h.DB)

	prof := testdb.SeedUser(t, h.DB, models.Professor, "Prof")
	booked := schedule.Coord{DayOfWeek: 0, Hour: 10}
	claimed := schedule.Coord{DayOfWeek: 0, Hour: 11}
	empty := schedule.Coord{DayOfWeek: 0, Hour: 12}
	cancelledOnly := schedule.Coord{DayOfWeek: 0, Hour: 13}
	tuesday := schedule.Coord{DayOfWeek: 1, Hour: 10}
	_, _, err := avails.Reconcile(ctx, prof, week, replaceWith(booked, claimed, empty, cancelledOnly, tuesday))
	require.NoError(t, err)

	nextWeek := week.AddDate(0, 0, 7)
	_, _, err = avails.Reconcile(ctx, prof, nextWeek, replaceWith(booked))
	require.NoError(t, err)
	next, err := avails.List(ctx, prof, nextWeek)
	require.NoError(t, err)
	require.Len(t, next, 1)

	bookedID := slotAt(t, avails, prof, booked)
	claimedID := slotAt(t, avails, prof, claimed)
	cancelledID := slotAt(t, avails, prof, cancelledOnly)
	tuesdayID := slotAt(t, avails, prof, tuesday)

	bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "S1"), bookedID)
	bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "S2"), claimedID)
	bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "S3"), tuesdayID)
	bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "S4"), *next[0].SlotID)
	gone := bookWithToken(t, h, testdb.SeedUser(t, h.DB, models.Student, "S5"), cancelledID)
	_, err = reservations.Cancel(ctx, gone.ID)
	require.NoError(t, err)

	ok, err := slots.ClaimReminder(ctx, claimedID)
	require.NoError(t, err)
	require.True(t, ok)

	due, err := slots.DueForReminder(ctx, week, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, bookedID, due[0].ID)

	inWeek, err := slots.BookedInWeeks(ctx, week, week)
	require.NoError(t, err)
	var ids []int64
	for _, s := range inWeek {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{bookedID, claimedID, tuesdayID}, ids)

	both, err := slots.BookedInWeeks(ctx, week, nextWeek)
	require.NoError(t, err)
	assert.Len(t, both, 4)
}
