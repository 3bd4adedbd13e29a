package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/availability"
	"github.com/Spok95/tutoring-platform/internal/billing"
	"github.com/Spok95/tutoring-platform/internal/booking"
	"github.com/Spok95/tutoring-platform/internal/cron"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/rating"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

const (
	jwtSecret = "test-secret"
	cronToken = "cron-secret"
)

type fakeAvailability struct {
	gotProfessor int64
	gotWeek      string
	gotDesired   []schedule.Coord
	err          error
}

func (f *fakeAvailability) Save(_ context.Context, professorID int64, weekStart string, desired []schedule.Coord) (availability.Result, error) {
	f.gotProfessor, f.gotWeek, f.gotDesired = professorID, weekStart, desired
	if f.err != nil {
		return availability.Result{}, f.err
	}
	return availability.Result{Message: "Availabilities saved for week " + weekStart, Added: len(desired)}, nil
}

func (f *fakeAvailability) List(context.Context, int64, string) ([]models.Availability, error) {
	return nil, nil
}

type fakeLedger struct{ events []models.TokenEvent }

func (f *fakeLedger) Balance(context.Context, int64) (int, error) {
	sum := 0
	for _, e := range f.events {
		sum += e.Delta
	}
	return sum, nil
}

func (f *fakeLedger) History(context.Context, int64) ([]models.TokenEvent, error) { return f.events, nil }

type fakeBooking struct{ err error }

func (f *fakeBooking) Reserve(_ context.Context, studentID, slotID int64) (*models.Reservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Reservation{ID: 1, StudentID: studentID, SlotID: slotID}, nil
}

func (f *fakeBooking) Cancel(context.Context, int64, int64) error { return f.err }

func (f *fakeBooking) CancelSlot(context.Context, int64, int64) (booking.SlotCancellation, error) {
	return booking.SlotCancellation{Cancelled: 2, Refunded: 1, EmailsSent: 2}, f.err
}

type fakeRating struct{ err error }

func (f *fakeRating) RecordEvaluations(_ context.Context, professorID int64, in []rating.EvaluationInput) ([]models.StudentEvaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.StudentEvaluation, 0, len(in))
	for _, ev := range in {
		out = append(out, models.StudentEvaluation{ReservationID: ev.ReservationID, ProfessorID: professorID, IsAbsent: ev.IsAbsent})
	}
	return out, nil
}

func (f *fakeRating) RateProfessor(_ context.Context, studentID, reservationID int64, r int, _ *string) (*models.ProfessorRating, error) {
	return &models.ProfessorRating{ReservationID: reservationID, StudentID: studentID, Rating: r}, f.err
}

func (f *fakeRating) ProfessorScore(_ context.Context, professorID int64) (rating.Score, error) {
	return rating.Score{ProfessorID: professorID}, f.err
}

type fakeBilling struct{ handled int }

func (f *fakeBilling) Subscribe(context.Context, int64, string) (billing.Subscription, error) {
	return billing.Subscription{ID: "sub_1", Status: "incomplete", ClientSecret: "pi_secret"}, nil
}

func (f *fakeBilling) ParseEvent(_ []byte, sig string) (stripe.Event, error) {
	if sig != "good" {
		return stripe.Event{}, apperr.Unauthorized("invalid stripe signature")
	}
	return stripe.Event{ID: "evt_1"}, nil
}

func (f *fakeBilling) HandleEvent(context.Context, stripe.Event) error {
	f.handled++
	return nil
}

type fakeCron struct{ runs int }

func (f *fakeCron) Run(context.Context, time.Time) cron.Report {
	f.runs++
	return cron.Report{Errors: 3}
}

type fakeUsers struct{}

func (fakeUsers) Get(_ context.Context, id int64) (*models.User, error) {
	if id == 404 {
		return nil, db.ErrNotFound
	}
	return &models.User{ID: id, Name: "Alice", Email: "alice@example.com", Role: models.Student}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fixture struct {
	srv   *Server
	avail *fakeAvailability
	book  *fakeBooking
	rate  *fakeRating
	bill  *fakeBilling
	cron  *fakeCron
	db    *fakePinger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		avail: &fakeAvailability{},
		book:  &fakeBooking{},
		rate:  &fakeRating{},
		bill:  &fakeBilling{},
		cron:  &fakeCron{},
		db:    &fakePinger{},
	}
	f.srv = NewServer(Options{
		JWTSecret:    jwtSecret,
		CronToken:    cronToken,
		Log:          zap.NewNop(),
		DB:           f.db,
		Users:        fakeUsers{},
		Availability: f.avail,
		Ledger: &fakeLedger{events: []models.TokenEvent{
			{StudentID: 10, Type: models.TokenGrant, Delta: 4, CreatedAt: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)},
		}},
		Booking: f.book,
		Rating:  f.rate,
		Billing: f.bill,
		Cron:    f.cron,
		Now:     func() time.Time { return time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func token(t *testing.T, id int64, role models.Role) string {
	t.Helper()
	tok, err := GenerateToken(jwtSecret, id, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	f.db.err = errors.New("conn refused")
	rec = f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tutoring_")
}

func TestCron(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/cron", "", map[string]string{"token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(http.MethodPost, "/v1/cron", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.cron.runs)

	// ошибки прохода не меняют ответ
	rec = f.do(http.MethodPost, "/v1/cron", "", map[string]string{"token": cronToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, 1, f.cron.runs)

	req := httptest.NewRequest(http.MethodPost, "/v1/cron", nil)
	req.Header.Set("X-Cron-Token", cronToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.cron.runs)
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/students/me/tokens", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/students/me/tokens", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := GenerateToken("other-secret", 10, models.Student, time.Hour)
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/v1/students/me/tokens", other, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := GenerateToken(jwtSecret, 10, models.Student, -time.Minute)
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/v1/students/me/tokens", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPut, "/v1/professors/me/availabilities", token(t, 10, models.Student), map[string]any{"weekStart": "2025-01-06"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSaveAvailabilities(t *testing.T) {
	f := newFixture(t)
	prof := token(t, 7, models.Professor)

	rec := f.do(http.MethodPut, "/v1/professors/me/availabilities", prof, map[string]any{
		"weekStart": "2025-01-06",
		"availabilities": []map[string]any{
			{"dayOfWeek": 1, "hour": 10, "minute": 30, "slotId": nil},
			{"dayOfWeek": 3, "hour": 14, "minute": 0},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Availabilities saved for week 2025-01-06", decode[map[string]any](t, rec)["message"])
	assert.Equal(t, int64(7), f.avail.gotProfessor)
	assert.Equal(t, []schedule.Coord{{DayOfWeek: 1, Hour: 10, Minute: 30}, {DayOfWeek: 3, Hour: 14}}, f.avail.gotDesired)
}

func TestSaveAvailabilities_Validation(t *testing.T) {
	f := newFixture(t)
	prof := token(t, 7, models.Professor)

	rec := f.do(http.MethodPut, "/v1/professors/me/availabilities", prof, map[string]any{
		"weekStart":      "2025-01-06",
		"availabilities": []map[string]any{{"dayOfWeek": 7, "hour": 10, "minute": 15}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Contains(t, body.Fields, "availabilities[0].minute")
	assert.Contains(t, body.Fields, "availabilities[0].dayOfWeek")
	assert.Empty(t, f.avail.gotWeek, "service not called")

	f.avail.err = apperr.BadRequest("invalid weekStart %q", "06/01/2025")
	rec = f.do(http.MethodPut, "/v1/professors/me/availabilities", prof, map[string]any{"weekStart": "06/01/2025"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `invalid weekStart "06/01/2025"`, decode[errorBody](t, rec).Message)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	f := newFixture(t)
	f.avail.err = apperr.Internal("reconcile", errors.New("pq: deadlock detected"))

	rec := f.do(http.MethodPut, "/v1/professors/me/availabilities", token(t, 7, models.Professor),
		map[string]any{"weekStart": "2025-01-06"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadlock")
	assert.Equal(t, "Internal Server Error", decode[errorBody](t, rec).Message)
}

func TestRecordEvaluations(t *testing.T) {
	f := newFixture(t)
	prof := token(t, 7, models.Professor)
	body := map[string]any{"students": []map[string]any{
		{"reservationId": 1, "courseMasteryRating": 4, "fundamentalsMasteryRating": 3, "focusRating": 5, "disciplineRating": 2, "isStudentAbsent": false},
	}}

	rec := f.do(http.MethodPost, "/v1/professors/me/evaluations", prof, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	f.rate.err = apperr.Forbidden("reservation 1 is not in a slot of professor 7")
	rec = f.do(http.MethodPost, "/v1/professors/me/evaluations", prof, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/professors/me/evaluations", prof, map[string]any{"students": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfessorScore_NullAverage(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/professors/7/score", token(t, 10, models.Student), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"professorId":7,"average":null,"count":0}`, rec.Body.String())
}

func TestReservations(t *testing.T) {
	f := newFixture(t)
	st := token(t, 10, models.Student)

	rec := f.do(http.MethodPost, "/v1/reservations", st, map[string]any{"slotId": 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(5), decode[map[string]any](t, rec)["slotId"])

	rec = f.do(http.MethodDelete, "/v1/reservations/1", st, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/reservations/abc", st, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.book.err = apperr.Conflict("insufficient tokens")
	rec = f.do(http.MethodPost, "/v1/reservations", st, map[string]any{"slotId": 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient tokens", decode[errorBody](t, rec).Message)

	rec = f.do(http.MethodPost, "/v1/reservations/1/rating", st, map[string]any{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSlot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodDelete, "/v1/professors/me/slots/3", token(t, 7, models.Professor), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":2,"refunded":1,"emailsSent":2}`, rec.Body.String())
}

func TestTokens(t *testing.T) {
	f := newFixture(t)
	st := token(t, 10, models.Student)

	rec := f.do(http.MethodGet, "/v1/students/me/tokens", st, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode[map[string]any](t, rec)["balance"])

	rec = f.do(http.MethodGet, "/v1/students/me/tokens.xlsx", st, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	x, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := x.GetRows("Historique")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSubscriptionAndWebhook(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/students/me/subscription", token(t, 10, models.Student), map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pi_secret", decode[map[string]any](t, rec)["clientSecret"])

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "bad")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.bill.handled)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "good")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.bill.handled)
}
