// Package httpapi — HTTP API на echo: маршруты, JWT, ошибки, валидация.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/availability"
	"github.com/Spok95/tutoring-platform/internal/billing"
	"github.com/Spok95/tutoring-platform/internal/booking"
	"github.com/Spok95/tutoring-platform/internal/cron"
	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/rating"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

type (
	AvailabilityService interface {
		Save(ctx context.Context, professorID int64, weekStart string, desired []schedule.Coord) (availability.Result, error)
		List(ctx context.Context, professorID int64, weekStart string) ([]models.Availability, error)
	}

	LedgerService interface {
		Balance(ctx context.Context, studentID int64) (int, error)
		History(ctx context.Context, studentID int64) ([]models.TokenEvent, error)
	}

	BookingService interface {
		Reserve(ctx context.Context, studentID, slotID int64) (*models.Reservation, error)
		Cancel(ctx context.Context, studentID, reservationID int64) error
		CancelSlot(ctx context.Context, professorID, slotID int64) (booking.SlotCancellation, error)
	}

	RatingService interface {
		RecordEvaluations(ctx context.Context, professorID int64, in []rating.EvaluationInput) ([]models.StudentEvaluation, error)
		RateProfessor(ctx context.Context, studentID, reservationID int64, rating int, comment *string) (*models.ProfessorRating, error)
		ProfessorScore(ctx context.Context, professorID int64) (rating.Score, error)
	}

	BillingService interface {
		Subscribe(ctx context.Context, studentID int64, promoCode string) (billing.Subscription, error)
		ParseEvent(payload []byte, signature string) (stripe.Event, error)
		HandleEvent(ctx context.Context, ev stripe.Event) error
	}

	CronService interface {
		Run(ctx context.Context, now time.Time) cron.Report
	}

	UserFinder interface {
		Get(ctx context.Context, id int64) (*models.User, error)
	}

	Pinger interface {
		PingContext(ctx context.Context) error
	}
)

type Options struct {
	Addr      string
	Debug     bool
	JWTSecret string
	CronToken string
	Location  *time.Location
	Log       *zap.Logger

	DB           Pinger
	Users        UserFinder
	Availability AvailabilityService
	Ledger       LedgerService
	Booking      BookingService
	Rating       RatingService
	Billing      BillingService
	Cron         CronService

	Now func() time.Time
}

type Server struct {
	opts Options
	app  *echo.Echo
}

func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	s := &Server{opts: opts, app: echo.New()}
	s.setup()
	return s
}

func (s *Server) setup() {
	e := s.app
	e.HideBanner = true
	e.HidePort = true
	e.Debug = s.opts.Debug
	e.Validator = newValidator()
	e.HTTPErrorHandler = newErrorHandler(s.opts.Log)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(requestID())
	e.Use(requestLogger(s.opts.Log))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/cron", s.runCron)
	v1.POST("/webhooks/stripe", s.stripeWebhook)

	auth := v1.Group("", jwtAuth(s.opts.JWTSecret))

	prof := auth.Group("/professors/me", requireRole(models.Professor))
	prof.PUT("/availabilities", s.saveAvailabilities)
	prof.GET("/availabilities", s.listAvailabilities)
	prof.POST("/evaluations", s.recordEvaluations)
	prof.DELETE("/slots/:id", s.cancelSlot)

	auth.GET("/professors/:id/score", s.professorScore)

	res := auth.Group("/reservations", requireRole(models.Student))
	res.POST("", s.reserve)
	res.DELETE("/:id", s.cancelReservation)
	res.POST("/:id/rating", s.rateProfessor)

	st := auth.Group("/students/me", requireRole(models.Student))
	st.GET("/tokens", s.tokens)
	st.GET("/tokens.xlsx", s.tokenStatement)
	st.POST("/subscription", s.subscribe)
}

// Start — блокирует до Shutdown; штатная остановка не ошибка.
func (s *Server) Start() error {
	if err := s.app.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) healthz(c echo.Context) error {
	if s.opts.DB == nil {
		return c.String(http.StatusOK, "ok")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := s.opts.DB.PingContext(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "db not ok")
	}
	metrics.ObserveDBPing(time.Since(t0))
	return c.String(http.StatusOK, "ok")
}
