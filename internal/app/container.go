// Package app — сборка графа зависимостей (dig) и жизненный цикл процесса.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	"github.com/Spok95/tutoring-platform/internal/availability"
	"github.com/Spok95/tutoring-platform/internal/billing"
	"github.com/Spok95/tutoring-platform/internal/booking"
	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/cron"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/httpapi"
	"github.com/Spok95/tutoring-platform/internal/ledger"
	"github.com/Spok95/tutoring-platform/internal/logging"
	"github.com/Spok95/tutoring-platform/internal/notify"
	"github.com/Spok95/tutoring-platform/internal/rating"
)

// Gateways — внешние каналы; любой из них может быть nil («не настроен»).
type Gateways struct {
	SMS     notify.SMSGateway
	Chat    notify.ChatGateway
	Payment billing.PaymentGateway
}

// BuildContainer — граф строится один раз при старте; конфиг и логгер приходят снаружи.
func BuildContainer(cfg *config.Config, log *logging.Log) (*dig.Container, error) {
	c := dig.New()
	providers := []any{
		func() *config.Config { return cfg },
		func() *logging.Log { return log },
		newDB,
		db.NewUsers,
		db.NewSlots,
		db.NewReservations,
		db.NewTokens,
		db.NewEvaluations,
		db.NewAvailabilities,
		newGateways,
		newMailer,
		newLedger,
		newAvailability,
		newBooking,
		newRating,
		newBilling,
		newCron,
		newHTTPServer,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("provide dependency: %w", err)
		}
	}
	return c, nil
}

func newDB(cfg *config.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.Open(ctx, cfg.DatabaseURL)
}

func newGateways(cfg *config.Config, log *logging.Log) Gateways {
	l := log.Named("gateways")
	g := Gateways{
		SMS:     notify.NewSMSGateway(cfg, log.Named("sms")),
		Chat:    notify.NewChatGateway(cfg, log.Named("telegram")),
		Payment: billing.NewPaymentGateway(cfg),
	}
	if g.Chat == nil {
		l.Info("telegram channel disabled")
	}
	if g.Payment == nil {
		l.Warn("stripe not configured: subscriptions disabled")
	}
	return g
}

func newMailer(cfg *config.Config, log *logging.Log) *notify.Mailer {
	return notify.NewMailer(notify.NewEmailGateway(cfg, log.Named("email")), cfg.Location)
}

func newLedger(tokens *db.Tokens, reservations *db.Reservations, log *logging.Log) *ledger.Service {
	return ledger.New(tokens, reservations, log.Named("ledger"))
}

func newAvailability(store *db.Availabilities, log *logging.Log) *availability.Service {
	return availability.New(store, log.Named("availability"))
}

func newBooking(cfg *config.Config, slots *db.Slots, reservations *db.Reservations, led *ledger.Service, mail *notify.Mailer, log *logging.Log) *booking.Service {
	return booking.New(slots, reservations, led, mail, cfg.Location, log.Named("booking"))
}

func newRating(cfg *config.Config, reservations *db.Reservations, evals *db.Evaluations, led *ledger.Service, log *logging.Log) *rating.Service {
	return rating.New(reservations, evals, led, cfg.Location, log.Named("rating"))
}

func newBilling(cfg *config.Config, gw Gateways, users *db.Users, led *ledger.Service, log *logging.Log) *billing.Service {
	return billing.New(gw.Payment, users, led, cfg.Stripe, log.Named("billing"))
}

func newCron(cfg *config.Config, slots *db.Slots, reservations *db.Reservations, users *db.Users,
	led *ledger.Service, gw Gateways, mail *notify.Mailer, log *logging.Log) *cron.Service {
	return cron.New(slots, reservations, users, led, gw.SMS, gw.Chat, mail, cron.Options{
		Location:       cfg.Location,
		ReminderWindow: cfg.ReminderWindow,
		BackfillWindow: cfg.BackfillWindow,
	}, log.Named("cron"))
}

type serverParams struct {
	dig.In

	Config       *config.Config
	Log          *logging.Log
	DB           *sqlx.DB
	Users        *db.Users
	Availability *availability.Service
	Ledger       *ledger.Service
	Booking      *booking.Service
	Rating       *rating.Service
	Billing      *billing.Service
	Cron         *cron.Service
}

func newHTTPServer(p serverParams) *httpapi.Server {
	return httpapi.NewServer(httpapi.Options{
		Addr:         p.Config.HTTPAddr,
		Debug:        !p.Config.IsProd() && p.Config.LogLevel == "debug",
		JWTSecret:    p.Config.JWTSecret,
		CronToken:    p.Config.CronToken,
		Location:     p.Config.Location,
		Log:          p.Log.Named("http"),
		DB:           p.DB,
		Users:        p.Users,
		Availability: p.Availability,
		Ledger:       p.Ledger,
		Booking:      p.Booking,
		Rating:       p.Rating,
		Billing:      p.Billing,
		Cron:         p.Cron,
	})
}
