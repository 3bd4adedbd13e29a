// Package billing — подписка ученика через Stripe и начисление уроков по вебхукам.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/config"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/models"
)

const (
	eventInvoicePaid         = "invoice.paid"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

type UserStore interface {
	Get(ctx context.Context, id int64) (*models.User, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*models.User, error)
	SetStripeCustomer(ctx context.Context, userID int64, customerID string) error
}

type Ledger interface {
	Grant(ctx context.Context, studentID int64, amount int, ref string) (bool, error)
	Expire(ctx context.Context, studentID int64, ref string) (int, error)
}

type Service struct {
	gw     PaymentGateway // nil — оплаты не настроены
	users  UserStore
	ledger Ledger
	cfg    config.StripeConfig
	log    *zap.Logger
}

func New(gw PaymentGateway, users UserStore, ledger Ledger, cfg config.StripeConfig, log *zap.Logger) *Service {
	return &Service{gw: gw, users: users, ledger: ledger, cfg: cfg, log: log}
}

// Subscribe — оформить подписку ученику; клиент Stripe создаётся при первой подписке.
func (s *Service) Subscribe(ctx context.Context, studentID int64, promoCode string) (Subscription, error) {
	if s.gw == nil || s.cfg.PriceID == "" {
		return Subscription{}, apperr.Conflict("payments are not configured")
	}
	u, err := s.users.Get(ctx, studentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Subscription{}, apperr.NotFound("user %d not found", studentID)
		}
		return Subscription{}, apperr.Internal("load user", err)
	}
	if u.Role != models.Student {
		return Subscription{}, apperr.Forbidden("only students can subscribe")
	}

	var promoID string
	if promoCode != "" {
		promoID, err = s.gw.FindPromotionCode(ctx, promoCode)
		if errors.Is(err, ErrPromotionNotFound) {
			return Subscription{}, apperr.BadRequest("unknown promotion code %q", promoCode)
		}
		if err != nil {
			return Subscription{}, apperr.Internal("promotion code", err)
		}
	}

	customerID := ""
	if u.StripeCustomerID != nil {
		customerID = *u.StripeCustomerID
	} else {
		customerID, err = s.gw.CreateCustomer(ctx, u.ID, u.Email, u.Name)
		if err != nil {
			return Subscription{}, apperr.Internal("create customer", err)
		}
		if err := s.users.SetStripeCustomer(ctx, u.ID, customerID); err != nil {
			return Subscription{}, apperr.Internal("save customer", err)
		}
	}

	sub, err := s.gw.CreateSubscription(ctx, customerID, s.cfg.PriceID, promoID)
	if err != nil {
		return Subscription{}, apperr.Internal("create subscription", err)
	}
	s.log.Info("subscription created",
		zap.Int64("student_id", u.ID), zap.String("subscription_id", sub.ID), zap.String("status", sub.Status))
	return sub, nil
}

// ParseEvent — проверка подписи Stripe-Signature. Неверная подпись — Unauthorized.
func (s *Service) ParseEvent(payload []byte, signature string) (stripe.Event, error) {
	if s.cfg.WebhookSecret == "" {
		return stripe.Event{}, apperr.Conflict("stripe webhook is not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "invalid stripe signature", Err: err}
	}
	return ev, nil
}

// HandleEvent — оплаченный инвойс начисляет уроки, удалённая подписка сжигает остаток.
// Повторная доставка того же события ничего не меняет: ссылки на инвойс/подписку уникальны.
func (s *Service) HandleEvent(ctx context.Context, ev stripe.Event) error {
	if ev.Data == nil {
		return apperr.BadRequest("stripe event %s has no data", ev.ID)
	}
	switch string(ev.Type) {
	case eventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return apperr.BadRequest("invoice payload: %v", err)
		}
		u, ok, err := s.customer(ctx, inv.Customer)
		if err != nil || !ok {
			return err
		}
		granted, err := s.ledger.Grant(ctx, u.ID, s.cfg.TokensPerInvoice, "invoice:"+inv.ID)
		if err != nil {
			return fmt.Errorf("grant for invoice %s: %w", inv.ID, err)
		}
		s.log.Info("invoice paid", zap.String("invoice_id", inv.ID), zap.Int64("student_id", u.ID), zap.Bool("granted", granted))

	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return apperr.BadRequest("subscription payload: %v", err)
		}
		u, ok, err := s.customer(ctx, sub.Customer)
		if err != nil || !ok {
			return err
		}
		burned, err := s.ledger.Expire(ctx, u.ID, "subscription:"+sub.ID)
		if err != nil {
			return fmt.Errorf("expire for subscription %s: %w", sub.ID, err)
		}
		s.log.Info("subscription ended", zap.String("subscription_id", sub.ID), zap.Int64("student_id", u.ID), zap.Int("burned", burned))

	default:
		s.log.Debug("stripe event ignored", zap.String("type", string(ev.Type)), zap.String("event_id", ev.ID))
	}
	return nil
}

// customer — ученик по клиенту Stripe; неизвестный клиент не ошибка (событие чужого аккаунта/теста).
func (s *Service) customer(ctx context.Context, c *stripe.Customer) (*models.User, bool, error) {
	if c == nil || c.ID == "" {
		s.log.Warn("stripe event without customer")
		return nil, false, nil
	}
	u, err := s.users.GetByStripeCustomer(ctx, c.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.log.Warn("stripe customer is not linked to a user", zap.String("customer_id", c.ID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("user by stripe customer: %w", err)
	}
	return u, true, nil
}
