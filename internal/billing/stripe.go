package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/Spok95/tutoring-platform/internal/config"
)

var ErrPromotionNotFound = errors.New("promotion code not found")

// Subscription — то, что нужно клиенту для подтверждения первой оплаты.
type Subscription struct {
	ID           string `json:"subscriptionId"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret"`
}

type PaymentGateway interface {
	CreateCustomer(ctx context.Context, userID int64, email, name string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID, promotionCodeID string) (Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	FindPromotionCode(ctx context.Context, code string) (string, error)
}

// NewPaymentGateway — nil, если ключ Stripe не задан.
func NewPaymentGateway(cfg *config.Config) PaymentGateway {
	if cfg.Stripe.SecretKey == "" {
		return nil
	}
	return &StripeGateway{api: client.New(cfg.Stripe.SecretKey, nil)}
}

type StripeGateway struct {
	api *client.API
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, userID int64, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

// CreateSubscription — подписка в статусе incomplete; clientSecret берётся из
// PaymentIntent первого инвойса.
func (g *StripeGateway) CreateSubscription(ctx context.Context, customerID, priceID, promotionCodeID string) (Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if promotionCodeID != "" {
		params.PromotionCode = stripe.String(promotionCodeID)
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe create subscription: %w", err)
	}
	out := Subscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := g.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

// FindPromotionCode — id активного промокода по его коду.
func (g *StripeGateway) FindPromotionCode(ctx context.Context, code string) (string, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := g.api.PromotionCodes.List(params)
	if it.Next() {
		return it.PromotionCode().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("stripe promotion codes: %w", err)
	}
	return "", ErrPromotionNotFound
}
