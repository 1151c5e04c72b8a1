// Package payments integrates the checkout flow with Stripe. Only payment
// intents are created server-side; confirmation happens on the client with
// the returned secret.
package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/velvette/api/internal/services"
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeIntentCreatorConfig configures the StripeIntentCreator.
type StripeIntentCreatorConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	// Intents overrides the live API client, primarily for tests.
	Intents stripePaymentIntentAPI
}

// StripeIntentCreator creates payment intents for online orders.
type StripeIntentCreator struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeIntentCreator constructs a Stripe-backed payment intent creator.
func NewStripeIntentCreator(cfg StripeIntentCreatorConfig) (*StripeIntentCreator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeIntentCreator{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent prepares a payment intent sized to the order total. The order
// ID doubles as the idempotency key so checkout retries reuse the same intent.
func (c *StripeIntentCreator) CreateIntent(ctx context.Context, req services.PaymentIntentRequest) (services.PaymentIntentResult, error) {
	if c == nil {
		return services.PaymentIntentResult{}, errors.New("stripe: intent creator is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return services.PaymentIntentResult{}, errors.New("stripe: order id is required")
	}
	if req.Amount <= 0 {
		return services.PaymentIntentResult{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return services.PaymentIntentResult{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + orderID)
	params.AddMetadata("orderId", orderID)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := c.intents.New(params)
	if err != nil {
		c.logger(ctx, "payments.intent.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return services.PaymentIntentResult{}, translateStripeError(err)
	}

	c.logger(ctx, "payments.intent.created", map[string]any{
		"orderId":  orderID,
		"intentId": intent.ID,
		"amount":   req.Amount,
		"currency": currency,
		"at":       c.clock(),
	})

	return services.PaymentIntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ErrPaymentDeclined indicates the processor rejected the payment setup.
var ErrPaymentDeclined = errors.New("stripe: payment declined")

func translateStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return errors.Join(ErrPaymentDeclined, err)
		}
	}
	return err
}

var _ services.PaymentIntentCreator = (*StripeIntentCreator)(nil)
