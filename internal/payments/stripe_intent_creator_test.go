package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"

	"github.com/velvette/api/internal/services"
)

type stubIntentAPI struct {
	lastParams *stripe.PaymentIntentParams
	intent     *stripe.PaymentIntent
	err        error
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	return s.intent, nil
}

func TestStripeIntentCreatorCreatesIntent(t *testing.T) {
	api := &stubIntentAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
	}}
	creator, err := NewStripeIntentCreator(StripeIntentCreatorConfig{Intents: api})
	if err != nil {
		t.Fatalf("NewStripeIntentCreator returned error: %v", err)
	}

	result, err := creator.CreateIntent(context.Background(), services.PaymentIntentRequest{
		OrderID:  "order-77",
		Amount:   1250000,
		Currency: "VND",
		Metadata: map[string]string{"channel": "storefront"},
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if result.IntentID != "pi_123" || result.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected result %+v", result)
	}

	params := api.lastParams
	if params == nil {
		t.Fatal("expected intent params to be recorded")
	}
	if got := *params.Amount; got != 1250000 {
		t.Fatalf("expected amount 1250000, got %d", got)
	}
	if got := *params.Currency; got != "vnd" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "order-order-77" {
		t.Fatalf("unexpected idempotency key %v", params.IdempotencyKey)
	}
	if params.Metadata["orderId"] != "order-77" || params.Metadata["channel"] != "storefront" {
		t.Fatalf("unexpected metadata %v", params.Metadata)
	}
}

func TestStripeIntentCreatorValidation(t *testing.T) {
	creator, err := NewStripeIntentCreator(StripeIntentCreatorConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("NewStripeIntentCreator returned error: %v", err)
	}

	tests := []struct {
		name string
		req  services.PaymentIntentRequest
	}{
		{name: "missing order id", req: services.PaymentIntentRequest{Amount: 100, Currency: "vnd"}},
		{name: "zero amount", req: services.PaymentIntentRequest{OrderID: "order-1", Currency: "vnd"}},
		{name: "missing currency", req: services.PaymentIntentRequest{OrderID: "order-1", Amount: 100}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := creator.CreateIntent(context.Background(), tc.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestStripeIntentCreatorTranslatesCardErrors(t *testing.T) {
	api := &stubIntentAPI{err: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "card declined"}}
	creator, err := NewStripeIntentCreator(StripeIntentCreatorConfig{Intents: api})
	if err != nil {
		t.Fatalf("NewStripeIntentCreator returned error: %v", err)
	}

	_, err = creator.CreateIntent(context.Background(), services.PaymentIntentRequest{
		OrderID:  "order-9",
		Amount:   500,
		Currency: "vnd",
	})
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
}

func TestStripeIntentCreatorRequiresAPIKeyOrClient(t *testing.T) {
	if _, err := NewStripeIntentCreator(StripeIntentCreatorConfig{}); err == nil {
		t.Fatal("expected error when neither api key nor client is provided")
	}
}
