package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/salonhq/booking-api/internal/config"
	"github.com/salonhq/booking-api/internal/service/payment"
)

// Gateway implements payment.Gateway on Stripe payment intents.
type Gateway struct {
	webhookSecret string
}

func NewGateway(cfg config.StripeConfig) *Gateway {
	stripego.Key = cfg.SecretKey
	return &Gateway{webhookSecret: cfg.WebhookSecret}
}

func (g *Gateway) CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (*payment.Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(toCents(amount)),
		Currency: stripego.String(string(stripego.CurrencyUSD)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create intent: %w", err)
	}
	return toIntent(intent), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve intent: %w", err)
	}
	return toIntent(intent), nil
}

func (g *Gateway) Refund(ctx context.Context, intentID string, amount *float64) (string, error) {
	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(intentID),
	}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripego.Int64(toCents(*amount))
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: refund: %w", err)
	}
	return r.ID, nil
}

func (g *Gateway) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	out := &payment.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}

	var intent stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err == nil {
		out.IntentID = intent.ID
		out.Amount = intent.Amount
		out.AppointmentID = intent.Metadata["appointmentId"]
	}

	return out, nil
}

func toIntent(intent *stripego.PaymentIntent) *payment.Intent {
	return &payment.Intent{
		ID:            intent.ID,
		ClientSecret:  intent.ClientSecret,
		Status:        string(intent.Status),
		Amount:        intent.Amount,
		AppointmentID: intent.Metadata["appointmentId"],
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

var _ payment.Gateway = (*Gateway)(nil)
