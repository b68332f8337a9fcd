package payment

import (
	"context"
)

// Gateway event types the reconciler understands. Anything else is
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Intent is the gateway's view of a payment attempt. Amount is in the
// gateway's minor unit (cents).
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	Amount        int64
	AppointmentID string
}

// Event is a signature-verified gateway notification. Delivery is
// at-least-once and possibly out of order; ID is the idempotency key.
type Event struct {
	ID            string
	Type          string
	IntentID      string
	AppointmentID string
	Amount        int64
}

// Gateway abstracts the payment provider. Webhook signature verification
// happens inside VerifyWebhook; the reconciler trusts its output.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	Refund(ctx context.Context, intentID string, amount *float64) (string, error)
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
