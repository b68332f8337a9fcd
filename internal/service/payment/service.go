package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/config"
	"github.com/salonhq/booking-api/internal/repository"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
	"github.com/salonhq/booking-api/pkg/logger"
)

// Service reconciles appointment payment state with the gateway. Webhook
// application is idempotent on the gateway event id.
type Service struct {
	repo    repository.AppointmentRepository
	gateway Gateway
	cfg     config.StripeConfig
	logger  *logger.Logger
}

func NewService(repo repository.AppointmentRepository, gateway Gateway, cfg config.StripeConfig, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		logger:  log,
	}
}

// CreatePaymentIntent opens a gateway intent for the appointment deposit and
// records the intent id. Gateway failures surface to the caller, who may
// resubmit; there is no internal retry.
func (s *Service) CreatePaymentIntent(ctx context.Context, appointmentID uuid.UUID, amount float64) (*Intent, error) {
	if amount <= 0 {
		amount = s.cfg.DepositAmount
	}

	if _, err := s.repo.Get(ctx, appointmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, map[string]string{
		"appointmentId": appointmentID.String(),
	})
	if err != nil {
		return nil, apperrors.BadRequest("payment intent creation failed", err)
	}

	if err := s.repo.SetPaymentIntent(ctx, appointmentID, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	return intent, nil
}

// HandleEvent applies a verified gateway event. Replays and unknown event
// types are no-ops; the webhook endpoint never signals retryable failure for
// business no-ops.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventPaymentSucceeded:
		return s.applySucceeded(ctx, event)
	case EventPaymentFailed:
		// Recorded for operational visibility only.
		s.logger.Warn("payment failed",
			"event_id", event.ID,
			"intent_id", event.IntentID,
			"appointment_id", event.AppointmentID)
		return nil
	default:
		s.logger.Debug("ignoring gateway event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (s *Service) applySucceeded(ctx context.Context, event *Event) error {
	appointmentID, err := uuid.Parse(event.AppointmentID)
	if err != nil {
		s.logger.Warn("gateway event without usable appointment id",
			"event_id", event.ID, "appointment_id", event.AppointmentID)
		return nil
	}

	applied, err := s.repo.ApplyPaymentEvent(ctx, appointmentID, event.ID, float64(event.Amount)/100)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("gateway event for unknown appointment",
				"event_id", event.ID, "appointment_id", event.AppointmentID)
			return nil
		}
		return fmt.Errorf("failed to apply payment event: %w", err)
	}

	if !applied {
		s.logger.Info("duplicate gateway event skipped", "event_id", event.ID)
		return nil
	}

	s.logger.Info("deposit applied",
		"event_id", event.ID,
		"appointment_id", event.AppointmentID,
		"amount", float64(event.Amount)/100)
	return nil
}

// ConfirmPayment pulls the intent from the gateway and applies it through
// the same idempotent path as the webhook, keyed on the intent id.
func (s *Service) ConfirmPayment(ctx context.Context, intentID string) (bool, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return false, apperrors.BadRequest("failed to retrieve payment intent", err)
	}

	if intent.Status != "succeeded" {
		return false, nil
	}

	err = s.HandleEvent(ctx, &Event{
		ID:            "pull:" + intent.ID,
		Type:          EventPaymentSucceeded,
		IntentID:      intent.ID,
		AppointmentID: intent.AppointmentID,
		Amount:        intent.Amount,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RefundPayment is a partial or full refund passthrough.
func (s *Service) RefundPayment(ctx context.Context, intentID string, amount *float64) (string, error) {
	refundID, err := s.gateway.Refund(ctx, intentID, amount)
	if err != nil {
		return "", apperrors.BadRequest("refund failed", err)
	}
	return refundID, nil
}

// VerifyWebhook delegates signature verification to the gateway SDK.
func (s *Service) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, apperrors.BadRequest("webhook signature verification failed", err)
	}
	return event, nil
}
