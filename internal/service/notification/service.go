package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/messaging"
	"github.com/salonhq/booking-api/pkg/metrics"
)

// Catalog resolves service names for reminder copy.
type Catalog interface {
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
}

// window pairs a reminder flag with its lead time and channel.
type window struct {
	flag    string
	lead    time.Duration
	channel string
	label   string
}

var windows = []window{
	{flag: "reminder_email_24h", lead: 24 * time.Hour, channel: messaging.ChannelReminderEmail, label: "24h"},
	{flag: "reminder_sms_24h", lead: 24 * time.Hour, channel: messaging.ChannelReminderSMS, label: "24h"},
	{flag: "reminder_email_2h", lead: 2 * time.Hour, channel: messaging.ChannelReminderEmail, label: "2h"},
	{flag: "reminder_sms_2h", lead: 2 * time.Hour, channel: messaging.ChannelReminderSMS, label: "2h"},
}

// Service finds appointments whose reminders are due and enqueues reminder
// events. The flag flip and the outbox write are one transaction, so a flag
// is never set without a queued event. Actual delivery is downstream.
type Service struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	catalog      Catalog
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	catalog Catalog,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		appointments: appointments,
		users:        users,
		catalog:      catalog,
		logger:       log,
		metrics:      m,
		now:          time.Now,
	}
}

// ScanOnce walks every reminder window and enqueues what is due.
func (s *Service) ScanOnce(ctx context.Context) error {
	now := s.now()

	for _, w := range windows {
		due, err := s.appointments.ListDueReminders(ctx, w.flag, now, now.Add(w.lead))
		if err != nil {
			return fmt.Errorf("failed to scan %s reminders: %w", w.flag, err)
		}

		for _, apt := range due {
			if err := s.enqueue(ctx, apt, w); err != nil {
				s.logger.Error(err, "failed to enqueue reminder",
					"appointment_id", apt.ID.String(), "flag", w.flag)
				continue
			}
		}
	}

	return nil
}

func (s *Service) enqueue(ctx context.Context, apt *model.Appointment, w window) error {
	client, err := s.users.Get(ctx, apt.ClientID)
	if err != nil {
		return fmt.Errorf("failed to resolve client: %w", err)
	}

	serviceName := ""
	if service, err := s.catalog.GetService(ctx, apt.ServiceID); err == nil {
		serviceName = service.Name
	}

	payload, err := json.Marshal(messaging.ReminderMessage{
		AppointmentID: apt.ID.String(),
		ClientEmail:   client.Email,
		ClientPhone:   client.Phone,
		ServiceName:   serviceName,
		StartTime:     apt.StartTime.Format(time.RFC3339),
		Window:        w.label,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	err = s.appointments.MarkReminderAndEnqueue(ctx, apt.ID, w.flag, &model.OutboxEvent{
		EventType: w.channel,
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RemindersEnqueued.WithLabelValues(w.channel, w.label).Inc()
	}
	return nil
}
