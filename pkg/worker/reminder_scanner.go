package worker

import (
	"context"
	"time"

	"github.com/salonhq/booking-api/internal/service/notification"
	"github.com/salonhq/booking-api/pkg/logger"
)

// ReminderScanner periodically sweeps upcoming appointments and enqueues
// due reminders through the notification service.
type ReminderScanner struct {
	service      *notification.Service
	pollInterval time.Duration
	logger       *logger.Logger
}

func NewReminderScanner(service *notification.Service, pollInterval time.Duration, logger *logger.Logger) *ReminderScanner {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &ReminderScanner{
		service:      service,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func (s *ReminderScanner) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("Starting reminder scanner")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down reminder scanner")
			return
		case <-ticker.C:
			if err := s.service.ScanOnce(ctx); err != nil {
				s.logger.Error(err, "Failed to scan reminders")
			}
		}
	}
}
