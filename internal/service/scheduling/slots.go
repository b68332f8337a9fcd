package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/model"
)

// Availability enumerates the business-hours grid for a date and marks each
// candidate start unavailable when the service would not finish inside the
// window or would overlap a blocking appointment.
//
// Availability is computed against all appointments regardless of assigned
// employee. That matches a single shared floor; per-employee calendars are a
// known limitation.
func (s *Service) Availability(ctx context.Context, date time.Time, serviceID uuid.UUID) ([]model.Slot, error) {
	service, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	appointments, err := s.repo.ListBlockingForDay(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load day appointments: %w", err)
	}

	open := dayStart.Add(time.Duration(s.booking.OpenHour) * time.Hour)
	close := dayStart.Add(time.Duration(s.booking.CloseHour) * time.Hour)
	grid := time.Duration(s.booking.SlotMinutes) * time.Minute
	serviceLen := time.Duration(service.Duration) * time.Minute

	var slots []model.Slot
	for slotStart := open; slotStart.Before(close); slotStart = slotStart.Add(grid) {
		slotEnd := slotStart.Add(serviceLen)

		available := !slotEnd.After(close)
		if available {
			for _, apt := range appointments {
				// Half-open intervals: back-to-back bookings do not clash.
				if slotStart.Before(apt.EndTime) && slotEnd.After(apt.StartTime) {
					available = false
					break
				}
			}
		}

		slots = append(slots, model.Slot{
			Time:      slotStart.Format("15:04"),
			Available: available,
		})
	}

	return slots, nil
}
