package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/repository"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
)

// AssignmentStrategy picks an employee for a booking that did not name one.
// Swapping in a load- or availability-aware policy must not touch the
// booking flow.
type AssignmentStrategy interface {
	Assign(ctx context.Context, serviceID uuid.UUID, startTime time.Time) (uuid.UUID, error)
}

// FirstActiveStrategy assigns the first active employee on record. It is a
// placeholder policy, not load balancing.
type FirstActiveStrategy struct {
	users repository.UserRepository
}

func NewFirstActiveStrategy(users repository.UserRepository) *FirstActiveStrategy {
	return &FirstActiveStrategy{users: users}
}

func (s *FirstActiveStrategy) Assign(ctx context.Context, serviceID uuid.UUID, startTime time.Time) (uuid.UUID, error) {
	employees, err := s.users.FindActiveEmployees(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(employees) == 0 {
		return uuid.Nil, apperrors.BadRequest("no employees available", nil)
	}
	return employees[0].ID, nil
}

var _ AssignmentStrategy = (*FirstActiveStrategy)(nil)
