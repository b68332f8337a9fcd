package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/config"
	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
	"github.com/salonhq/booking-api/pkg/logger"
)

const pinGenerationAttempts = 5

// Catalog is the narrow slice of the catalog service the booking flow needs.
type Catalog interface {
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
}

type Service struct {
	repo    repository.AppointmentRepository
	users   repository.UserRepository
	catalog Catalog
	assign  AssignmentStrategy
	booking config.BookingConfig
	policy  config.CancellationConfig
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	users repository.UserRepository,
	catalog Catalog,
	assign AssignmentStrategy,
	booking config.BookingConfig,
	policy config.CancellationConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		catalog: catalog,
		assign:  assign,
		booking: booking,
		policy:  policy,
		logger:  log,
		now:     time.Now,
	}
}

// legalTransitions is the appointment state machine. Terminal states have no
// entry and therefore never transition further.
var legalTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:    {model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled},
	model.AppointmentStatusConfirmed:  {model.AppointmentStatusCheckedIn, model.AppointmentStatusCancelled, model.AppointmentStatusNoShow},
	model.AppointmentStatusCheckedIn:  {model.AppointmentStatusInProgress, model.AppointmentStatusNoShow},
	model.AppointmentStatusInProgress: {model.AppointmentStatusCompleted},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateAppointment books a service, resolving the primary service, folding
// in resolvable add-ons, assigning an employee and persisting atomically
// against competing bookings for the same employee and interval.
func (s *Service) CreateAppointment(ctx context.Context, requesterID uuid.UUID, role string, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	service, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	totalDuration := service.Duration
	totalPrice := service.Price
	var addOns model.AddOnSnapshots

	// Unresolvable add-on ids are dropped without error; the client sees
	// what was actually booked in the returned snapshot list.
	for _, addOn := range req.AddOns {
		additional, err := s.catalog.GetService(ctx, addOn.ServiceID)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		totalDuration += additional.Duration
		totalPrice += additional.Price
		addOns = append(addOns, model.AddOnSnapshot{
			ServiceID: additional.ID,
			Name:      additional.Name,
			Price:     additional.Price,
			Duration:  additional.Duration,
		})
	}

	endTime := req.StartTime.Add(time.Duration(totalDuration) * time.Minute)

	employeeID := uuid.Nil
	if req.EmployeeID != nil {
		employeeID = *req.EmployeeID
	} else {
		employeeID, err = s.assign.Assign(ctx, req.ServiceID, req.StartTime)
		if err != nil {
			return nil, err
		}
	}

	clientID, createdBy, err := resolveClient(requesterID, role, req.ClientID)
	if err != nil {
		return nil, err
	}

	bookedAt := s.now()
	qrCode, err := generateQRCode(clientID, bookedAt)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	pinCode, err := s.uniquePINForDay(ctx, req.Date)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	deadline := req.StartTime.Add(-time.Duration(s.policy.FreeHours) * time.Hour)

	appointment := &model.Appointment{
		ClientID:         clientID,
		EmployeeID:       employeeID,
		ServiceID:        service.ID,
		AddOns:           addOns,
		Date:             req.Date,
		StartTime:        req.StartTime,
		EndTime:          endTime,
		Duration:         totalDuration,
		Status:           model.AppointmentStatusPending,
		TotalPrice:       totalPrice,
		DepositPaid:      0,
		RemainingBalance: totalPrice,
		PaymentStatus:    model.PaymentStatusAwaitingDeposit,
		SpecialRequests:  req.SpecialRequests,
		Cancellation: model.CancellationTerms{
			Deadline: deadline,
			Fee:      0,
		},
		QRCode:    qrCode,
		PINCode:   pinCode,
		CreatedBy: createdBy,
	}

	if err := s.repo.CreateIfSlotFree(ctx, appointment); err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return nil, apperrors.Conflict("time slot is no longer available", err)
		}
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.logger.Info("appointment created",
		"appointment_id", appointment.ID.String(),
		"employee_id", employeeID.String(),
		"start_time", req.StartTime)

	return appointment, nil
}

func resolveClient(requesterID uuid.UUID, role, clientID string) (uuid.UUID, model.CreatedBy, error) {
	if role != model.RoleManager {
		return requesterID, model.CreatedByClient, nil
	}
	if clientID == "" {
		// Walk-in without an account: the booking is held under the
		// manager who created it.
		return requesterID, model.CreatedByWalkIn, nil
	}
	parsed, err := uuid.Parse(clientID)
	if err != nil {
		return uuid.Nil, "", apperrors.BadRequest("invalid client id", err)
	}
	return parsed, model.CreatedByManager, nil
}

// uniquePINForDay re-rolls until the PIN does not collide with another
// booking on the same day.
func (s *Service) uniquePINForDay(ctx context.Context, date time.Time) (string, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	existing, err := s.repo.ListBlockingForDay(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return "", err
	}

	taken := make(map[string]bool, len(existing))
	for _, apt := range existing {
		taken[apt.PINCode] = true
	}

	for i := 0; i < pinGenerationAttempts; i++ {
		pin, err := generatePIN()
		if err != nil {
			return "", err
		}
		if !taken[pin] {
			return pin, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique pin after %d attempts", pinGenerationAttempts)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appointment, nil
}

// ListAppointments returns the requester's bookings: the ones they booked as
// a client, or the ones assigned to them as an employee.
func (s *Service) ListAppointments(ctx context.Context, userID uuid.UUID, role string) ([]*model.Appointment, error) {
	filters := &model.AppointmentFilters{}
	if role == model.RoleEmployee {
		filters.EmployeeID = userID
	} else {
		filters.ClientID = userID
	}

	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// UpdateAppointment applies a client's free-form changes. Slot conflicts are
// not re-validated on update.
func (s *Service) UpdateAppointment(ctx context.Context, id, requesterID uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	return s.mutate(ctx, id, func(apt *model.Appointment) error {
		if apt.ClientID != requesterID {
			return apperrors.Unauthorized("not authorized to update this appointment", nil)
		}
		if apt.Status == model.AppointmentStatusCompleted {
			return apperrors.BadRequest("cannot update completed appointment", nil)
		}
		if apt.Status.IsTerminal() {
			return apperrors.BadRequest(fmt.Sprintf("cannot update %s appointment", apt.Status), nil)
		}

		if req.Date != nil {
			apt.Date = *req.Date
		}
		if req.StartTime != nil {
			apt.StartTime = *req.StartTime
		}
		if req.EmployeeID != nil {
			apt.EmployeeID = *req.EmployeeID
		}
		if req.SpecialRequests != nil {
			apt.SpecialRequests = *req.SpecialRequests
		}
		if req.AddOns != nil {
			if err := s.reapplyAddOns(ctx, apt, req.AddOns); err != nil {
				return err
			}
		}
		apt.EndTime = apt.StartTime.Add(time.Duration(apt.Duration) * time.Minute)
		return nil
	})
}

// reapplyAddOns rebuilds the add-on snapshot list and re-aggregates price
// and duration from the primary service upward.
func (s *Service) reapplyAddOns(ctx context.Context, apt *model.Appointment, addOns []model.AddOnRequest) error {
	primary, err := s.catalog.GetService(ctx, apt.ServiceID)
	if err != nil {
		return err
	}

	totalDuration := primary.Duration
	totalPrice := primary.Price
	var snapshots model.AddOnSnapshots

	for _, addOn := range addOns {
		additional, err := s.catalog.GetService(ctx, addOn.ServiceID)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrNotFound) {
				continue
			}
			return err
		}
		totalDuration += additional.Duration
		totalPrice += additional.Price
		snapshots = append(snapshots, model.AddOnSnapshot{
			ServiceID: additional.ID,
			Name:      additional.Name,
			Price:     additional.Price,
			Duration:  additional.Duration,
		})
	}

	apt.AddOns = snapshots
	apt.Duration = totalDuration
	apt.TotalPrice = totalPrice
	apt.RemainingBalance = totalPrice - apt.DepositPaid
	return nil
}

// CancelAppointment cancels the booking and computes the refundable part of
// the deposit from the terms snapshotted at booking. Executing the refund
// against the gateway is the caller's follow-up, it is not atomic with the
// status change.
func (s *Service) CancelAppointment(ctx context.Context, id, requesterID uuid.UUID) (*model.Appointment, float64, error) {
	var refund float64
	apt, err := s.mutate(ctx, id, func(apt *model.Appointment) error {
		if apt.ClientID != requesterID {
			return apperrors.Unauthorized("not authorized to cancel this appointment", nil)
		}
		if !canTransition(apt.Status, model.AppointmentStatusCancelled) {
			return apperrors.BadRequest(fmt.Sprintf("cannot cancel %s appointment", apt.Status), nil)
		}

		refund = apt.DepositPaid
		if s.now().After(apt.Cancellation.Deadline) {
			refund = apt.DepositPaid * (1 - s.policy.LateFeePercent/100)
		}
		if refund < 0 {
			refund = 0
		}

		apt.Cancellation.Fee = apt.DepositPaid - refund
		apt.Status = model.AppointmentStatusCancelled
		if apt.DepositPaid > 0 {
			apt.PaymentStatus = model.PaymentStatusRefunded
		} else {
			apt.PaymentStatus = model.PaymentStatusCancelled
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info("appointment cancelled",
		"appointment_id", id.String(),
		"refund", refund,
		"fee", apt.Cancellation.Fee)

	return apt, refund, nil
}

// CheckIn verifies the presented credential against the stored ones. At
// least one credential is required; each supplied one must match exactly.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, qrCode, pinCode string) (*model.Appointment, error) {
	return s.mutate(ctx, id, func(apt *model.Appointment) error {
		if qrCode == "" && pinCode == "" {
			return apperrors.BadRequest("a QR code or PIN is required to check in", nil)
		}
		if qrCode != "" && apt.QRCode != qrCode {
			return apperrors.BadRequest("Invalid QR code", nil)
		}
		if pinCode != "" && apt.PINCode != pinCode {
			return apperrors.BadRequest("Invalid PIN code", nil)
		}
		if !canTransition(apt.Status, model.AppointmentStatusCheckedIn) {
			return apperrors.BadRequest(fmt.Sprintf("cannot check in %s appointment", apt.Status), nil)
		}

		now := s.now()
		apt.Status = model.AppointmentStatusCheckedIn
		apt.CheckInTime = &now
		return nil
	})
}

// StartService moves a checked-in appointment to in-progress.
func (s *Service) StartService(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.transitionTo(ctx, id, model.AppointmentStatusInProgress, nil)
}

// CompleteService finishes an in-progress appointment.
func (s *Service) CompleteService(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.transitionTo(ctx, id, model.AppointmentStatusCompleted, func(apt *model.Appointment) {
		now := s.now()
		apt.CompletedTime = &now
	})
}

// MarkNoShow records that the client failed to appear.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.transitionTo(ctx, id, model.AppointmentStatusNoShow, nil)
}

func (s *Service) transitionTo(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, apply func(*model.Appointment)) (*model.Appointment, error) {
	return s.mutate(ctx, id, func(apt *model.Appointment) error {
		if !canTransition(apt.Status, to) {
			return apperrors.BadRequest(fmt.Sprintf("cannot move %s appointment to %s", apt.Status, to), nil)
		}
		apt.Status = to
		if apply != nil {
			apply(apt)
		}
		return nil
	})
}

// mutate reads the appointment, applies fn, and writes back conditioned on
// the status it read. A concurrent status change triggers one re-read and
// retry; a second failure surfaces as a conflict.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*model.Appointment) error) (*model.Appointment, error) {
	apt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		expected := apt.Status
		if err := fn(apt); err != nil {
			return nil, err
		}

		err = s.repo.UpdateIfStatus(ctx, apt, expected)
		if err == nil {
			return apt, nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		if !errors.Is(err, repository.ErrStatusChanged) {
			return nil, fmt.Errorf("failed to update appointment: %w", err)
		}

		apt, err = s.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	return nil, apperrors.Conflict("appointment was modified concurrently", nil)
}
