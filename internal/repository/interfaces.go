package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/model"
)

// Sentinel errors surfaced by repository implementations. Services translate
// these into user-facing error kinds.
var (
	ErrNotFound = errors.New("not found")

	// ErrSlotConflict is returned by CreateIfSlotFree when another
	// non-cancelled appointment for the same employee overlaps the
	// requested interval.
	ErrSlotConflict = errors.New("time slot already booked")

	// ErrStatusChanged is returned by conditional updates when the
	// appointment's status no longer matches the value the caller read.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

type (
	// AppointmentRepository handles appointment persistence. All
	// status-dependent writes are conditional, there are no blind updates.
	AppointmentRepository interface {
		// CreateIfSlotFree inserts the appointment only if no blocking
		// appointment for the same employee overlaps [StartTime, EndTime).
		// The overlap check and the insert run in one transaction.
		CreateIfSlotFree(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ListBlockingForDay returns the appointments in slot-blocking
		// statuses whose interval falls on the given day.
		ListBlockingForDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*model.Appointment, error)
		// UpdateIfStatus writes the appointment's mutable fields, guarded
		// on the status the caller previously read.
		UpdateIfStatus(ctx context.Context, appointment *model.Appointment, expected model.AppointmentStatus) error
		// ApplyPaymentEvent applies a succeeded payment idempotently.
		// Returns false when the gateway event was already applied.
		ApplyPaymentEvent(ctx context.Context, id uuid.UUID, eventID string, amount float64) (bool, error)
		SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
		// ListDueReminders returns appointments starting inside
		// [from, to) whose given reminder flag is still unset.
		ListDueReminders(ctx context.Context, flag string, from, to time.Time) ([]*model.Appointment, error)
		// MarkReminderAndEnqueue flips a write-once reminder flag and
		// writes the outbox event in the same transaction.
		MarkReminderAndEnqueue(ctx context.Context, id uuid.UUID, flag string, event *model.OutboxEvent) error
	}

	// ServiceRepository reads the service catalog.
	ServiceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
		List(ctx context.Context) ([]*model.Service, error)
		ListCategories(ctx context.Context) ([]*model.Category, error)
	}

	// UserRepository reads the minimal user projection.
	UserRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		FindActiveEmployees(ctx context.Context) ([]*model.User, error)
	}

	// OutboxRepository drains pending reminder events.
	OutboxRepository interface {
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
	}
)
