package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhq/booking-api/internal/config"
	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
	"github.com/salonhq/booking-api/pkg/logger"
)

type fakeAppointmentRepo struct {
	appointments map[uuid.UUID]*model.Appointment
	blocking     []*model.Appointment

	conflictOnCreate bool
	// statusChanges returns ErrStatusChanged for the first N conditional
	// updates, flipping the stored status to simulate a concurrent writer.
	statusChanges int
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (f *fakeAppointmentRepo) put(apt *model.Appointment) *model.Appointment {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	copied := *apt
	f.appointments[apt.ID] = &copied
	return apt
}

func (f *fakeAppointmentRepo) CreateIfSlotFree(ctx context.Context, apt *model.Appointment) error {
	if f.conflictOnCreate {
		return repository.ErrSlotConflict
	}
	apt.ID = uuid.New()
	f.put(apt)
	return nil
}

func (f *fakeAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := f.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *apt
	return &copied, nil
}

func (f *fakeAppointmentRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, apt := range f.appointments {
		if filters.ClientID != uuid.Nil && apt.ClientID != filters.ClientID {
			continue
		}
		if filters.EmployeeID != uuid.Nil && apt.EmployeeID != filters.EmployeeID {
			continue
		}
		copied := *apt
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeAppointmentRepo) ListBlockingForDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*model.Appointment, error) {
	return f.blocking, nil
}

func (f *fakeAppointmentRepo) UpdateIfStatus(ctx context.Context, apt *model.Appointment, expected model.AppointmentStatus) error {
	stored, ok := f.appointments[apt.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if f.statusChanges > 0 {
		f.statusChanges--
		stored.Status = model.AppointmentStatusConfirmed
		return repository.ErrStatusChanged
	}
	if stored.Status != expected {
		return repository.ErrStatusChanged
	}
	copied := *apt
	f.appointments[apt.ID] = &copied
	return nil
}

func (f *fakeAppointmentRepo) ApplyPaymentEvent(ctx context.Context, id uuid.UUID, eventID string, amount float64) (bool, error) {
	return true, nil
}

func (f *fakeAppointmentRepo) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	return nil
}

func (f *fakeAppointmentRepo) ListDueReminders(ctx context.Context, flag string, from, to time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointmentRepo) MarkReminderAndEnqueue(ctx context.Context, id uuid.UUID, flag string, event *model.OutboxEvent) error {
	return nil
}

type fakeCatalog struct {
	services map[uuid.UUID]*model.Service
}

func (f *fakeCatalog) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, apperrors.NotFound("service", nil)
	}
	return svc, nil
}

type fakeUserRepo struct {
	users     map[uuid.UUID]*model.User
	employees []*model.User
}

func (f *fakeUserRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) FindActiveEmployees(ctx context.Context) ([]*model.User, error) {
	return f.employees, nil
}

type fixedStrategy struct {
	employeeID uuid.UUID
}

func (s *fixedStrategy) Assign(ctx context.Context, serviceID uuid.UUID, startTime time.Time) (uuid.UUID, error) {
	return s.employeeID, nil
}

var testBooking = config.BookingConfig{OpenHour: 9, CloseHour: 18, SlotMinutes: 30}
var testPolicy = config.CancellationConfig{FreeHours: 24, LateFeePercent: 50, NoShowPercent: 100}

func newTestService(repo *fakeAppointmentRepo, cat *fakeCatalog) *Service {
	return NewService(repo, &fakeUserRepo{}, cat, &fixedStrategy{employeeID: uuid.New()}, testBooking, testPolicy, logger.NewLogger(nil))
}

func newService(id uuid.UUID, name string, duration int, price float64) *model.Service {
	svc := &model.Service{Name: name, Duration: duration, Price: price, Status: model.ServiceStatusActive}
	svc.ID = id
	return svc
}

func TestCreateAppointmentAggregatesAddOns(t *testing.T) {
	repo := newFakeAppointmentRepo()
	primaryID, addOnID := uuid.New(), uuid.New()
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{
		primaryID: newService(primaryID, "Haircut", 60, 50),
		addOnID:   newService(addOnID, "Beard Trim", 30, 20),
	}}
	svc := newTestService(repo, cat)

	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	apt, err := svc.CreateAppointment(context.Background(), uuid.New(), model.RoleClient, &model.CreateAppointmentRequest{
		ServiceID: primaryID,
		AddOns:    []model.AddOnRequest{{ServiceID: addOnID}},
		Date:      start,
		StartTime: start,
	})

	require.NoError(t, err)
	assert.Equal(t, 90, apt.Duration)
	assert.Equal(t, 70.0, apt.TotalPrice)
	assert.Equal(t, 70.0, apt.RemainingBalance)
	assert.Equal(t, start.Add(90*time.Minute), apt.EndTime)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, model.PaymentStatusAwaitingDeposit, apt.PaymentStatus)
	assert.Len(t, apt.AddOns, 1)
	assert.NotEmpty(t, apt.QRCode)
	assert.Len(t, apt.PINCode, 6)
	assert.Equal(t, start.Add(-24*time.Hour), apt.Cancellation.Deadline)
	assert.Equal(t, model.CreatedByClient, apt.CreatedBy)
}

func TestCreateAppointmentSkipsUnknownAddOns(t *testing.T) {
	repo := newFakeAppointmentRepo()
	primaryID := uuid.New()
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{
		primaryID: newService(primaryID, "Massage", 45, 80),
	}}
	svc := newTestService(repo, cat)

	start := time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC)
	apt, err := svc.CreateAppointment(context.Background(), uuid.New(), model.RoleClient, &model.CreateAppointmentRequest{
		ServiceID: primaryID,
		AddOns:    []model.AddOnRequest{{ServiceID: uuid.New()}},
		Date:      start,
		StartTime: start,
	})

	require.NoError(t, err)
	assert.Equal(t, 45, apt.Duration)
	assert.Equal(t, 80.0, apt.TotalPrice)
	assert.Empty(t, apt.AddOns)
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	repo := newFakeAppointmentRepo()
	repo.conflictOnCreate = true
	primaryID := uuid.New()
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{
		primaryID: newService(primaryID, "Haircut", 60, 50),
	}}
	svc := newTestService(repo, cat)

	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	_, err := svc.CreateAppointment(context.Background(), uuid.New(), model.RoleClient, &model.CreateAppointmentRequest{
		ServiceID: primaryID,
		Date:      start,
		StartTime: start,
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestCreateAppointmentManagerForNamedClient(t *testing.T) {
	repo := newFakeAppointmentRepo()
	primaryID := uuid.New()
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{
		primaryID: newService(primaryID, "Haircut", 60, 50),
	}}
	svc := newTestService(repo, cat)

	clientID := uuid.New()
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	apt, err := svc.CreateAppointment(context.Background(), uuid.New(), model.RoleManager, &model.CreateAppointmentRequest{
		ClientID:  clientID.String(),
		ServiceID: primaryID,
		Date:      start,
		StartTime: start,
	})

	require.NoError(t, err)
	assert.Equal(t, clientID, apt.ClientID)
	assert.Equal(t, model.CreatedByManager, apt.CreatedBy)
}

func TestCreateAppointmentWalkIn(t *testing.T) {
	repo := newFakeAppointmentRepo()
	primaryID := uuid.New()
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{
		primaryID: newService(primaryID, "Haircut", 60, 50),
	}}
	svc := newTestService(repo, cat)

	managerID := uuid.New()
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	apt, err := svc.CreateAppointment(context.Background(), managerID, model.RoleManager, &model.CreateAppointmentRequest{
		ServiceID: primaryID,
		Date:      start,
		StartTime: start,
	})

	require.NoError(t, err)
	assert.Equal(t, managerID, apt.ClientID)
	assert.Equal(t, model.CreatedByWalkIn, apt.CreatedBy)
}

func seedAppointment(repo *fakeAppointmentRepo, clientID uuid.UUID, status model.AppointmentStatus) *model.Appointment {
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	apt := &model.Appointment{
		ClientID:         clientID,
		EmployeeID:       uuid.New(),
		ServiceID:        uuid.New(),
		Date:             start,
		StartTime:        start,
		EndTime:          start.Add(time.Hour),
		Duration:         60,
		Status:           status,
		TotalPrice:       50,
		DepositPaid:      20,
		RemainingBalance: 30,
		PaymentStatus:    model.PaymentStatusDepositPaid,
		Cancellation:     model.CancellationTerms{Deadline: start.Add(-24 * time.Hour)},
		QRCode:           "qr-token",
		PINCode:          "123456",
		CreatedBy:        model.CreatedByClient,
	}
	apt.ID = uuid.New()
	repo.put(apt)
	return apt
}

func TestCancelBeforeDeadlineRefundsDeposit(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusConfirmed)

	svc.now = func() time.Time { return apt.Cancellation.Deadline.Add(-time.Hour) }

	cancelled, refund, err := svc.CancelAppointment(context.Background(), apt.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, refund)
	assert.Equal(t, 0.0, cancelled.Cancellation.Fee)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	assert.Equal(t, model.PaymentStatusRefunded, cancelled.PaymentStatus)
}

func TestCancelAtDeadlineStillFree(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusConfirmed)

	svc.now = func() time.Time { return apt.Cancellation.Deadline }

	_, refund, err := svc.CancelAppointment(context.Background(), apt.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, refund)
}

func TestCancelAfterDeadlineKeepsLateFee(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusConfirmed)

	svc.now = func() time.Time { return apt.Cancellation.Deadline.Add(time.Hour) }

	cancelled, refund, err := svc.CancelAppointment(context.Background(), apt.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, refund)
	assert.Equal(t, 10.0, cancelled.Cancellation.Fee)
}

func TestCancelWithoutDepositMarksPaymentCancelled(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusPending)
	apt.DepositPaid = 0
	apt.PaymentStatus = model.PaymentStatusAwaitingDeposit
	repo.put(apt)

	svc.now = func() time.Time { return apt.Cancellation.Deadline.Add(-time.Hour) }

	cancelled, refund, err := svc.CancelAppointment(context.Background(), apt.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, refund)
	assert.Equal(t, model.PaymentStatusCancelled, cancelled.PaymentStatus)
}

func TestCancelByStrangerRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	_, _, err := svc.CancelAppointment(context.Background(), apt.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	stored, _ := repo.Get(context.Background(), apt.ID)
	assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)
}

func TestCancelCompletedRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusCompleted)

	_, _, err := svc.CancelAppointment(context.Background(), apt.ID, clientID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestCheckInWithQRCode(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	checked, err := svc.CheckIn(context.Background(), apt.ID, "qr-token", "")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, checked.Status)
	assert.NotNil(t, checked.CheckInTime)
}

func TestCheckInWithPINOnly(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	checked, err := svc.CheckIn(context.Background(), apt.ID, "", "123456")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, checked.Status)
}

func TestCheckInWrongPINRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	_, err := svc.CheckIn(context.Background(), apt.ID, "", "000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PIN code")

	stored, _ := repo.Get(context.Background(), apt.ID)
	assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)
}

func TestCheckInWithoutCredentialsRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	_, err := svc.CheckIn(context.Background(), apt.ID, "", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestCheckInBothCredentialsBothChecked(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	_, err := svc.CheckIn(context.Background(), apt.ID, "wrong-token", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid QR code")
}

func TestCheckInPendingRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusPending)

	_, err := svc.CheckIn(context.Background(), apt.ID, "qr-token", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestServiceLifecycleTransitions(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusCheckedIn)

	started, err := svc.StartService(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, started.Status)

	completed, err := svc.CompleteService(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedTime)

	// Terminal: no further moves.
	_, err = svc.MarkNoShow(context.Background(), apt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestMarkNoShowFromConfirmed(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	marked, err := svc.MarkNoShow(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, marked.Status)
}

func TestUpdateCompletedAppointmentRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusCompleted)

	note := "please hurry"
	_, err := svc.UpdateAppointment(context.Background(), apt.ID, clientID, &model.UpdateAppointmentRequest{
		SpecialRequests: &note,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot update completed appointment")
}

func TestUpdateByStrangerRejected(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)

	newStart := apt.StartTime.Add(time.Hour)
	_, err := svc.UpdateAppointment(context.Background(), apt.ID, uuid.New(), &model.UpdateAppointmentRequest{
		StartTime: &newStart,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	stored, _ := repo.Get(context.Background(), apt.ID)
	assert.Equal(t, apt.StartTime, stored.StartTime)
}

func TestUpdateRecomputesEndTime(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusConfirmed)

	newStart := apt.StartTime.Add(2 * time.Hour)
	updated, err := svc.UpdateAppointment(context.Background(), apt.ID, clientID, &model.UpdateAppointmentRequest{
		StartTime: &newStart,
	})
	require.NoError(t, err)
	assert.Equal(t, newStart, updated.StartTime)
	assert.Equal(t, newStart.Add(time.Duration(apt.Duration)*time.Minute), updated.EndTime)
}

func TestMutateRetriesOnceOnConcurrentChange(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)
	repo.statusChanges = 1

	marked, err := svc.MarkNoShow(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, marked.Status)
}

func TestMutateGivesUpAfterRetry(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	apt := seedAppointment(repo, uuid.New(), model.AppointmentStatusConfirmed)
	repo.statusChanges = 2

	_, err := svc.MarkNoShow(context.Background(), apt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestListAppointmentsByRole(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})
	clientID := uuid.New()
	apt := seedAppointment(repo, clientID, model.AppointmentStatusConfirmed)

	asClient, err := svc.ListAppointments(context.Background(), clientID, model.RoleClient)
	require.NoError(t, err)
	assert.Len(t, asClient, 1)

	asEmployee, err := svc.ListAppointments(context.Background(), apt.EmployeeID, model.RoleEmployee)
	require.NoError(t, err)
	assert.Len(t, asEmployee, 1)

	other, err := svc.ListAppointments(context.Background(), uuid.New(), model.RoleClient)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetAppointmentNotFound(t *testing.T) {
	repo := newFakeAppointmentRepo()
	svc := newTestService(repo, &fakeCatalog{})

	_, err := svc.GetAppointment(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}
