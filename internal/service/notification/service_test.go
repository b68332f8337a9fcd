package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/messaging"
)

type enqueued struct {
	id    uuid.UUID
	flag  string
	event *model.OutboxEvent
}

type fakeAppointmentRepo struct {
	due      map[string][]*model.Appointment
	enqueued []enqueued
}

func (f *fakeAppointmentRepo) CreateIfSlotFree(ctx context.Context, apt *model.Appointment) error {
	return nil
}

func (f *fakeAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeAppointmentRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointmentRepo) ListBlockingForDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointmentRepo) UpdateIfStatus(ctx context.Context, apt *model.Appointment, expected model.AppointmentStatus) error {
	return nil
}

func (f *fakeAppointmentRepo) ApplyPaymentEvent(ctx context.Context, id uuid.UUID, eventID string, amount float64) (bool, error) {
	return false, nil
}

func (f *fakeAppointmentRepo) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	return nil
}

func (f *fakeAppointmentRepo) ListDueReminders(ctx context.Context, flag string, from, to time.Time) ([]*model.Appointment, error) {
	return f.due[flag], nil
}

func (f *fakeAppointmentRepo) MarkReminderAndEnqueue(ctx context.Context, id uuid.UUID, flag string, event *model.OutboxEvent) error {
	f.enqueued = append(f.enqueued, enqueued{id: id, flag: flag, event: event})
	return nil
}

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func (f *fakeUserRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) FindActiveEmployees(ctx context.Context) ([]*model.User, error) {
	return nil, nil
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

func TestScanOnceEnqueuesDueReminders(t *testing.T) {
	clientID := uuid.New()
	serviceID := uuid.New()
	start := time.Now().Add(23 * time.Hour)

	apt := &model.Appointment{
		ClientID:  clientID,
		ServiceID: serviceID,
		StartTime: start,
	}
	apt.ID = uuid.New()

	repo := &fakeAppointmentRepo{due: map[string][]*model.Appointment{
		"reminder_email_24h": {apt},
	}}
	users := &fakeUserRepo{users: map[uuid.UUID]*model.User{
		clientID: {Email: "client@example.com", Phone: "+15550001111"},
	}}
	service := &model.Service{Name: "Haircut"}
	service.ID = serviceID
	cat := &fakeCatalog{services: map[uuid.UUID]*model.Service{serviceID: service}}

	svc := NewService(repo, users, cat, logger.NewLogger(nil), nil)

	require.NoError(t, svc.ScanOnce(context.Background()))
	require.Len(t, repo.enqueued, 1)

	entry := repo.enqueued[0]
	assert.Equal(t, apt.ID, entry.id)
	assert.Equal(t, "reminder_email_24h", entry.flag)
	assert.Equal(t, messaging.ChannelReminderEmail, entry.event.EventType)

	var msg messaging.ReminderMessage
	require.NoError(t, json.Unmarshal(entry.event.Payload, &msg))
	assert.Equal(t, apt.ID.String(), msg.AppointmentID)
	assert.Equal(t, "client@example.com", msg.ClientEmail)
	assert.Equal(t, "Haircut", msg.ServiceName)
	assert.Equal(t, "24h", msg.Window)
}

func TestScanOnceNothingDue(t *testing.T) {
	repo := &fakeAppointmentRepo{due: map[string][]*model.Appointment{}}
	svc := NewService(repo, &fakeUserRepo{}, &fakeCatalog{}, logger.NewLogger(nil), nil)

	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Empty(t, repo.enqueued)
}

func TestScanOnceSkipsUnresolvableClient(t *testing.T) {
	apt := &model.Appointment{ClientID: uuid.New(), ServiceID: uuid.New(), StartTime: time.Now()}
	apt.ID = uuid.New()

	repo := &fakeAppointmentRepo{due: map[string][]*model.Appointment{
		"reminder_sms_2h": {apt},
	}}
	svc := NewService(repo, &fakeUserRepo{users: map[uuid.UUID]*model.User{}}, &fakeCatalog{}, logger.NewLogger(nil), nil)

	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Empty(t, repo.enqueued, "a reminder without a client is not enqueued")
}
