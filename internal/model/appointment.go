package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "pending"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusCheckedIn  AppointmentStatus = "checked_in"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
)

// IsTerminal reports whether the status permits no further transitions.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// BlocksSlot reports whether appointments in this status occupy calendar
// time. Cancelled, completed and no-show appointments do not.
func (s AppointmentStatus) BlocksSlot() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusCheckedIn:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusAwaitingDeposit PaymentStatus = "awaiting_deposit"
	PaymentStatusDepositPaid     PaymentStatus = "deposit_paid"
	PaymentStatusPaidFull        PaymentStatus = "paid_full"
	PaymentStatusRefunded        PaymentStatus = "refunded"
	PaymentStatusCancelled       PaymentStatus = "cancelled"
)

type CreatedBy string

const (
	CreatedByClient  CreatedBy = "client"
	CreatedByManager CreatedBy = "manager"
	CreatedByWalkIn  CreatedBy = "walk_in"
)

// AddOnSnapshot is a copy of an additional service's billable fields taken at
// booking time. Later catalog edits do not change historical bookings.
type AddOnSnapshot struct {
	ServiceID uuid.UUID `json:"service_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Duration  int       `json:"duration"`
}

// AddOnSnapshots is stored as a JSON column.
type AddOnSnapshots []AddOnSnapshot

func (a AddOnSnapshots) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

func (a *AddOnSnapshots) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return fmt.Errorf("unsupported type for AddOnSnapshots: %T", src)
}

// CancellationTerms are snapshotted from configuration at booking time. Fee
// stays zero until a late cancellation actually computes one.
type CancellationTerms struct {
	Deadline time.Time `json:"deadline" db:"cancellation_deadline"`
	Fee      float64   `json:"fee" db:"cancellation_fee"`
}

// ReminderFlags are write-once booleans owned by the notification pipeline.
type ReminderFlags struct {
	Email24h bool `json:"email_24h" db:"reminder_email_24h"`
	SMS24h   bool `json:"sms_24h" db:"reminder_sms_24h"`
	Email2h  bool `json:"email_2h" db:"reminder_email_2h"`
	SMS2h    bool `json:"sms_2h" db:"reminder_sms_2h"`
}

type Appointment struct {
	Base
	ClientID         uuid.UUID         `db:"client_id" json:"client_id"`
	EmployeeID       uuid.UUID         `db:"employee_id" json:"employee_id"`
	ServiceID        uuid.UUID         `db:"service_id" json:"service_id"`
	AddOns           AddOnSnapshots    `db:"add_ons" json:"additional_services"`
	Date             time.Time         `db:"date" json:"date"`
	StartTime        time.Time         `db:"start_time" json:"start_time"`
	EndTime          time.Time         `db:"end_time" json:"end_time"`
	Duration         int               `db:"duration" json:"duration"` // minutes
	Status           AppointmentStatus `db:"status" json:"status"`
	TotalPrice       float64           `db:"total_price" json:"total_price"`
	DepositPaid      float64           `db:"deposit_paid" json:"deposit_paid"`
	RemainingBalance float64           `db:"remaining_balance" json:"remaining_balance"`
	PaymentStatus    PaymentStatus     `db:"payment_status" json:"payment_status"`
	PaymentIntentID  *string           `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	// GatewayEventID is the idempotency key of the last applied payment
	// event. Replays of the same event are skipped.
	GatewayEventID  *string           `db:"gateway_event_id" json:"-"`
	SpecialRequests string            `db:"special_requests" json:"special_requests,omitempty"`
	Cancellation    CancellationTerms `db:"-" json:"cancellation_policy"`
	QRCode          string            `db:"qr_code" json:"qr_code"`
	PINCode         string            `db:"pin_code" json:"pin_code"`
	CheckInTime     *time.Time        `db:"check_in_time" json:"check_in_time,omitempty"`
	CompletedTime   *time.Time        `db:"completed_time" json:"completed_time,omitempty"`
	CreatedBy       CreatedBy         `db:"created_by" json:"created_by"`
	Reminders       ReminderFlags     `db:"-" json:"reminders_sent"`
}

type AddOnRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
}

type CreateAppointmentRequest struct {
	ClientID        string         `json:"client_id"` // manager/walk-in bookings only
	ServiceID       uuid.UUID      `json:"service_id" binding:"required"`
	EmployeeID      *uuid.UUID     `json:"employee_id"`
	AddOns          []AddOnRequest `json:"additional_services"`
	Date            time.Time      `json:"date" binding:"required"`
	StartTime       time.Time      `json:"start_time" binding:"required"`
	SpecialRequests string         `json:"special_requests" validate:"max=1000"`
}

type UpdateAppointmentRequest struct {
	Date            *time.Time     `json:"date"`
	StartTime       *time.Time     `json:"start_time"`
	EmployeeID      *uuid.UUID     `json:"employee_id"`
	AddOns          []AddOnRequest `json:"additional_services"`
	SpecialRequests *string        `json:"special_requests"`
}

type CheckInRequest struct {
	QRCode  string `json:"qr_code"`
	PINCode string `json:"pin_code"`
}

// Slot is one candidate start time on the business-hours grid.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type AppointmentFilters struct {
	ClientID   uuid.UUID
	EmployeeID uuid.UUID
	Status     AppointmentStatus
	StartDate  time.Time
	EndDate    time.Time
}
