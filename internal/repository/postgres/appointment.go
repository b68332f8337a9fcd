package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
)

// reminderColumns whitelists the flag names callers may address. Reminder
// flags are write-once, the conditional update below enforces that.
var reminderColumns = map[string]bool{
	"reminder_email_24h": true,
	"reminder_sms_24h":   true,
	"reminder_email_2h":  true,
	"reminder_sms_2h":    true,
}

// appointmentRow flattens the nested model structs onto table columns.
type appointmentRow struct {
	ID                   uuid.UUID               `db:"id"`
	ClientID             uuid.UUID               `db:"client_id"`
	EmployeeID           uuid.UUID               `db:"employee_id"`
	ServiceID            uuid.UUID               `db:"service_id"`
	AddOns               model.AddOnSnapshots    `db:"add_ons"`
	Date                 time.Time               `db:"date"`
	StartTime            time.Time               `db:"start_time"`
	EndTime              time.Time               `db:"end_time"`
	Duration             int                     `db:"duration"`
	Status               model.AppointmentStatus `db:"status"`
	TotalPrice           float64                 `db:"total_price"`
	DepositPaid          float64                 `db:"deposit_paid"`
	RemainingBalance     float64                 `db:"remaining_balance"`
	PaymentStatus        model.PaymentStatus     `db:"payment_status"`
	PaymentIntentID      *string                 `db:"payment_intent_id"`
	GatewayEventID       *string                 `db:"gateway_event_id"`
	SpecialRequests      string                  `db:"special_requests"`
	CancellationDeadline time.Time               `db:"cancellation_deadline"`
	CancellationFee      float64                 `db:"cancellation_fee"`
	QRCode               string                  `db:"qr_code"`
	PINCode              string                  `db:"pin_code"`
	CheckInTime          *time.Time              `db:"check_in_time"`
	CompletedTime        *time.Time              `db:"completed_time"`
	CreatedBy            model.CreatedBy         `db:"created_by"`
	ReminderEmail24h     bool                    `db:"reminder_email_24h"`
	ReminderSMS24h       bool                    `db:"reminder_sms_24h"`
	ReminderEmail2h      bool                    `db:"reminder_email_2h"`
	ReminderSMS2h        bool                    `db:"reminder_sms_2h"`
	CreatedAt            time.Time               `db:"created_at"`
	UpdatedAt            time.Time               `db:"updated_at"`
}

const appointmentColumns = `
	id, client_id, employee_id, service_id, add_ons,
	date, start_time, end_time, duration, status,
	total_price, deposit_paid, remaining_balance, payment_status,
	payment_intent_id, gateway_event_id, special_requests,
	cancellation_deadline, cancellation_fee, qr_code, pin_code,
	check_in_time, completed_time, created_by,
	reminder_email_24h, reminder_sms_24h, reminder_email_2h, reminder_sms_2h,
	created_at, updated_at`

func (r appointmentRow) toModel() *model.Appointment {
	return &model.Appointment{
		Base: model.Base{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ClientID:         r.ClientID,
		EmployeeID:       r.EmployeeID,
		ServiceID:        r.ServiceID,
		AddOns:           r.AddOns,
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Duration:         r.Duration,
		Status:           r.Status,
		TotalPrice:       r.TotalPrice,
		DepositPaid:      r.DepositPaid,
		RemainingBalance: r.RemainingBalance,
		PaymentStatus:    r.PaymentStatus,
		PaymentIntentID:  r.PaymentIntentID,
		GatewayEventID:   r.GatewayEventID,
		SpecialRequests:  r.SpecialRequests,
		Cancellation: model.CancellationTerms{
			Deadline: r.CancellationDeadline,
			Fee:      r.CancellationFee,
		},
		QRCode:        r.QRCode,
		PINCode:       r.PINCode,
		CheckInTime:   r.CheckInTime,
		CompletedTime: r.CompletedTime,
		CreatedBy:     r.CreatedBy,
		Reminders: model.ReminderFlags{
			Email24h: r.ReminderEmail24h,
			SMS24h:   r.ReminderSMS24h,
			Email2h:  r.ReminderEmail2h,
			SMS2h:    r.ReminderSMS2h,
		},
	}
}

func (r *appointmentRepository) CreateIfSlotFree(ctx context.Context, appointment *model.Appointment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize racing bookings per employee and day. The advisory lock is
	// released at commit or rollback.
	lockKey := fmt.Sprintf("%s:%s", appointment.EmployeeID, appointment.Date.Format("2006-01-02"))
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("failed to acquire booking lock: %w", err)
	}

	var hasConflict bool
	err = tx.GetContext(ctx, &hasConflict, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE employee_id = $1
			AND status IN ('pending', 'confirmed', 'checked_in')
			AND start_time < $3
			AND end_time > $2
		)`,
		appointment.EmployeeID, appointment.StartTime, appointment.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to check conflicts: %w", err)
	}
	if hasConflict {
		return repository.ErrSlotConflict
	}

	appointment.ID = uuid.New()
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24,
			$25, $26, $27, $28,
			$29, $30
		)`,
		appointment.ID,
		appointment.ClientID,
		appointment.EmployeeID,
		appointment.ServiceID,
		appointment.AddOns,
		appointment.Date,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Duration,
		appointment.Status,
		appointment.TotalPrice,
		appointment.DepositPaid,
		appointment.RemainingBalance,
		appointment.PaymentStatus,
		appointment.PaymentIntentID,
		appointment.GatewayEventID,
		appointment.SpecialRequests,
		appointment.Cancellation.Deadline,
		appointment.Cancellation.Fee,
		appointment.QRCode,
		appointment.PINCode,
		appointment.CheckInTime,
		appointment.CompletedTime,
		appointment.CreatedBy,
		appointment.Reminders.Email24h,
		appointment.Reminders.SMS24h,
		appointment.Reminders.Email2h,
		appointment.Reminders.SMS2h,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var row appointmentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return row.toModel(), nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.ClientID != uuid.Nil {
		query += fmt.Sprintf(" AND client_id = $%d", argCount)
		args = append(args, filters.ClientID)
		argCount++
	}
	if filters.EmployeeID != uuid.Nil {
		query += fmt.Sprintf(" AND employee_id = $%d", argCount)
		args = append(args, filters.EmployeeID)
		argCount++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}
	if !filters.StartDate.IsZero() {
		query += fmt.Sprintf(" AND start_time >= $%d", argCount)
		args = append(args, filters.StartDate)
		argCount++
	}
	if !filters.EndDate.IsZero() {
		query += fmt.Sprintf(" AND start_time < $%d", argCount)
		args = append(args, filters.EndDate)
		argCount++
	}

	query += " ORDER BY start_time ASC"

	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		appointments = append(appointments, row.toModel())
	}
	return appointments, nil
}

func (r *appointmentRepository) ListBlockingForDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*model.Appointment, error) {
	var rows []appointmentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed', 'checked_in')
		AND start_time >= $1
		AND start_time < $2
		ORDER BY start_time ASC`,
		dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list day appointments: %w", err)
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		appointments = append(appointments, row.toModel())
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdateIfStatus(ctx context.Context, appointment *model.Appointment, expected model.AppointmentStatus) error {
	appointment.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET employee_id = $1, add_ons = $2, date = $3, start_time = $4,
			end_time = $5, duration = $6, status = $7, total_price = $8,
			deposit_paid = $9, remaining_balance = $10, payment_status = $11,
			special_requests = $12, cancellation_fee = $13,
			check_in_time = $14, completed_time = $15, updated_at = $16
		WHERE id = $17 AND status = $18`,
		appointment.EmployeeID,
		appointment.AddOns,
		appointment.Date,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Duration,
		appointment.Status,
		appointment.TotalPrice,
		appointment.DepositPaid,
		appointment.RemainingBalance,
		appointment.PaymentStatus,
		appointment.SpecialRequests,
		appointment.Cancellation.Fee,
		appointment.CheckInTime,
		appointment.CompletedTime,
		appointment.UpdatedAt,
		appointment.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, appointment.ID); err != nil {
			return fmt.Errorf("failed to check appointment: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrStatusChanged
	}
	return nil
}

func (r *appointmentRepository) ApplyPaymentEvent(ctx context.Context, id uuid.UUID, eventID string, amount float64) (bool, error) {
	// The event id is the idempotency key: a replay matches the stored id
	// and affects zero rows. The deposit is written absolutely, so a newer
	// event overwrites rather than accumulates.
	result, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET deposit_paid = $1,
			remaining_balance = total_price - $1,
			payment_status = 'deposit_paid',
			status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
			gateway_event_id = $2,
			updated_at = $3
		WHERE id = $4
		AND (gateway_event_id IS NULL OR gateway_event_id <> $2)`,
		amount, eventID, time.Now(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply payment event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check appointment: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *appointmentRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET payment_intent_id = $1, updated_at = $2
		WHERE id = $3`,
		intentID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, flag string, from, to time.Time) ([]*model.Appointment, error) {
	if !reminderColumns[flag] {
		return nil, fmt.Errorf("unknown reminder flag: %s", flag)
	}

	var rows []appointmentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		AND start_time >= $1
		AND start_time < $2
		AND `+flag+` = FALSE
		ORDER BY start_time ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		appointments = append(appointments, row.toModel())
	}
	return appointments, nil
}

func (r *appointmentRepository) MarkReminderAndEnqueue(ctx context.Context, id uuid.UUID, flag string, event *model.OutboxEvent) error {
	if !reminderColumns[flag] {
		return fmt.Errorf("unknown reminder flag: %s", flag)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET `+flag+` = TRUE, updated_at = $1
		WHERE id = $2 AND `+flag+` = FALSE`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Already marked by a concurrent scan. Nothing to enqueue.
		return nil
	}

	event.ID = uuid.New()
	event.Status = string(model.OutboxStatusPending)
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)`,
		event.ID, event.EventType, event.Payload, event.Status, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue reminder event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
