package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels used for reminder fan-out. The email channel is consumed by the
// in-process sender; the SMS channel is consumed by an external dispatcher.
const (
	ChannelReminderEmail = "reminders.email"
	ChannelReminderSMS   = "reminders.sms"
)

// ReminderMessage is the payload published for a due appointment reminder.
type ReminderMessage struct {
	AppointmentID string `json:"appointment_id"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	ServiceName   string `json:"service_name"`
	StartTime     string `json:"start_time"`
	Window        string `json:"window"`
}
