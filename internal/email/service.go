package email

import (
	"context"
)

// Service delivers transactional email to clients.
type Service interface {
	SendReminder(ctx context.Context, to, serviceName, startTime, window string) error
	SendCustom(ctx context.Context, to, subject, content string) error
}
