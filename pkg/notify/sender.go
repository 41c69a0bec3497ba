package notify

import (
	"context"

	"github.com/psantana5/smartworking/pkg/logging"
)

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender records deliveries in the log instead of sending them.
// Bodies are not logged since they carry tokens and passwords.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a sender for development setups without SMTP
func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, email Email) error {
	s.logger.Info("Email delivery skipped (log sender)", logging.Fields{
		"to":      email.To,
		"subject": email.Subject,
	})
	return nil
}
