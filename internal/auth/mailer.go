package auth

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers account lifecycle mail. Delivery transport is out of
// scope here; production deployments plug in their own implementation.
type Mailer interface {
	SendWelcome(ctx context.Context, email, name string) error
}

// LogMailer logs mail instead of sending it. Default for development and tests.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a Mailer that writes to the given logger.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendWelcome logs the welcome mail that would have been sent.
func (m *LogMailer) SendWelcome(_ context.Context, email, name string) error {
	m.logger.Info("welcome mail",
		zap.String("email", email),
		zap.String("name", name),
	)
	return nil
}
