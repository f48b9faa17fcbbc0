package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. Used in
// development and tests.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender builds a logging sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send implements Sender.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	recipients := make([]string, len(msg.To))
	for i, to := range msg.To {
		recipients[i] = to.Email
	}
	s.logger.Sugar().Infow("outbound mail",
		"to", recipients,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
