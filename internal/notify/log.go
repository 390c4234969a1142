package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the logger instead of delivering them. Used when SMTP or SMS is not configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a LogSender; a nil logger discards.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

// SendEmail logs the email.
func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.log.Info("notify: email not sent (SMTP not configured)", zap.String("to", to), zap.String("subject", subject))
	s.log.Debug("notify: email body", zap.String("to", to), zap.String("body", body))
	return nil
}

// SendOTP logs the destination only; codes are never written to logs.
func (s *LogSender) SendOTP(_ context.Context, phone, _ string) error {
	s.log.Info("notify: sms not sent (SMS provider not configured)", zap.String("phone", phone))
	return nil
}
