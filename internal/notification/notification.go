package notification

import (
	"context"
	"log/slog"
)

const (
	// KindLoginOTP carries a login verification code.
	KindLoginOTP = "login_otp"
	// KindRegistrationOTP carries a registration verification code.
	KindRegistrationOTP = "registration_otp"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems (SMS gateway, mailer).
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering them.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", maskDestination(message.Destination), "body", message.Body)
	return nil
}

// maskDestination keeps only the last four characters of a phone number or address.
func maskDestination(dest string) string {
	if len(dest) <= 4 {
		return dest
	}
	masked := make([]byte, len(dest))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(dest)-4:], dest[len(dest)-4:])
	return string(masked)
}
