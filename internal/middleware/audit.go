package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/session"
)

// Audit emits a structured log line per request, tagged with the client ID when
// a session store is bound.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFromCtx(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if store, ok := session.FromCtx(c); ok {
			attrs = append(attrs, slog.String("client", store.ClientID()))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
