package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints. Backends that
// are not configured report "disabled".
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "disabled"
		sqliteStatus := "disabled"
		redisStatus := "disabled"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			dbStatus = statusOf(d.DB.Ping(ctx))
		}
		if d.SQLite != nil {
			sqliteStatus = statusOf(d.SQLite.PingContext(ctx))
		}
		if d.Cache != nil {
			redisStatus = statusOf(d.Cache.Ping(ctx).Err())
		}
		status := http.StatusOK
		for _, s := range []string{dbStatus, sqliteStatus, redisStatus} {
			if s != "ok" && s != "disabled" {
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "sqlite": sqliteStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func statusOf(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
