package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/identity"
	"github.com/congo-pay/citizen_portal/internal/middleware"
	"github.com/congo-pay/citizen_portal/internal/session"
)

// RegisterSessionRoutes exposes the requesting client's session as JSON.
func RegisterSessionRoutes(r fiber.Router) {
	r.Get("/session", func(c *fiber.Ctx) error {
		store, ok := session.FromCtx(c)
		if !ok {
			return fiber.NewError(http.StatusInternalServerError, "session store not bound")
		}
		sess, ok, err := store.Read(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, "session storage unavailable")
		}
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "no session")
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"auth_token": sess.Token,
			"user_data":  sess.User,
		})
	})
}

// RegisterProfileRoute exposes the bearer's profile. Must be mounted behind JWTAuth.
func RegisterProfileRoute(r fiber.Router, accounts *identity.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals(middleware.LocalsUserID).(string)
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		account, err := accounts.Get(c.UserContext(), uid)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			role, _ := c.Locals(middleware.LocalsRole).(string)
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"user": fiber.Map{"id": uid, "role": role},
			})
		case err != nil:
			return fiber.NewError(http.StatusServiceUnavailable, "account lookup failed")
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user":       account.User,
			"login_id":   account.LoginID,
			"status":     account.Status,
			"created_at": account.CreatedAt,
		})
	})
}
