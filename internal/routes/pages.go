package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/web"
)

// RegisterPageRoutes wires the HTML pages. Every page passes the route guard
// first; login submissions are additionally rate limited.
func RegisterPageRoutes(r fiber.Router, h *web.Handler, gate fiber.Handler, rateLimiter fiber.Handler) {
	r.Get("/", gate, h.Home)

	r.Get("/login", gate, h.LoginPage)
	r.Post("/login", gate, rateLimiter, h.Login)
	r.Get("/login-verify", gate, h.LoginVerifyPage)
	r.Post("/login-verify", gate, rateLimiter, h.LoginVerify)
	r.Post("/login-verify/resend", gate, rateLimiter, h.ResendLogin)

	r.Get("/register", gate, h.RegisterPage)
	r.Post("/register", gate, h.Register)
	r.Get("/verify-otp", gate, h.VerifyOTPPage)
	r.Post("/verify-otp", gate, rateLimiter, h.VerifyOTP)
	r.Post("/verify-otp/resend", gate, rateLimiter, h.ResendRegistration)

	r.Get("/dashboard", gate, h.Dashboard)
	r.Post("/logout", gate, h.Logout)
}
