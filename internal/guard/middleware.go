package guard

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/session"
)

// loadingPage is served when the client's session state cannot be read yet.
// It carries no page content and refreshes itself.
const loadingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="1">
<title>Loading</title>
</head>
<body>
<main class="loading" aria-busy="true"><p>Loading&hellip;</p></main>
</body>
</html>
`

// Middleware enforces policy before a page handler runs. Redirects use 303 so a
// guarded form POST turns into a GET of the target page.
func Middleware(policy Policy, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		store, ok := session.FromCtx(c)
		if !ok {
			logger.Error("guard.no session store bound", slog.String("path", c.Path()))
			return Loading(c)
		}

		authenticated, err := store.IsAuthenticated(c.UserContext())
		if err != nil {
			logger.Warn("guard.session unreadable",
				slog.String("path", c.Path()),
				slog.String("client", store.ClientID()),
				slog.Any("error", err),
			)
			return Loading(c)
		}

		decision := policy.Decide(c.Path(), authenticated)
		if decision.Allowed() {
			return c.Next()
		}
		logger.Debug("guard.redirect",
			slog.String("path", c.Path()),
			slog.String("to", decision.Redirect),
			slog.Bool("authenticated", authenticated),
		)
		return c.Redirect(decision.Redirect, fiber.StatusSeeOther)
	}
}

// Loading writes the neutral loading page.
func Loading(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "1")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("html", "utf-8")
	return c.Status(fiber.StatusServiceUnavailable).SendString(loadingPage)
}
