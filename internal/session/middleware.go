package session

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CookieName holds the opaque client ID.
const CookieName = "portal_client"

const localsKey = "session.store"

// CookieOptions controls the client ID cookie.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// Middleware binds a Store for the requesting client to the fiber context,
// minting a client ID cookie on first contact. With a MaxAge the cookie is
// re-issued on every request so it outlives the storage bucket, whose TTL is
// refreshed on each write.
func Middleware(storage Storage, opts CookieOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := c.Cookies(CookieName)
		_, err := uuid.Parse(client)
		if err != nil {
			client = uuid.NewString()
		}
		if err != nil || opts.MaxAge > 0 {
			c.Cookie(clientCookie(client, opts))
		}
		c.Locals(localsKey, NewStore(storage, client))
		return c.Next()
	}
}

func clientCookie(client string, opts CookieOptions) *fiber.Cookie {
	cookie := &fiber.Cookie{
		Name:     CookieName,
		Value:    client,
		Path:     "/",
		HTTPOnly: true,
		Secure:   opts.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if opts.MaxAge > 0 {
		cookie.MaxAge = int(opts.MaxAge.Seconds())
	}
	return cookie
}

// FromCtx returns the Store bound by Middleware.
func FromCtx(c *fiber.Ctx) (*Store, bool) {
	s, ok := c.Locals(localsKey).(*Store)
	return s, ok
}
