package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/citizen_portal/internal/auth"
	"github.com/congo-pay/citizen_portal/internal/identity"
)

// LocalsUserID and LocalsRole are set by JWTAuth.
const (
	LocalsUserID = "user_id"
	LocalsRole   = "role"
)

// AccountLookup resolves token subjects to stored accounts.
type AccountLookup interface {
	Get(ctx context.Context, id string) (identity.Account, error)
}

// JWTAuth validates bearer session tokens. When accounts is non-nil the subject
// must still exist; placeholder sessions (mock OTP mode) pass with accounts nil.
func JWTAuth(tokens *auth.Tokens, accounts AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := tokens.Parse(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if accounts != nil {
			account, err := accounts.Get(c.UserContext(), claims.Subject)
			if errors.Is(err, identity.ErrNotFound) || (err == nil && account.Status != identity.StatusActive) {
				return fiber.NewError(http.StatusUnauthorized, "token subject unknown")
			}
			if err != nil {
				return fiber.NewError(http.StatusServiceUnavailable, "account lookup failed")
			}
		}

		c.Locals(LocalsUserID, claims.Subject)
		c.Locals(LocalsRole, string(claims.Role))
		return c.Next()
	}
}
