package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP returns the caller's address, honoring proxy headers in order:
// X-Forwarded-For (first hop), then X-Real-IP, then the socket address.
func ClientIP(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return real
	}
	return c.IP()
}

// APIKeyAuth guards an endpoint with a shared bearer credential and an
// optional IP allow-list.
//
// Behavior:
// - Requires "Authorization: Bearer {apiKey}"; the comparison is constant-time.
// - When allowedIPs is non-empty, the client address (per ClientIP) must be
//   listed; otherwise the IP check is skipped entirely.
// - Failures return fiber errors so the global ErrorHandler shapes the body.
func APIKeyAuth(apiKey string, allowedIPs []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		allowed[ip] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}

		if len(allowed) > 0 {
			if _, ok := allowed[ClientIP(c)]; !ok {
				return fiber.NewError(fiber.StatusForbidden, "access denied for your ip address")
			}
		}

		return c.Next()
	}
}
