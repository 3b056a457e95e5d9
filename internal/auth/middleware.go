package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"configtree/internal/engine"
)

const claimsKey = "claims"

// AuthMiddleware returns a Fiber middleware that requires a valid bearer
// token signed with secret and stores its claims on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return engine.RespondError(c, engine.UnauthorizedError("Missing auth token"))
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.RespondError(c, engine.UnauthorizedError("Invalid auth header format"))
		}

		claims, err := ParseAccessToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			return engine.RespondError(c, engine.UnauthorizedError("Invalid or expired token"))
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// GetClaims returns the claims stored by AuthMiddleware, or nil.
func GetClaims(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}
