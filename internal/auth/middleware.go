package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"strata-backend/internal/apperr"
	"strata-backend/internal/metadata"
)

// Middleware validates the bearer token and sets the UserContext on the
// request. The tenant comes from the token, never from the client.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperr.Unauthorized("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return apperr.Unauthorized("Invalid or expired token")
		}

		c.Locals("user", &metadata.UserContext{
			ID:     claims.Subject,
			Login:  claims.Email,
			Email:  claims.Email,
			Name:   claims.Name,
			Cargo:  claims.Cargo,
			Tenant: claims.Tenant,
			Roles:  claims.Roles,
		})

		return c.Next()
	}
}

// RequireAdmin checks the authenticated user carries the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return apperr.Unauthorized("Missing auth token")
		}
		if !user.IsAdmin() {
			return apperr.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// GetTenant returns the tenant the request is scoped to.
func GetTenant(c *fiber.Ctx) string {
	if user := GetUser(c); user != nil {
		return user.Tenant
	}
	return ""
}
