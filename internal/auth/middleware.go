package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"cabinet-admin/internal/engine"
	"cabinet-admin/internal/metadata"
)

// PermissionResolver recomputes effective permissions from role ids.
type PermissionResolver interface {
	Resolve(ctx context.Context, ids []int64) (engine.Effective, error)
}

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request. When resolver is non-nil the
// permissions baked into the token are replaced by the current grants of
// its role ids, so role edits apply before the token expires.
func AuthMiddleware(secret string, resolver PermissionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user := claims.UserContext()
		user.IP = c.IP()
		if resolver != nil {
			eff, err := resolver.Resolve(c.UserContext(), user.RoleIDs)
			if err != nil {
				log.WithField("user", user.ID).Errorf("resolve permissions: %v", err)
				return err
			}
			user.Permissions = eff.Permissions
			user.Level = eff.Level
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// RequirePermission is a Fiber middleware that checks the authenticated
// user holds section:action, directly or through a wildcard.
func RequirePermission(section, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := engine.CheckPermission(GetUser(c), section, action); err != nil {
			return err
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
