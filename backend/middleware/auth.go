package middleware

import (
	"examhub/backend/config"
	"examhub/backend/models"
	"examhub/backend/utils"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "identity"

// AuthMiddleware rejects requests without a valid token and stores the
// caller's identity for handlers.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := utils.ExtractIdentityFromToken(c, cfg)
		if err != nil {
			return utils.Unauthorized(c, "Unauthorized")
		}
		c.Locals(identityKey, identity)

		entry := utils.WithContext(c.UserContext()).WithField("user_id", identity.UserID)
		c.SetUserContext(utils.ContextWithLogger(c.UserContext(), entry))
		return c.Next()
	}
}

// CurrentIdentity returns the identity stored by AuthMiddleware.
func CurrentIdentity(c *fiber.Ctx) (utils.Identity, bool) {
	identity, ok := c.Locals(identityKey).(utils.Identity)
	return identity, ok && identity.UserID != 0
}

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return utils.Unauthorized(c, "Unauthorized")
		}
		for _, role := range roles {
			if identity.Role == role {
				return c.Next()
			}
		}
		return utils.Forbidden(c, "Insufficient permissions")
	}
}

func AdminMiddleware() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

// TeacherMiddleware lets teachers and admins manage tests.
func TeacherMiddleware() fiber.Handler {
	return RequireRole(models.RoleTeacher, models.RoleAdmin)
}
