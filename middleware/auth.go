// middleware/user_context.go
package middleware

import (
	"log"
	"strings"

	"troop-badge-system/models"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts user identity and roles set by the Gateway
// and turns the roles into an explicit badge capability object. Handlers read
// capabilities from Locals and pass them down; nothing below the handlers
// looks at headers.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		// Secured paths require a user context forwarded by the Gateway.
		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		caps := models.CapabilitiesFromRoles(roles)

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		c.Locals("capabilities", caps)

		return c.Next()
	}
}

// Caps reads the capability object attached by UserContextMiddleware. A
// missing value means no capability at all.
func Caps(c *fiber.Ctx) models.Capabilities {
	if caps, ok := c.Locals("capabilities").(models.Capabilities); ok {
		return caps
	}
	return models.Capabilities{}
}
