// middleware/gateway.go
package middleware

import (
	"crypto/subtle"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

// AdminTokenMiddleware guards operator routes with the X-Admin-Token header.
// An empty expected token disables the routes entirely.
func AdminTokenMiddleware(expectedToken string, logger *log.Logger) fiber.Handler {
	if expectedToken == "" {
		logger.Warn("⚠️  ADMIN_TOKEN is not set, admin routes are disabled")
	}

	return func(c *fiber.Ctx) error {
		if expectedToken == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "not found",
			})
		}

		token := c.Get("X-Admin-Token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin token missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logger.Warn("middleware [AdminTokenMiddleware] invalid token", "path", c.Path(), "ip", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin token",
			})
		}
		return c.Next()
	}
}
