// middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"battleboats/services"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

const SessionCookie = "session"

// SessionMiddleware resolves the session token from "Authorization: Bearer" or
// the session cookie and attaches the user to the request.
func SessionMiddleware(auth *services.AuthService, logger *log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Cookies(SessionCookie)
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing session token",
			})
		}

		user, err := auth.CurrentUser(c.UserContext(), token)
		if errors.Is(err, services.ErrUnauthenticated) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired session",
			})
		}
		if err != nil {
			logger.Error("middleware [SessionMiddleware]", "err", err, "path", c.Path())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve session",
			})
		}

		// Attach to ctx for handlers
		c.Locals("user_id", user.ID)
		c.Locals("username", user.Username)
		c.Locals("session_token", token)

		return c.Next()
	}
}

func bearerToken(header string) string {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}
