// middleware/sse_auth.go
package middleware

import (
	"strings"

	"battleboats/services"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates the `token` query parameter. EventSource cannot
// send headers, so streams authenticate through the URL instead.
//
// Usage:
//
//	app.Get("/matches/:id/stream", middleware.SSEAuthMiddleware(auth, logger), matchService.StreamMatchSSE)
func SSEAuthMiddleware(auth *services.AuthService, logger *log.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = c.Cookies(SessionCookie)
		}
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		user, err := auth.CurrentUser(c.UserContext(), token)
		if err != nil {
			logger.Warn("middleware [SSEAuthMiddleware] rejected", "err", err, "token_len", len(token))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", user.ID)
		c.Locals("username", user.Username)
		return c.Next()
	}
}
