package handlers

import (
	"time"

	"battleboats/middleware"
	"battleboats/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService, session fiber.Handler) {
	// 🔓 Public routes, throttled per client IP
	throttle := limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": services.ErrRateLimited.Error(),
			})
		},
	})

	app.Post("/auth/register", throttle, func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		u, err := authService.Register(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user_id":  u.ID,
			"username": u.Username,
		})
	})

	app.Post("/auth/login", throttle, func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		sess, u, err := authService.Login(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return err
		}

		c.Cookie(&fiber.Cookie{
			Name:     middleware.SessionCookie,
			Value:    sess.Token,
			Expires:  sess.ExpiresAt,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.JSON(fiber.Map{
			"token":      sess.Token,
			"expires_at": sess.ExpiresAt,
			"user":       u,
		})
	})

	// 🔐 Session routes
	app.Post("/auth/logout", session, func(c *fiber.Ctx) error {
		token, _ := c.Locals("session_token").(string)
		if err := authService.Logout(c.UserContext(), token); err != nil {
			return err
		}
		c.ClearCookie(middleware.SessionCookie)
		return c.JSON(fiber.Map{"message": "logged out"})
	})

	app.Get("/auth/me", session, func(c *fiber.Ctx) error {
		token, _ := c.Locals("session_token").(string)
		u, err := authService.CurrentUser(c.UserContext(), token)
		if err != nil {
			return err
		}
		return c.JSON(u)
	})
}
