package handlers

import (
	"battleboats/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, matchmaking *services.MatchmakingService, adminAuth fiber.Handler) {
	admin := app.Group("/admin", adminAuth)

	admin.Get("/queue", func(c *fiber.Ctx) error {
		snap, err := matchmaking.QueueStatus(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(snap)
	})

	admin.Post("/sweep", func(c *fiber.Ctx) error {
		report, err := matchmaking.Sweep(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(report)
	})
}
