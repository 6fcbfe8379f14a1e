package handlers

import (
	"battleboats/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboard *services.LeaderboardService) {
	// 🔓 Public routes
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		rows, err := leaderboard.Top(c.UserContext(), c.QueryInt("limit", services.DefaultLeaderboardSize))
		if err != nil {
			return err
		}
		return c.JSON(rows)
	})

	app.Get("/stats/:user_id", func(c *fiber.Ctx) error {
		stats, err := leaderboard.Stats(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return err
		}
		return c.JSON(stats)
	})
}
