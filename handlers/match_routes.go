package handlers

import (
	"battleboats/board"
	"battleboats/models"
	"battleboats/services"

	"github.com/gofiber/fiber/v2"
)

type fleetRequest struct {
	Ships board.Fleet `json:"ships"`
}

type attackRequest struct {
	Cell *int `json:"cell"`
}

func currentPlayer(c *fiber.Ctx) models.Player {
	userID, _ := c.Locals("user_id").(string)
	username, _ := c.Locals("username").(string)
	return models.Player{UserID: userID, Username: username}
}

func SetupMatchRoutes(app *fiber.App, matchmaking *services.MatchmakingService, matches *services.MatchService, session, sseAuth fiber.Handler) {
	// 🔐 Placement and queue
	app.Post("/fleet", session, func(c *fiber.Ctx) error {
		var req fleetRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		p := currentPlayer(c)
		if err := matchmaking.SubmitFleet(c.UserContext(), p.UserID, req.Ships); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"ships": req.Ships})
	})

	app.Post("/queue", session, func(c *fiber.Ctx) error {
		var req fleetRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid JSON", err)
			}
		}
		res, err := matchmaking.JoinQueue(c.UserContext(), currentPlayer(c), req.Ships)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	app.Delete("/queue", session, func(c *fiber.Ctx) error {
		if err := matchmaking.LeaveQueue(c.UserContext(), currentPlayer(c).UserID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "left"})
	})

	// 🔐 Matches
	app.Get("/matches/current", session, func(c *fiber.Ctx) error {
		p := currentPlayer(c)
		m, err := matchmaking.FindActiveMatch(c.UserContext(), p.UserID)
		if err != nil {
			return err
		}
		return c.JSON(matches.View(m, p.UserID))
	})

	app.Get("/matches/:id", session, func(c *fiber.Ctx) error {
		p := currentPlayer(c)
		m, err := matches.Get(c.UserContext(), c.Params("id"), p.UserID)
		if err != nil {
			return err
		}
		view := matches.View(m, p.UserID)
		return c.JSON(fiber.Map{
			"match":    view,
			"playable": matches.Playable(m),
		})
	})

	app.Post("/matches/:id/attack", session, func(c *fiber.Ctx) error {
		var req attackRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.Cell == nil {
			return badRequest(c, "cell is required", nil)
		}

		p := currentPlayer(c)
		out, err := matches.Attack(c.UserContext(), c.Params("id"), p.UserID, *req.Cell)
		if err != nil {
			return err
		}
		m, err := matches.Get(c.UserContext(), c.Params("id"), p.UserID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"outcome": out,
			"match":   matches.View(m, p.UserID),
		})
	})

	app.Post("/matches/:id/leave", session, func(c *fiber.Ctx) error {
		if err := matches.Abandon(c.UserContext(), c.Params("id"), currentPlayer(c).UserID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "left"})
	})

	// 📡 Live updates
	app.Get("/matches/:id/stream", sseAuth, matches.StreamMatchSSE)
}
