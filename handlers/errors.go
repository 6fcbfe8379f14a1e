package handlers

import (
	"errors"

	"battleboats/board"
	"battleboats/engine"
	"battleboats/services"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

var statusByError = []struct {
	err    error
	status int
}{
	// validation
	{board.ErrOutOfBounds, fiber.StatusBadRequest},
	{board.ErrWrongShipCount, fiber.StatusBadRequest},
	{board.ErrWrongComposition, fiber.StatusBadRequest},
	{board.ErrBadGeometry, fiber.StatusBadRequest},
	{board.ErrOverlap, fiber.StatusBadRequest},
	{services.ErrInvalidFleet, fiber.StatusBadRequest},
	{services.ErrFleetRequired, fiber.StatusBadRequest},
	{services.ErrInvalidSkin, fiber.StatusBadRequest},
	{services.ErrWeakSecret, fiber.StatusBadRequest},
	{services.ErrSecretTooLong, fiber.StatusBadRequest},
	{services.ErrInvalidName, fiber.StatusBadRequest},
	{engine.ErrInvalidCell, fiber.StatusBadRequest},

	// auth
	{services.ErrWrongCredentials, fiber.StatusUnauthorized},
	{services.ErrUnauthenticated, fiber.StatusUnauthorized},
	{services.ErrNameTaken, fiber.StatusConflict},
	{services.ErrRateLimited, fiber.StatusTooManyRequests},

	// preconditions
	{engine.ErrNotYourTurn, fiber.StatusConflict},
	{engine.ErrMatchNotReady, fiber.StatusConflict},
	{engine.ErrNotParticipant, fiber.StatusConflict},
	{engine.ErrSamePlayer, fiber.StatusConflict},
	{services.ErrMatchInProgress, fiber.StatusConflict},
	{store.ErrConflict, fiber.StatusConflict},

	// lookups
	{services.ErrMatchNotFound, fiber.StatusNotFound},
	{services.ErrNoActiveMatch, fiber.StatusNotFound},
	{services.ErrUserNotFound, fiber.StatusNotFound},
	{store.ErrNotFound, fiber.StatusNotFound},

	{services.ErrUploadsDisabled, fiber.StatusServiceUnavailable},
}

// StatusFor maps a domain error to its HTTP status, 500 when unknown.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders every returned error as {"error": ...}. Internal
// errors are logged and hidden from the client.
func ErrorHandler(logger *log.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		msg := err.Error()
		if status == fiber.StatusInternalServerError {
			logger.Error("handlers [ErrorHandler]", "err", err, "method", c.Method(), "path", c.Path())
			msg = "internal server error"
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}

func badRequest(c *fiber.Ctx, msg string, cause error) error {
	body := fiber.Map{"error": msg}
	if cause != nil {
		body["cause"] = cause.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
