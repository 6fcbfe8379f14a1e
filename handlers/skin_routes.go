package handlers

import (
	"strconv"
	"strings"

	"battleboats/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSkinRoutes(app *fiber.App, skins *services.SkinService, session fiber.Handler) {
	app.Get("/skins", session, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		out, err := skins.Get(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(out)
	})

	// JSON {"skin_path": ...} picks an existing image; multipart "file" uploads one.
	app.Put("/skins/:length", session, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		length, err := strconv.Atoi(c.Params("length"))
		if err != nil {
			return badRequest(c, "ship length must be a number", err)
		}

		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			fh, err := c.FormFile("file")
			if err != nil {
				return badRequest(c, "missing file", err)
			}
			out, err := skins.Upload(c.UserContext(), userID, length, fh)
			if err != nil {
				return err
			}
			return c.JSON(out)
		}

		var req struct {
			SkinPath string `json:"skin_path"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		out, err := skins.Set(c.UserContext(), userID, length, req.SkinPath)
		if err != nil {
			return err
		}
		return c.JSON(out)
	})
}
