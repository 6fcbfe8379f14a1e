package handlers

import (
	"net/http"
	"time"

	"battleboats/middleware"
	"battleboats/services"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Services is everything the routes call into.
type Services struct {
	Auth        *services.AuthService
	Matchmaking *services.MatchmakingService
	Matches     *services.MatchService
	Leaderboard *services.LeaderboardService
	Skins       *services.SkinService

	AdminToken string
	Logger     *log.Logger

	// comma separated; empty disables CORS
	AllowedOrigins string
	// static client files served at /; empty serves nothing
	PublicDir string
}

// NewApp builds the fiber app with every API route registered.
func NewApp(s Services) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "battleboats",
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: ErrorHandler(s.Logger),
	})
	app.Use(recover.New())

	if s.AllowedOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     s.AllowedOrigins,
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Admin-Token, Cache-Control",
			AllowCredentials: true,
			MaxAge:           86400, // 24 hours
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})

	session := middleware.SessionMiddleware(s.Auth, s.Logger)

	SetupAuthRoutes(app, s.Auth, session)
	SetupMatchRoutes(app, s.Matchmaking, s.Matches, session, middleware.SSEAuthMiddleware(s.Auth, s.Logger))
	SetupLeaderboardRoutes(app, s.Leaderboard)
	SetupSkinRoutes(app, s.Skins, session)
	SetupAdminRoutes(app, s.Matchmaking, middleware.AdminTokenMiddleware(s.AdminToken, s.Logger))

	if s.PublicDir != "" {
		app.Use(filesystem.New(filesystem.Config{
			Root:   http.Dir(s.PublicDir),
			Index:  "index.html",
			MaxAge: 3600,
		}))
	}

	return app
}
