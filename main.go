package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"battleboats/config"
	"battleboats/handlers"
	"battleboats/services"
	"battleboats/store"
	"battleboats/utils"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type stores interface {
	store.GameStore
	store.UserStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	logger := newLogger(cfg.Logging)
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}

	var uploader services.Uploader
	if cfg.Storage.Enabled() {
		r2, err := utils.NewR2Uploader(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", "err", err)
		}
		uploader = r2
	} else {
		logger.Warn("⚠️  R2 not configured, skin uploads disabled")
	}

	settings := cfg.Settings()
	authService := services.NewAuthService(st, st, cfg.Auth, clock, logger)
	matchmaking := services.NewMatchmakingService(st, st, settings, cfg.Game.QueueTimeout, clock, logger)
	matches := services.NewMatchService(st, settings, clock, logger)
	leaderboard := services.NewLeaderboardService(st, st)
	skins := services.NewSkinService(st, settings.Rules.MaxShipLength(), uploader, logger)

	if cfg.Server.AdminToken == "" {
		logger.Warn("⚠️  ADMIN_TOKEN not set, admin routes disabled")
	}

	app := handlers.NewApp(handlers.Services{
		Auth:           authService,
		Matchmaking:    matchmaking,
		Matches:        matches,
		Leaderboard:    leaderboard,
		Skins:          skins,
		AdminToken:     cfg.Server.AdminToken,
		Logger:         logger,
		AllowedOrigins: cfg.Origins(),
		PublicDir:      cfg.Server.PublicDir,
	})

	if cfg.Server.PublicDir != "" {
		if err := os.MkdirAll(cfg.Server.PublicDir, os.ModePerm); err != nil {
			logger.Fatal("failed to ensure public dir", "err", err)
		}
	}

	sched, err := matchmaking.StartSweepScheduler(ctx, cfg.Game.SweepInterval, authService)
	if err != nil {
		logger.Fatal("failed to start sweep scheduler", "err", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	logger.Infof("✅ Server running on http://localhost:%s", cfg.Server.Port)
	logger.Infof("✅ Sweeper running (every %s)", cfg.Game.SweepInterval)
	logger.Infof("✅ Grid %dx%d, fleet %v, fire again on hit: %t",
		cfg.Game.GridSize, cfg.Game.GridSize, cfg.Game.Composition, cfg.Game.FireAgainOnHit)
	if origins := cfg.Origins(); origins != "" {
		logger.Infof("✅ CORS configured for origins: %s", origins)
	}

	<-ctx.Done()
	logger.Info("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", "err", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}

func newLogger(cfg config.LoggingConfig) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	if lvl, err := log.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
		logger.SetLevel(lvl)
	}
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// openStore uses Postgres when DATABASE_URL is set and memory otherwise.
func openStore(cfg config.DatabaseConfig, logger *log.Logger) (stores, error) {
	if cfg.URL == "" {
		logger.Warn("⚠️  DATABASE_URL not set, state lives in memory and is lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	gs := store.NewGormStore(db)
	if err := gs.Migrate(); err != nil {
		return nil, err
	}
	logger.Info("✅ Connected to Postgres")
	return gs, nil
}
