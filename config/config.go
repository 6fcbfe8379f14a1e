package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"battleboats/board"
	"battleboats/engine"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Game     GameConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
	AdminToken     string
	PublicDir      string
}

// DatabaseConfig selects the store backend. An empty URL runs in memory.
type DatabaseConfig struct {
	URL string
}

type GameConfig struct {
	GridSize       int
	Composition    []int
	FireAgainOnHit bool
	QueueTimeout   time.Duration
	MatchMaxAge    time.Duration
	SweepInterval  time.Duration
}

type AuthConfig struct {
	SessionTTL      time.Duration
	MinSecretLength int
	MaxFailedLogins int
	FailedLoginSpan time.Duration
}

// StorageConfig is the Cloudflare R2 bucket for uploaded skins.
type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (s StorageConfig) Enabled() bool {
	return s.AccountID != "" && s.Bucket != ""
}

type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	composition, err := parseComposition(getEnv("FLEET_COMPOSITION", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "5200"),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
			AdminToken:     getEnv("ADMIN_TOKEN", ""),
			PublicDir:      getEnv("PUBLIC_DIR", "./public"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Game: GameConfig{
			GridSize:       getEnvInt("GRID_SIZE", board.DefaultGridSize),
			Composition:    composition,
			FireAgainOnHit: getEnvBool("FIRE_AGAIN_ON_HIT", true),
			QueueTimeout:   getEnvDuration("QUEUE_TIMEOUT", 5*time.Minute),
			MatchMaxAge:    getEnvDuration("MATCH_MAX_AGE", 2*time.Hour),
			SweepInterval:  getEnvDuration("SWEEP_INTERVAL", time.Minute),
		},
		Auth: AuthConfig{
			SessionTTL:      getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			MinSecretLength: getEnvInt("MIN_SECRET_LENGTH", 6),
			MaxFailedLogins: getEnvInt("MAX_FAILED_LOGINS", 5),
			FailedLoginSpan: getEnvDuration("FAILED_LOGIN_WINDOW", time.Minute),
		},
		Storage: StorageConfig{
			AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("R2_BUCKET_NAME", ""),
			CDNBaseURL:      getEnv("CDN_BASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a game setup no fleet could satisfy and timings or limits
// that would stall the sweeper or lock every login.
func (c *Config) Validate() error {
	g := c.Game
	if g.GridSize < 2 {
		return fmt.Errorf("GRID_SIZE must be at least 2, got %d", g.GridSize)
	}
	total := 0
	for _, l := range g.Composition {
		if l < 1 || l > g.GridSize {
			return fmt.Errorf("FLEET_COMPOSITION: ship length %d does not fit a %dx%d grid", l, g.GridSize, g.GridSize)
		}
		total += l
	}
	if total > g.GridSize*g.GridSize {
		return fmt.Errorf("FLEET_COMPOSITION: %d cells do not fit a %dx%d grid", total, g.GridSize, g.GridSize)
	}
	if g.QueueTimeout <= 0 {
		return fmt.Errorf("QUEUE_TIMEOUT must be positive")
	}
	if g.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	a := c.Auth
	if a.MaxFailedLogins < 1 {
		return fmt.Errorf("MAX_FAILED_LOGINS must be at least 1, got %d", a.MaxFailedLogins)
	}
	if a.FailedLoginSpan <= 0 {
		return fmt.Errorf("FAILED_LOGIN_WINDOW must be positive")
	}
	if a.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

// Settings is the engine view of the game section.
func (c *Config) Settings() engine.Settings {
	return engine.Settings{
		Rules: board.Rules{
			Grid:        board.Grid{Size: c.Game.GridSize},
			Composition: c.Game.Composition,
		},
		FireAgainOnHit: c.Game.FireAgainOnHit,
		MatchMaxAge:    c.Game.MatchMaxAge,
	}
}

func (c *Config) Origins() string {
	parts := strings.Split(c.Server.AllowedOrigins, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// parseComposition reads "4,3,3,2" style lists; empty means the default fleet.
func parseComposition(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]int(nil), board.DefaultComposition...), nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("FLEET_COMPOSITION: invalid ship length %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "5m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
