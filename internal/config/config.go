// Package config loads client and server settings from the environment.
// Values from .env files are applied first and never override variables
// already set in the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Exhaustion policies accepted in CLINICSYNC_EXHAUSTION_POLICY
const (
	PolicyDeadLetter = "dead_letter"
	PolicyRetain     = "retain"
)

// Client is the sync client configuration
type Client struct {
	ServerURL    string   `env:"CLINICSYNC_SERVER" envDefault:"http://localhost:8080"`
	DBPath       string   `env:"CLINICSYNC_DB" envDefault:"clinicsync.db"`
	TokenSecret  string   `env:"CLINICSYNC_TOKEN_SECRET"` // пустой секрет: токен хранится без шифрования
	// Локальный API демона (записи из CLI и метрики); пустой адрес отключает
	LocalAddr    string   `env:"CLINICSYNC_LOCAL_ADDR" envDefault:"127.0.0.1:8787"`
	LogLevel     string   `env:"CLINICSYNC_LOG_LEVEL" envDefault:"info"`
	Policy       string   `env:"CLINICSYNC_EXHAUSTION_POLICY" envDefault:"dead_letter"`
	FeedEntities []string `env:"CLINICSYNC_FEED_ENTITIES" envSeparator:"," envDefault:"appointments"`

	DrainInterval        time.Duration `env:"CLINICSYNC_DRAIN_INTERVAL" envDefault:"30s"`
	DeliveryTimeout      time.Duration `env:"CLINICSYNC_DELIVERY_TIMEOUT" envDefault:"15s"`
	ProbeInterval        time.Duration `env:"CLINICSYNC_PROBE_INTERVAL" envDefault:"10s"`
	CacheTTL             time.Duration `env:"CLINICSYNC_CACHE_TTL" envDefault:"5m"`
	CacheCleanupInterval time.Duration `env:"CLINICSYNC_CACHE_CLEANUP_INTERVAL" envDefault:"1m"`
	RetainSynced         time.Duration `env:"CLINICSYNC_RETAIN_SYNCED" envDefault:"720h"`

	MaxRetries  int  `env:"CLINICSYNC_MAX_RETRIES" envDefault:"3"`
	StrictDates bool `env:"CLINICSYNC_STRICT_DATES" envDefault:"false"`
}

// Server is the reference server configuration
type Server struct {
	Addr      string        `env:"CLINICSYNC_ADDR" envDefault:":8080"`
	DBPath    string        `env:"CLINICSYNC_SERVER_DB" envDefault:"clinicsync-server.db"`
	JWTSecret string        `env:"CLINICSYNC_JWT_SECRET,required"`
	LogLevel  string        `env:"CLINICSYNC_LOG_LEVEL" envDefault:"info"`
	TokenTTL  time.Duration `env:"CLINICSYNC_TOKEN_TTL" envDefault:"24h"`

	// Лимит запросов на вызывающего за окно
	RateLimit  int           `env:"CLINICSYNC_RATE_LIMIT" envDefault:"300"`
	RateWindow time.Duration `env:"CLINICSYNC_RATE_WINDOW" envDefault:"1m"`
}

// LoadClient reads the client configuration.
// files are optional .env files; missing files are skipped.
func LoadClient(files ...string) (*Client, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, err
	}
	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServer reads the server configuration
func LoadServer(files ...string) (*Server, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, err
	}
	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("CLINICSYNC_JWT_SECRET must be at least 16 characters")
	}
	if cfg.RateLimit < 1 || cfg.RateWindow <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d per %s", cfg.RateLimit, cfg.RateWindow)
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks value ranges
func (c *Client) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	// cron @every не поддерживает интервалы короче секунды
	if c.DrainInterval < time.Second {
		return fmt.Errorf("drain interval must be at least 1s, got %s", c.DrainInterval)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive, got %s", c.DeliveryTimeout)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.ProbeInterval)
	}
	if c.CacheCleanupInterval < time.Second {
		return fmt.Errorf("cache cleanup interval must be at least 1s, got %s", c.CacheCleanupInterval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	switch c.Policy {
	case PolicyDeadLetter, PolicyRetain:
	default:
		return fmt.Errorf("unknown exhaustion policy %q", c.Policy)
	}
	return nil
}

// ParseLevel converts a level name to slog.Level; unknown names are info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
