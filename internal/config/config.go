// Package config provides centralized configuration loaded from environment
// variables, an optional .env file and an optional YAML file. Shared by
// cmd/bot and cmd/remindctl.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Telegram
	TelegramBotToken string

	// Backend service (proxy in front of the Clash of Clans API)
	BackendURL               string
	RequestTimeout           time.Duration
	BackendRequestsPerMinute int

	// Database. DatabaseURL selects Postgres; otherwise SQLite at DatabasePath.
	DatabaseURL    string
	DatabasePath   string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// War reminders
	Reminder Reminder

	// Maintenance
	CooldownRetention   time.Duration
	MaintenanceInterval time.Duration

	// Command lookups
	CacheEnabled bool

	// Admin API. Mutating endpoints require APIAdminToken when it is set.
	APIEnabled       bool
	APIHost          string
	APIPort          int
	APIAdminToken    string
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
}

// Reminder holds the settings consumed by the reminder engine.
type Reminder struct {
	Enabled  bool
	Window   time.Duration
	Interval time.Duration
	Cooldown time.Duration
	Workers  int
}

// fileConfig is the YAML shape accepted through CONFIG_FILE. Values act as
// defaults; environment variables take precedence.
type fileConfig struct {
	BackendURL   string `yaml:"backend_url"`
	DatabaseURL  string `yaml:"database_url"`
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	Reminder     struct {
		Enabled  *bool  `yaml:"enabled"`
		Window   string `yaml:"window"`
		Interval string `yaml:"interval"`
		Cooldown string `yaml:"cooldown"`
		Workers  int    `yaml:"workers"`
	} `yaml:"reminder"`
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	reminder, err := loadReminder(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken:         envOr("TELEGRAM_BOT_TOKEN", ""),
		BackendURL:               strings.TrimRight(envOr("BACKEND_URL", or(file.BackendURL, "http://backend:8000")), "/"),
		RequestTimeout:           time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		BackendRequestsPerMinute: envInt("BACKEND_REQUESTS_PER_MINUTE", 120),

		DatabaseURL:    envOr("DATABASE_URL", file.DatabaseURL),
		DatabasePath:   envOr("DATABASE_PATH", or(file.DatabasePath, "bot_data.sqlite3")),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		Reminder: reminder,

		CacheEnabled: envBool("CACHE_ENABLED", true),

		APIEnabled:    envBool("API_ENABLED", true),
		APIHost:       envOr("API_HOST", "0.0.0.0"),
		APIPort:       envInt("API_PORT", envInt("PORT", 8080)),
		APIAdminToken: envOr("API_ADMIN_TOKEN", ""),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		LogLevel: envOr("LOG_LEVEL", or(file.LogLevel, "info")),
	}

	if cfg.CooldownRetention, err = envDuration("COOLDOWN_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaintenanceInterval, err = envDuration("MAINTENANCE_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UsesPostgres reports whether the store should be backed by Postgres.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// RequireTelegram returns an error when the bot token is missing.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN must be set")
	}
	return nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadReminder(file fileConfig) (Reminder, error) {
	r := Reminder{
		Enabled: envBool("WAR_REMINDER_ENABLED", file.Reminder.Enabled == nil || *file.Reminder.Enabled),
		Workers: envInt("WAR_REMINDER_WORKERS", max(file.Reminder.Workers, 1)),
	}

	durations := []struct {
		dst        *time.Duration
		key        string
		legacyKey  string
		legacyUnit time.Duration
		fromFile   string
		fallback   time.Duration
	}{
		{&r.Window, "WAR_REMINDER_WINDOW", "WAR_REMINDER_WINDOW_HOURS", time.Hour, file.Reminder.Window, 4 * time.Hour},
		{&r.Interval, "WAR_REMINDER_INTERVAL", "WAR_REMINDER_INTERVAL_MINUTES", time.Minute, file.Reminder.Interval, 10 * time.Minute},
		{&r.Cooldown, "WAR_REMINDER_COOLDOWN", "WAR_REMINDER_COOLDOWN_MINUTES", time.Minute, file.Reminder.Cooldown, 60 * time.Minute},
	}
	for _, d := range durations {
		fallback := d.fallback
		if d.fromFile != "" {
			parsed, err := time.ParseDuration(d.fromFile)
			if err != nil {
				return Reminder{}, fmt.Errorf("invalid %s in config file: %w", strings.ToLower(d.key), err)
			}
			fallback = parsed
		}
		if n := envInt(d.legacyKey, 0); n > 0 {
			fallback = time.Duration(n) * d.legacyUnit
		}
		v, err := envDuration(d.key, fallback)
		if err != nil {
			return Reminder{}, err
		}
		if v <= 0 {
			return Reminder{}, fmt.Errorf("%s must be positive, got %s", d.key, v)
		}
		*d.dst = v
	}
	return r, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
