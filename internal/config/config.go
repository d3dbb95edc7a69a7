// Package config loads process-wide settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/msomdec/diabot/internal/domain"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

var secretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,256}$`)

type Config struct {
	BotToken       string
	WebhookSecret  string
	EncryptionKey  string
	PublicURL      string
	DataDir        string
	StorageBackend string
	Port           string
	LogLevel       slog.Level
	RateLimit      float64
	RateBurst      float64
}

// Load reads an optional .env file in the working directory, then the
// environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		BotToken:       get("BOT_TOKEN", ""),
		WebhookSecret:  get("WEBHOOK_SECRET", ""),
		EncryptionKey:  get("ENCRYPTION_KEY", ""),
		PublicURL:      strings.TrimRight(get("PUBLIC_URL", ""), "/"),
		DataDir:        get("DATA_DIR", "data"),
		StorageBackend: strings.ToLower(get("STORAGE_BACKEND", BackendFile)),
		Port:           get("PORT", "8080"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("%w: BOT_TOKEN is required", domain.ErrInvalidInput)
	}
	if !secretPattern.MatchString(cfg.WebhookSecret) {
		return nil, fmt.Errorf("%w: WEBHOOK_SECRET must be 16 to 256 characters of A-Z, a-z, 0-9, _ or -", domain.ErrInvalidInput)
	}
	if len(cfg.EncryptionKey) < 32 {
		return nil, fmt.Errorf("%w: ENCRYPTION_KEY must be at least 32 characters", domain.ErrInvalidInput)
	}
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return nil, fmt.Errorf("%w: PUBLIC_URL must be an https URL", domain.ErrInvalidInput)
		}
	}
	switch cfg.StorageBackend {
	case BackendFile, BackendSQLite:
	default:
		return nil, fmt.Errorf("%w: STORAGE_BACKEND must be %q or %q", domain.ErrInvalidInput, BackendFile, BackendSQLite)
	}
	if p, err := strconv.Atoi(cfg.Port); err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("%w: invalid PORT %q", domain.ErrInvalidInput, cfg.Port)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", domain.ErrInvalidInput, err)
	}

	var err error
	if cfg.RateLimit, err = positive(get("RATE_LIMIT", "2"), "RATE_LIMIT"); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = positive(get("RATE_BURST", "10"), "RATE_BURST"); err != nil {
		return nil, err
	}
	if cfg.RateBurst < 1 {
		return nil, fmt.Errorf("%w: RATE_BURST must be at least 1", domain.ErrInvalidInput)
	}

	return cfg, nil
}

func positive(raw, name string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", domain.ErrInvalidInput, name, raw)
	}
	return v, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }

// WebhookURL is the public endpoint registered with Telegram, or "" when
// PUBLIC_URL is unset.
func (c *Config) WebhookURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return c.PublicURL + "/webhook/" + c.WebhookSecret
}

// SQLitePath is the database file used by the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "diabot.db")
}
