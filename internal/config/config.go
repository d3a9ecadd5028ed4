// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BackendURL  string // runtime backend override; beats the persisted one
	PageOrigin  string // origin of the hosting page, if any
	DBPath      string
	HTTPTimeout time.Duration
	Username    string
	Phone       string
	DevPort     string
	LogLevel    slog.Level
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BackendURL:  strings.TrimSpace(getEnv("PHARMA_BACKEND_URL", "")),
		PageOrigin:  strings.TrimSpace(getEnv("PHARMA_PAGE_ORIGIN", "")),
		DBPath:      getEnv("PHARMA_DB_PATH", "./data/pharma-chat.db"),
		HTTPTimeout: getEnvDuration("PHARMA_HTTP_TIMEOUT", 30*time.Second),
		Username:    strings.TrimSpace(getEnv("PHARMA_USERNAME", "")),
		Phone:       strings.TrimSpace(getEnv("PHARMA_PHONE", "")),
		DevPort:     getEnv("DEVSERVER_PORT", "8000"),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelWarn),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("PHARMA_DB_PATH cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("PHARMA_HTTP_TIMEOUT must be > 0")
	}
	if c.DevPort == "" {
		return fmt.Errorf("DEVSERVER_PORT cannot be empty")
	}
	if n, err := strconv.Atoi(c.DevPort); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("DEVSERVER_PORT must be a port number, got %q", c.DevPort)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
