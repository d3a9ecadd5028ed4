package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("PHARMA_BACKEND_URL", "")
	t.Setenv("PHARMA_DB_PATH", "./data/pharma-chat.db")
	t.Setenv("PHARMA_HTTP_TIMEOUT", "soon")
	t.Setenv("DEVSERVER_PORT", "8000")
	t.Setenv("LOG_LEVEL", "loud")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackendURL != "" || cfg.HTTPTimeout != 30*time.Second || cfg.DevPort != "8000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("log level = %v, want warn", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PHARMA_BACKEND_URL", " http://10.0.0.5:9000 ")
	t.Setenv("PHARMA_DB_PATH", "/tmp/pharma.db")
	t.Setenv("PHARMA_HTTP_TIMEOUT", "5")
	t.Setenv("DEVSERVER_PORT", "8001")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BackendURL != "http://10.0.0.5:9000" {
		t.Fatalf("backend url = %q", cfg.BackendURL)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level = %v, want debug", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{DBPath: "x.db", HTTPTimeout: time.Second, DevPort: "8000"}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = "" }, wantErr: "PHARMA_DB_PATH"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTPTimeout = 0 }, wantErr: "PHARMA_HTTP_TIMEOUT"},
		{name: "bad port", mutate: func(c *Config) { c.DevPort = "eighty" }, wantErr: "DEVSERVER_PORT"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
