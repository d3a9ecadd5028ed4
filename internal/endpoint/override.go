package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/pharma-chat/internal/store"
)

// SaveOverride persists base as the saved override, JSON-encoded like every
// other stored value.
func SaveOverride(ctx context.Context, kv store.KV, base string) error {
	raw, err := json.Marshal(Normalize(base))
	if err != nil {
		return fmt.Errorf("encode backend override: %w", err)
	}
	return kv.Set(ctx, store.KeyBackendURL, string(raw))
}

// LoadOverride returns the saved override, or "" when none is stored or the
// stored value cannot be decoded.
func LoadOverride(ctx context.Context, kv store.KV, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	raw, ok, err := kv.Get(ctx, store.KeyBackendURL)
	if err != nil {
		logger.Warn("failed to read persisted backend override", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	var base string
	if err := json.Unmarshal([]byte(raw), &base); err != nil {
		logger.Warn("ignoring malformed backend override", "error", err)
		return ""
	}
	return Normalize(base)
}

// ClearOverride removes the saved override.
func ClearOverride(ctx context.Context, kv store.KV) error {
	return kv.Delete(ctx, store.KeyBackendURL)
}
