// Package store provides the key/value persistence surface shared by the
// session store, the order log and the local profile.
package store

import (
	"context"
)

// Keys used by the client. Each owner reads and writes only its own keys.
const (
	KeySessions      = "pharma_chat_sessions"
	KeyActiveSession = "pharma_active_session"
	KeyLegacyChat    = "pharma_chat_messages"
	KeyOrders        = "pharma_orders"
	KeyProfile       = "pharma_user_profile"
	KeyBackendURL    = "pharma_backend_url"
)

// KV is a scoped key to string store. Values are opaque to the store;
// callers encode them as JSON.
type KV interface {
	// Get returns the value stored under key. A missing key reports ok == false
	// and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set creates or replaces the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}
