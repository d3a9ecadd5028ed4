package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/store"
)

// Log is the local append-only order history. It is the authoritative
// record of what the user ordered; remote mirroring is supplementary.
type Log struct {
	kv     store.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLog creates a Log over kv.
func NewLog(kv store.KV, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{kv: kv, logger: logger}
}

// List returns every recorded order, oldest first. Unreadable history reads
// as empty.
func (l *Log) List(ctx context.Context) []domain.OrderRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Append adds record to the end of the history.
func (l *Log) Append(ctx context.Context, record domain.OrderRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := append(l.load(ctx), record)
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	if err := l.kv.Set(ctx, store.KeyOrders, string(data)); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}
	return nil
}

func (l *Log) load(ctx context.Context) []domain.OrderRecord {
	raw, ok, err := l.kv.Get(ctx, store.KeyOrders)
	if err != nil {
		l.logger.Debug("order log unreadable, treating as empty", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var records []domain.OrderRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		l.logger.Debug("order log malformed, treating as empty", "error", err)
		return nil
	}
	return records
}
