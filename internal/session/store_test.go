package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/store"
	"github.com/google/go-cmp/cmp"
)

// fakeClock advances one second per call so UpdatedAt ordering is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, kv store.KV) *Store {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	return New(kv,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("s%d", n)
		}),
	)
}

func mustSet(t *testing.T, kv store.KV, key string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	if err := kv.Set(context.Background(), key, string(data)); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestEnsureInitializedSeedsWelcome(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	sessions := s.List(ctx)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	want := []domain.Message{{Role: domain.RoleAssistant, Text: WelcomeMessage}}
	if diff := cmp.Diff(want, sessions[0].Messages); diff != "" {
		t.Fatalf("welcome messages mismatch (-want +got):\n%s", diff)
	}
	if s.ActiveID() != sessions[0].ID {
		t.Fatalf("active pointer %q does not name the seeded session %q", s.ActiveID(), sessions[0].ID)
	}
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	s := newTestStore(t, kv)
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("first EnsureInitialized failed: %v", err)
	}
	first := s.ActiveID()

	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("second EnsureInitialized failed: %v", err)
	}
	if got := len(s.List(ctx)); got != 1 {
		t.Fatalf("expected a single session after two initializations, got %d", got)
	}
	if s.ActiveID() != first {
		t.Fatalf("active pointer changed from %q to %q", first, s.ActiveID())
	}

	// A fresh process over the same storage keeps the pointer too.
	reloaded := newTestStore(t, kv)
	if err := reloaded.EnsureInitialized(ctx); err != nil {
		t.Fatalf("reloaded EnsureInitialized failed: %v", err)
	}
	if reloaded.ActiveID() != first {
		t.Fatalf("reloaded active pointer = %q, want %q", reloaded.ActiveID(), first)
	}
}

func TestEnsureInitializedMigratesLegacyTranscript(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	mustSet(t, kv, store.KeyLegacyChat, []map[string]string{
		{"role": "assistant", "text": "Hello!"},
		{"role": "user", "text": "I need paracetamol"},
		{"className": "ai", "text": domain.LegacyPlaceholder},
		{"className": "ai", "text": "We have it in stock."},
		{"className": "user", "text": "Thanks"},
	})

	s := newTestStore(t, kv)
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	sessions := s.List(ctx)
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one migrated session, got %d", len(sessions))
	}
	want := []domain.Message{
		{Role: domain.RoleAssistant, Text: "Hello!"},
		{Role: domain.RoleUser, Text: "I need paracetamol"},
		{Role: domain.RoleAssistant, Text: "We have it in stock."},
		{Role: domain.RoleUser, Text: "Thanks"},
	}
	if diff := cmp.Diff(want, sessions[0].Messages); diff != "" {
		t.Fatalf("migrated messages mismatch (-want +got):\n%s", diff)
	}
	if _, ok, _ := kv.Get(ctx, store.KeyLegacyChat); ok {
		t.Fatal("legacy key should be removed after migration")
	}
}

func TestEnsureInitializedKeepsExistingSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	mustSet(t, kv, store.KeySessions, []domain.Session{
		{ID: "old", Messages: []domain.Message{{Role: domain.RoleUser, Text: "a"}}, CreatedAt: older, UpdatedAt: older},
		{ID: "new", Messages: []domain.Message{{Role: domain.RoleUser, Text: "b"}}, CreatedAt: older, UpdatedAt: newer},
	})
	mustSet(t, kv, store.KeyLegacyChat, []map[string]string{{"role": "user", "text": "ignored"}})
	mustSet(t, kv, store.KeyActiveSession, "missing-id")

	s := newTestStore(t, kv)
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	if got := len(s.List(ctx)); got != 2 {
		t.Fatalf("expected existing sessions kept, got %d", got)
	}
	if s.ActiveID() != "new" {
		t.Fatalf("dangling pointer should resolve to most recent session, got %q", s.ActiveID())
	}
	raw, _, _ := kv.Get(ctx, store.KeyActiveSession)
	if raw != `"new"` {
		t.Fatalf("resolved pointer not persisted, stored %q", raw)
	}
}

func TestMalformedStorageReadsAsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	_ = kv.Set(ctx, store.KeySessions, "{not json")
	_ = kv.Set(ctx, store.KeyLegacyChat, "also not json")
	_ = kv.Set(ctx, store.KeyActiveSession, "[")

	s := newTestStore(t, kv)
	if got := s.List(ctx); len(got) != 0 {
		t.Fatalf("expected empty list for malformed data, got %d sessions", len(got))
	}
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed on malformed storage: %v", err)
	}
	sessions := s.List(ctx)
	if len(sessions) != 1 || sessions[0].Messages[0].Text != WelcomeMessage {
		t.Fatalf("expected a single welcome session, got %+v", sessions)
	}
}

// unreadableKV fails every Get and counts writes.
type unreadableKV struct {
	*store.MemoryStore
	writes int
}

var errDiskRead = errors.New("disk I/O error")

func (u *unreadableKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errDiskRead
}

func (u *unreadableKV) Set(ctx context.Context, key, value string) error {
	u.writes++
	return u.MemoryStore.Set(ctx, key, value)
}

func (u *unreadableKV) Delete(ctx context.Context, key string) error {
	u.writes++
	return u.MemoryStore.Delete(ctx, key)
}

func TestReadFailureBlocksWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := &unreadableKV{MemoryStore: store.NewMemory()}
	mustSet(t, kv.MemoryStore, store.KeySessions, []domain.Session{{ID: "keep"}})
	mustSet(t, kv.MemoryStore, store.KeyLegacyChat, []map[string]string{{"role": "user", "text": "hi"}})

	s := newTestStore(t, kv)
	if err := s.EnsureInitialized(ctx); !errors.Is(err, errDiskRead) {
		t.Fatalf("EnsureInitialized error = %v, want %v", err, errDiskRead)
	}
	if _, err := s.Create(ctx, nil); !errors.Is(err, errDiskRead) {
		t.Fatalf("Create error = %v, want %v", err, errDiskRead)
	}

	s.activeID = "keep"
	if err := s.Append(ctx, domain.RoleUser, "hello"); !errors.Is(err, errDiskRead) {
		t.Fatalf("Append error = %v, want %v", err, errDiskRead)
	}

	if kv.writes != 0 {
		t.Fatalf("%d writes after failed reads, want none", kv.writes)
	}
	raw, ok, _ := kv.MemoryStore.Get(ctx, store.KeySessions)
	if !ok || !strings.Contains(raw, `"keep"`) {
		t.Fatalf("stored sessions replaced: %q", raw)
	}
	if _, ok, _ := kv.MemoryStore.Get(ctx, store.KeyLegacyChat); !ok {
		t.Fatal("legacy transcript deleted after failed read")
	}
}

func TestWelcomeMessageText(t *testing.T) {
	t.Parallel()

	if want := "Hello! I\u2019m your AI Pharmacist. How can I help today?"; WelcomeMessage != want {
		t.Fatalf("WelcomeMessage = %q, want %q", WelcomeMessage, want)
	}
}

func TestActivePointerAlwaysValid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	check := func(step string) {
		t.Helper()
		sessions := s.List(ctx)
		if len(sessions) == 0 {
			t.Fatalf("%s: no sessions", step)
		}
		if indexOf(sessions, s.ActiveID()) < 0 {
			t.Fatalf("%s: active pointer %q names no session", step, s.ActiveID())
		}
	}

	first := s.ActiveID()
	created, err := s.Create(ctx, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	check("create")
	if s.ActiveID() != created.ID {
		t.Fatalf("Create should activate the new session")
	}

	if _, ok := s.Open(ctx, "does-not-exist"); ok {
		t.Fatal("Open of unknown id should report false")
	}
	check("open unknown")
	if s.ActiveID() != created.ID {
		t.Fatalf("Open of unknown id changed the active session to %q", s.ActiveID())
	}

	opened, ok := s.Open(ctx, first)
	if !ok || opened.ID != first {
		t.Fatalf("Open(%q) = %q, %v", first, opened.ID, ok)
	}
	check("open existing")
}

func TestAppendUpdatesActiveSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	before, _ := s.Active(ctx)

	if err := s.Append(ctx, domain.RoleUser, "Do you have ibuprofen?"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	after, _ := s.Active(ctx)

	if len(after.Messages) != len(before.Messages)+1 {
		t.Fatalf("expected one more message, got %d -> %d", len(before.Messages), len(after.Messages))
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("UpdatedAt not bumped: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
	if got := s.LastUserMessage(ctx); got != "Do you have ibuprofen?" {
		t.Fatalf("LastUserMessage = %q", got)
	}
}

func TestAppendDropsLegacyPlaceholder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	before, _ := s.Active(ctx)

	if err := s.Append(ctx, domain.RoleAssistant, domain.LegacyPlaceholder); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, domain.RoleAssistant, "   "); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	after, _ := s.Active(ctx)
	if diff := cmp.Diff(before.Messages, after.Messages); diff != "" {
		t.Fatalf("placeholder should not be persisted (-before +after):\n%s", diff)
	}
}

func TestAppendWithoutActiveSessionIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	s := newTestStore(t, kv)
	if err := s.Append(ctx, domain.RoleUser, "hello"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, store.KeySessions); ok {
		t.Fatal("Append without an active session must not write")
	}
}

func TestListOrdersByRecency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, store.NewMemory())
	if err := s.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	first := s.ActiveID()
	second, _ := s.Create(ctx, nil)

	s.Open(ctx, first)
	if err := s.Append(ctx, domain.RoleUser, "bump"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	sessions := s.List(ctx)
	if sessions[0].ID != first || sessions[1].ID != second.ID {
		t.Fatalf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestTitle(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("paracetamol ", 10)
	tests := []struct {
		name     string
		messages []domain.Message
		want     string
	}{
		{name: "empty", want: DefaultTitle},
		{
			name: "assistant only",
			messages: []domain.Message{
				{Role: domain.RoleAssistant, Text: "  Hello there  "},
			},
			want: "Hello there",
		},
		{
			name: "user wins",
			messages: []domain.Message{
				{Role: domain.RoleAssistant, Text: "Hello"},
				{Role: domain.RoleUser, Text: " "},
				{Role: domain.RoleUser, Text: "Need\ncough syrup"},
			},
			want: "Need cough syrup",
		},
		{
			name:     "truncated",
			messages: []domain.Message{{Role: domain.RoleUser, Text: long}},
			want:     strings.TrimSpace(long[:40]) + "...",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Title(domain.Session{Messages: tt.messages}); got != tt.want {
				t.Fatalf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}
