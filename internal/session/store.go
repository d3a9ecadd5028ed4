// Package session persists named conversation threads and the pointer to the
// thread currently on screen.
//
// All reads tolerate missing keys and malformed JSON by treating the data as
// absent. Mutations abort when the collection cannot be read, so a storage
// failure never replaces existing sessions. Every mutation rewrites the whole
// collection; two processes sharing one profile can overwrite each other's
// last write.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/store"
	"github.com/google/uuid"
)

// WelcomeMessage seeds a brand-new conversation.
const WelcomeMessage = "Hello! I’m your AI Pharmacist. How can I help today?"

// Store owns the session collection and the active pointer.
type Store struct {
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	activeID string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over kv. Call EnsureInitialized before anything else.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// legacyEntry accepts both the flat {role, text} shape and the web
// page's {className, text} shape.
type legacyEntry struct {
	Role      string `json:"role"`
	ClassName string `json:"className"`
	Text      string `json:"text"`
}

// EnsureInitialized guarantees at least one session exists and that the
// active pointer names one of them. Calling it again is a no-op.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		legacy, ok, err := s.loadLegacy(ctx)
		if err != nil {
			return err
		}
		var seeded domain.Session
		if ok {
			seeded = s.newSession(legacy)
			s.logger.Info("migrated legacy transcript", "session_id", seeded.ID, "messages", len(seeded.Messages))
		} else {
			seeded = s.newSession([]domain.Message{{Role: domain.RoleAssistant, Text: WelcomeMessage}})
		}
		sessions = []domain.Session{seeded}
		if err := s.save(ctx, sessions); err != nil {
			return err
		}
		// The legacy key is dropped only once its contents are safely stored.
		if err := s.kv.Delete(ctx, store.KeyLegacyChat); err != nil {
			s.logger.Warn("failed to delete legacy transcript", "error", err)
		}
	}

	persisted := s.loadActiveID(ctx)
	if indexOf(sessions, persisted) >= 0 {
		s.activeID = persisted
		return nil
	}

	latest := mostRecent(sessions)
	s.activeID = latest.ID
	return s.saveActiveID(ctx, latest.ID)
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.load(ctx)
	sortByRecency(sessions)
	return sessions
}

// Create stores a new session seeded with initial and makes it active.
func (s *Store) Create(ctx context.Context, initial []domain.Message) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	created := s.newSession(initial)
	sessions = append(sessions, created)
	if err := s.save(ctx, sessions); err != nil {
		return domain.Session{}, err
	}

	s.activeID = created.ID
	if err := s.saveActiveID(ctx, created.ID); err != nil {
		return domain.Session{}, err
	}
	return created.Clone(), nil
}

// Open makes id the active session. It reports false, leaving the current
// active session in place, when id does not exist.
func (s *Store) Open(ctx context.Context, id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.load(ctx)
	i := indexOf(sessions, id)
	if i < 0 {
		return domain.Session{}, false
	}

	s.activeID = id
	if err := s.saveActiveID(ctx, id); err != nil {
		s.logger.Warn("failed to persist active session", "session_id", id, "error", err)
	}
	return sessions[i], true
}

// Append adds a message to the active session. Empty text, and the legacy
// assistant placeholder, are dropped. Without an active session it does
// nothing.
func (s *Store) Append(ctx context.Context, role domain.Role, text string) error {
	text = domain.SanitizeText(role, text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" {
		return nil
	}
	sessions, err := s.read(ctx)
	if err != nil {
		return err
	}
	i := indexOf(sessions, s.activeID)
	if i < 0 {
		return nil
	}

	sess := &sessions[i]
	sess.Messages = append(sess.Messages, domain.Message{Role: role, Text: text})
	if now := s.now(); now.After(sess.UpdatedAt) {
		sess.UpdatedAt = now
	}
	return s.save(ctx, sessions)
}

// Active returns the session the active pointer names.
func (s *Store) Active(ctx context.Context) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.load(ctx)
	i := indexOf(sessions, s.activeID)
	if i < 0 {
		return domain.Session{}, false
	}
	return sessions[i], true
}

// ActiveID returns the active session id, or "" before initialization.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// LastUserMessage returns the most recent user text in the active session.
func (s *Store) LastUserMessage(ctx context.Context) string {
	sess, ok := s.Active(ctx)
	if !ok {
		return ""
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		m := sess.Messages[i]
		if m.Role == domain.RoleUser && strings.TrimSpace(m.Text) != "" {
			return m.Text
		}
	}
	return ""
}

func (s *Store) newSession(initial []domain.Message) domain.Session {
	now := s.now()
	return domain.Session{
		ID:        s.newID(),
		Messages:  cleanMessages(initial),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// load is read for callers that only display sessions.
func (s *Store) load(ctx context.Context) []domain.Session {
	sessions, err := s.read(ctx)
	if err != nil {
		s.logger.Debug("session collection unreadable, treating as empty", "error", err)
		return nil
	}
	return sessions
}

// read returns the stored sessions. Malformed data reads as empty; only a
// storage failure is an error.
func (s *Store) read(ctx context.Context) ([]domain.Session, error) {
	raw, ok, err := s.kv.Get(ctx, store.KeySessions)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var sessions []domain.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		s.logger.Debug("session collection malformed, treating as empty", "error", err)
		return nil, nil
	}

	valid := sessions[:0]
	for _, sess := range sessions {
		if sess.ID == "" {
			continue
		}
		sess.Messages = cleanMessages(sess.Messages)
		valid = append(valid, sess)
	}
	return valid, nil
}

func (s *Store) save(ctx context.Context, sessions []domain.Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeySessions, string(data)); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

func (s *Store) loadLegacy(ctx context.Context) ([]domain.Message, bool, error) {
	raw, ok, err := s.kv.Get(ctx, store.KeyLegacyChat)
	if err != nil {
		return nil, false, fmt.Errorf("read legacy transcript: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var entries []legacyEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Debug("legacy transcript malformed, ignoring", "error", err)
		return nil, false, nil
	}

	var messages []domain.Message
	for _, e := range entries {
		name := e.Role
		if name == "" {
			name = e.ClassName
		}
		role, ok := domain.ParseRole(name)
		if !ok {
			continue
		}
		messages = append(messages, domain.Message{Role: role, Text: e.Text})
	}
	messages = cleanMessages(messages)
	if len(messages) == 0 {
		return nil, false, nil
	}
	return messages, true, nil
}

func (s *Store) loadActiveID(ctx context.Context) string {
	raw, ok, err := s.kv.Get(ctx, store.KeyActiveSession)
	if err != nil || !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return ""
	}
	return id
}

func (s *Store) saveActiveID(ctx context.Context, id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode active session: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyActiveSession, string(data)); err != nil {
		return fmt.Errorf("save active session: %w", err)
	}
	return nil
}

// cleanMessages drops placeholder, empty and unknown-role entries.
func cleanMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(in))
	for _, m := range in {
		if m.Role != domain.RoleAssistant && m.Role != domain.RoleUser {
			continue
		}
		m.Text = domain.SanitizeText(m.Role, m.Text)
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func indexOf(sessions []domain.Session, id string) int {
	if id == "" {
		return -1
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func mostRecent(sessions []domain.Session) domain.Session {
	latest := sessions[0]
	for _, sess := range sessions[1:] {
		if sess.UpdatedAt.After(latest.UpdatedAt) {
			latest = sess
		}
	}
	return latest
}

func sortByRecency(sessions []domain.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
