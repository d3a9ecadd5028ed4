// Package identity provides the locally persisted user profile.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/store"
)

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	phonePattern  = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
)

// ErrInvalidPhone is returned by Save for a malformed phone number.
var ErrInvalidPhone = errors.New("phone number may only contain digits, spaces, dashes, parentheses and a leading +")

// Store loads and saves the profile under store.KeyProfile.
type Store struct {
	kv     store.KV
	logger *slog.Logger

	mu      sync.Mutex
	profile *domain.Profile
}

// NewStore creates a profile Store.
func NewStore(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Profile returns the current profile. It never fails: unreadable data is
// replaced by a fresh anonymous profile.
func (s *Store) Profile(ctx context.Context) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile != nil {
		return *s.profile
	}

	p := s.load(ctx)
	if !isValidAnonID(p.UserID) {
		id, err := generateAnonID()
		if err != nil {
			s.logger.Warn("failed to generate user id", "error", err)
		} else {
			p.UserID = id
			if err := s.save(ctx, p); err != nil {
				s.logger.Warn("failed to persist user id", "error", err)
			}
		}
	}
	s.profile = &p
	return p
}

// Save updates the username and phone, keeping the user id.
func (s *Store) Save(ctx context.Context, username, phone string) (domain.Profile, error) {
	username = strings.TrimSpace(username)
	phone = strings.TrimSpace(phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return domain.Profile{}, ErrInvalidPhone
	}

	p := s.Profile(ctx)
	p.Username = username
	p.Phone = phone

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	s.profile = &p
	return p, nil
}

// ApplyDefaults fills empty username/phone fields from configuration without
// overwriting values the user saved.
func (s *Store) ApplyDefaults(ctx context.Context, username, phone string) domain.Profile {
	p := s.Profile(ctx)
	if (p.Username != "" || username == "") && (p.Phone != "" || phone == "") {
		return p
	}
	if p.Username == "" {
		p.Username = strings.TrimSpace(username)
	}
	if p.Phone == "" {
		p.Phone = strings.TrimSpace(phone)
	}
	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
	return p
}

func (s *Store) load(ctx context.Context) domain.Profile {
	raw, ok, err := s.kv.Get(ctx, store.KeyProfile)
	if err != nil || !ok {
		return domain.Profile{}
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Debug("profile malformed, starting fresh", "error", err)
		return domain.Profile{}
	}
	return p
}

func (s *Store) save(ctx context.Context, p domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyProfile, string(data)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}
