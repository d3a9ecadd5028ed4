package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/store"
)

func TestProfileGeneratesAndPersistsUserID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()

	first := NewStore(kv, nil).Profile(ctx)
	if !isValidAnonID(first.UserID) {
		t.Fatalf("expected anonymous id, got %q", first.UserID)
	}
	if first.DisplayName() != domain.GuestUsername {
		t.Fatalf("display name = %q, want guest", first.DisplayName())
	}

	second := NewStore(kv, nil).Profile(ctx)
	if second.UserID != first.UserID {
		t.Fatalf("user id not persisted: %q vs %q", first.UserID, second.UserID)
	}
}

func TestProfileRecoversFromMalformedData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	_ = kv.Set(ctx, store.KeyProfile, "{broken")

	p := NewStore(kv, nil).Profile(ctx)
	if !isValidAnonID(p.UserID) {
		t.Fatalf("expected fresh anonymous id, got %q", p.UserID)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := store.NewMemory()
	s := NewStore(kv, nil)
	id := s.Profile(ctx).UserID

	p, err := s.Save(ctx, "  Asha ", "+91 98765-43210")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if p.Username != "Asha" || p.UserID != id {
		t.Fatalf("unexpected profile %+v", p)
	}

	reloaded := NewStore(kv, nil).Profile(ctx)
	if reloaded != p {
		t.Fatalf("reloaded profile %+v, want %+v", reloaded, p)
	}

	if _, err := s.Save(ctx, "Asha", "call me"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestApplyDefaultsKeepsSavedValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(store.NewMemory(), nil)
	if _, err := s.Save(ctx, "Asha", ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	p := s.ApplyDefaults(ctx, "FromEnv", "9999999999")
	if p.Username != "Asha" || p.Phone != "9999999999" {
		t.Fatalf("unexpected profile %+v", p)
	}
}
