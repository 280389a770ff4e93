package keystore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return s
}

func TestAPIKey_UnsetIsEmpty(t *testing.T) {
	s := newTestStore(t)

	key, err := s.APIKey(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestAPIKey_SetThenOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetAPIKey(ctx, "sk-first"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetAPIKey(ctx, "sk-second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	key, err := s.APIKey(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "sk-second" {
		t.Fatalf("expected sk-second, got %q", key)
	}
}

func TestPasscode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	has, err := s.HasPasscode(ctx)
	if err != nil || has {
		t.Fatalf("expected no passcode, has=%v err=%v", has, err)
	}

	if err := s.SetPasscode(ctx, "hunter2"); err != nil {
		t.Fatalf("set passcode: %v", err)
	}

	has, err = s.HasPasscode(ctx)
	if err != nil || !has {
		t.Fatalf("expected passcode present, has=%v err=%v", has, err)
	}

	okPass, err := s.CheckPasscode(ctx, "hunter2")
	if err != nil || !okPass {
		t.Fatalf("expected passcode to match, ok=%v err=%v", okPass, err)
	}
	okPass, err = s.CheckPasscode(ctx, "wrong")
	if err != nil || okPass {
		t.Fatalf("expected mismatch, ok=%v err=%v", okPass, err)
	}
}
