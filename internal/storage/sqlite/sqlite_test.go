//go:build sqlite

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"fluxmare/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "themeColor", "blue"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "themeColor", "green"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := s.Get(ctx, "themeColor")
	if err != nil || v != "green" {
		t.Fatalf("get = %q, %v; want green", v, err)
	}
	if err := s.Delete(ctx, "themeColor"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "themeColor"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.Get(ctx, "themeColor"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set(context.Background(), "", "x"); !errors.Is(err, storage.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStore_KeysByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"user_bob", "user_alice", "email_alice", "user%x"} {
		if err := s.Set(ctx, k, "v"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "user_")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if got := strings.Join(keys, ","); got != "user_alice,user_bob" {
		t.Fatalf("keys = %s", got)
	}
}

func TestStore_JSONHelpers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	in := map[string]int{"fontSize": 16}
	if err := storage.SetJSON(ctx, s, "prefs", in); err != nil {
		t.Fatalf("set json: %v", err)
	}
	var out map[string]int
	if err := storage.GetJSON(ctx, s, "prefs", &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out["fontSize"] != 16 {
		t.Fatalf("unexpected value %v", out)
	}
	_ = s.Set(ctx, "broken", "{not json")
	if err := storage.GetJSON(ctx, s, "broken", &out); !errors.Is(err, storage.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "mig.db")
	s1, err := New(dsn)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = s1.Close()

	s2, err := New(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, err := s2.Get(context.Background(), "k")
	if err != nil || v != "v" {
		t.Fatalf("value not persisted: %q %v", v, err)
	}
	status, err := Status(dsn)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status, "schema_version=1") {
		t.Fatalf("unexpected status %q", status)
	}
}
