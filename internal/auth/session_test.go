package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testSession(id, user string, role Role, ttl time.Duration) *Session {
	return &Session{
		ID:        id,
		Identity:  Identity{Username: user, Email: user + "@example.com", Role: role},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future expiry", now.Add(time.Hour), false},
		{"past expiry", now.Add(-time.Hour), true},
		{"just expired", now.Add(-time.Second), true},
		{"not yet expired", now.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("Session.IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{"valid session", testSession("abc", "user1", RoleUser, time.Hour), true},
		{"expired session", testSession("abc", "user1", RoleUser, -time.Hour), false},
		{"missing ID", testSession("", "user1", RoleUser, time.Hour), false},
		{"missing username", testSession("abc", "", RoleUser, time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.IsValid(); got != tt.want {
				t.Errorf("Session.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemorySessionStore_Create(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := testSession("session1", "user1", RoleAdmin, time.Hour)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}

	if err := store.Create(ctx, session); err != ErrInvalidSession {
		t.Errorf("Create() duplicate should return ErrInvalidSession, got %v", err)
	}
	if err := store.Create(ctx, nil); err != ErrInvalidSession {
		t.Errorf("Create(nil) should return ErrInvalidSession, got %v", err)
	}
	if err := store.Create(ctx, testSession("", "user1", RoleUser, time.Hour)); err != ErrInvalidSession {
		t.Errorf("Create(empty ID) should return ErrInvalidSession, got %v", err)
	}
	if err := store.Create(ctx, testSession("id", "", RoleUser, time.Hour)); err != ErrInvalidSession {
		t.Errorf("Create(empty username) should return ErrInvalidSession, got %v", err)
	}
}

func TestMemorySessionStore_Get(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := testSession("session1", "user1", RoleUser, time.Hour)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, "session1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for existing session")
	}
	if got.Identity != session.Identity {
		t.Errorf("Get() Identity = %+v, want %+v", got.Identity, session.Identity)
	}

	got.Identity.Role = RoleAdmin
	again, _ := store.Get(ctx, "session1")
	if again.Role() != RoleUser {
		t.Error("Get() must return a copy")
	}

	if got, err := store.Get(ctx, "nonexistent"); err != nil || got != nil {
		t.Errorf("Get() nonexistent = %v, %v; want nil, nil", got, err)
	}
	if got, err := store.Get(ctx, ""); err != nil || got != nil {
		t.Errorf("Get() empty ID = %v, %v; want nil, nil", got, err)
	}

	if err := store.Create(ctx, testSession("expired", "user1", RoleUser, -time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Get(ctx, "expired"); err != ErrSessionExpired {
		t.Errorf("Get() expired should return ErrSessionExpired, got %v", err)
	}
}

func TestMemorySessionStore_Delete(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if err := store.Create(ctx, testSession("s1", "user1", RoleUser, time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Count() != 0 || store.CountByUser("user1") != 0 {
		t.Errorf("session still present after Delete")
	}
	if err := store.Delete(ctx, "s1"); err != ErrSessionNotFound {
		t.Errorf("Delete() twice should return ErrSessionNotFound, got %v", err)
	}
	if err := store.Delete(ctx, ""); err != ErrSessionNotFound {
		t.Errorf("Delete(\"\") should return ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionStore_DeleteByUsername(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	for i, user := range []string{"alice", "alice", "bob"} {
		if err := store.Create(ctx, testSession(fmt.Sprintf("s%d", i), user, RoleUser, time.Hour)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if got := store.CountByUser("alice"); got != 2 {
		t.Fatalf("CountByUser(alice) = %d, want 2", got)
	}

	if err := store.DeleteByUsername(ctx, "alice"); err != nil {
		t.Fatalf("DeleteByUsername() error = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
	if users := store.ActiveUsers(); len(users) != 1 || users[0] != "bob" {
		t.Errorf("ActiveUsers() = %v, want [bob]", users)
	}
	if err := store.DeleteByUsername(ctx, ""); err != nil {
		t.Errorf("DeleteByUsername(\"\") error = %v", err)
	}
}

func TestMemorySessionStore_Cleanup(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	_ = store.Create(ctx, testSession("live", "alice", RoleUser, time.Hour))
	_ = store.Create(ctx, testSession("dead1", "alice", RoleUser, -time.Minute))
	_ = store.Create(ctx, testSession("dead2", "bob", RoleUser, -time.Hour))

	n, err := store.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Cleanup() removed %d, want 2", n)
	}
	if store.Count() != 1 || store.CountByUser("bob") != 0 {
		t.Errorf("unexpected sessions left: count=%d bob=%d", store.Count(), store.CountByUser("bob"))
	}
}

func TestMemorySessionStore_Concurrency(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			_ = store.Create(ctx, testSession(id, fmt.Sprintf("user%d", i%5), RoleUser, time.Hour))
			_, _ = store.Get(ctx, id)
			if i%2 == 0 {
				_ = store.Delete(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	if store.Count() != 25 {
		t.Errorf("Count() = %d, want 25", store.Count())
	}
}

func TestNewSession(t *testing.T) {
	ident := Identity{Username: "alice", Email: "alice@example.com", Role: RoleUser}
	a := NewSession(ident, time.Hour)
	b := NewSession(ident, 0)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("session ids must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if len(a.ID) != 36 {
		t.Errorf("session id %q is not a uuid", a.ID)
	}
	if !a.IsValid() {
		t.Error("new session should be valid")
	}
	if d := b.ExpiresAt.Sub(b.CreatedAt); d != DefaultSessionDuration {
		t.Errorf("default duration = %v, want %v", d, DefaultSessionDuration)
	}
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	if SessionFromContext(ctx) != nil {
		t.Error("empty context should have no session")
	}
	if GetEffectiveRole(ctx) != RoleNone {
		t.Error("empty context should have RoleNone")
	}
	if ContextWithSession(ctx, nil) != ctx {
		t.Error("nil session should return the same context")
	}

	admin := testSession("s1", "admin", RoleAdmin, time.Hour)
	ctx = ContextWithSession(ctx, admin)
	if !IsAuthenticated(ctx) {
		t.Error("context with session should be authenticated")
	}
	if GetEffectiveRole(ctx) != RoleAdmin {
		t.Errorf("GetEffectiveRole() = %q, want admin", GetEffectiveRole(ctx))
	}
	if err := RequirePermission(ctx, ResourceAdmin, ActionRead); err != nil {
		t.Errorf("admin RequirePermission() = %v", err)
	}

	user := ContextWithSession(context.Background(), testSession("s2", "bob", RoleUser, time.Hour))
	if err := RequirePermission(user, ResourceAdmin, ActionRead); err != ErrForbidden {
		t.Errorf("user RequirePermission() = %v, want ErrForbidden", err)
	}

	expired := ContextWithSession(context.Background(), testSession("s3", "bob", RoleUser, -time.Hour))
	if IsAuthenticated(expired) {
		t.Error("expired session should not authenticate")
	}
}
