package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session errors.
var (
	// ErrSessionNotFound indicates the session was not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidSession indicates the session is invalid.
	ErrInvalidSession = errors.New("invalid session")
)

// DefaultSessionDuration is the default session lifetime.
const DefaultSessionDuration = 24 * time.Hour

// Session maps an opaque token to an identity.
type Session struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsValid returns true if the session is valid (not expired and has required fields).
func (s *Session) IsValid() bool {
	return s.ID != "" && s.Identity.Username != "" && !s.IsExpired()
}

// Role returns the role of the session identity.
func (s *Session) Role() Role {
	return s.Identity.Role
}

// SessionStore defines the interface for session persistence.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by its ID.
	// Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by its ID.
	Delete(ctx context.Context, id string) error

	// DeleteByUsername removes all sessions for a user.
	DeleteByUsername(ctx context.Context, username string) error

	// Cleanup removes all expired sessions and returns how many went.
	Cleanup(ctx context.Context) (int, error)
}

// MemorySessionStore is an in-memory implementation of SessionStore.
// It is thread-safe and suitable for single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// userIndex maps username to session IDs
	userIndex map[string]map[string]struct{}
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[string]*Session),
		userIndex: make(map[string]map[string]struct{}),
	}
}

// Create stores a new session.
func (s *MemorySessionStore) Create(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" || session.Identity.Username == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return ErrInvalidSession
	}

	stored := *session
	s.sessions[session.ID] = &stored

	user := session.Identity.Username
	if s.userIndex[user] == nil {
		s.userIndex[user] = make(map[string]struct{})
	}
	s.userIndex[user][session.ID] = struct{}{}
	return nil
}

// Get retrieves a session by its ID.
// Returns nil, nil if not found and ErrSessionExpired if expired.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	s.mu.RLock()
	session, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	cpy := *session
	return &cpy, nil
}

// Delete removes a session by its ID.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	s.unindexLocked(session.Identity.Username, id)
	delete(s.sessions, id)
	return nil
}

// DeleteByUsername removes all sessions for a user.
func (s *MemorySessionStore) DeleteByUsername(_ context.Context, username string) error {
	if username == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.userIndex[username] {
		delete(s.sessions, id)
	}
	delete(s.userIndex, username)
	return nil
}

// Cleanup removes all expired sessions.
func (s *MemorySessionStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			s.unindexLocked(session.Identity.Username, id)
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// Count returns the total number of sessions in the store.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CountByUser returns the number of sessions for a user.
func (s *MemorySessionStore) CountByUser(username string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userIndex[username])
}

// ActiveUsers lists the usernames holding at least one session.
func (s *MemorySessionStore) ActiveUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.userIndex))
	for u := range s.userIndex {
		out = append(out, u)
	}
	return out
}

func (s *MemorySessionStore) unindexLocked(username, id string) {
	if s.userIndex[username] == nil {
		return
	}
	delete(s.userIndex[username], id)
	if len(s.userIndex[username]) == 0 {
		delete(s.userIndex, username)
	}
}

// NewSession creates a Session with a fresh uuid token.
func NewSession(ident Identity, duration time.Duration) *Session {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Identity:  ident,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}
}
