// Package chat holds per-user conversation state, the saved-input history and
// the delayed bot responder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// DefaultIdleTTL is how long a cached session survives without an Open.
const DefaultIdleTTL = 30 * time.Minute

// Manager hands out one Session per username. Sessions not opened within the
// idle TTL are dropped from the cache; their state stays in the store.
type Manager struct {
	store   storage.KeyValueStore
	logger  observability.Logger
	now     func() time.Time
	seed    bool
	idleTTL time.Duration

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIdleTTL sets the cache eviction age. Zero or less keeps sessions until Forget.
func WithIdleTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTTL = d }
}

// WithoutSeed disables the demo conversation set.
func WithoutSeed() ManagerOption {
	return func(m *Manager) { m.seed = false }
}

func NewManager(store storage.KeyValueStore, logger observability.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	m := &Manager{
		store:    store,
		logger:   logger.WithComponent("chat"),
		now:      time.Now,
		seed:     true,
		idleTTL:  DefaultIdleTTL,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open loads the conversations persisted for username. A malformed blob is
// logged and treated as absent. When nothing is persisted the demo set is
// used for known demo users.
func (m *Manager) Open(ctx context.Context, username string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("username: %w", validation.ErrEmptyValue)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.idleTTL > 0 && now.Sub(m.lastSweep) >= m.idleTTL {
		m.sweepLocked(now)
	}
	if s, ok := m.sessions[username]; ok {
		s.lastOpened = now
		return s, nil
	}

	s := &Session{
		username:   username,
		store:      m.store,
		logger:     m.logger.With("user", username),
		now:        m.now,
		lastOpened: now,
	}

	var stored []domain.Conversation
	err := storage.GetJSON(ctx, m.store, storage.ConversationsKey(username), &stored)
	switch {
	case err == nil:
		s.conversations = dedupByID(stored)
	case errors.Is(err, storage.ErrNotFound):
		if m.seed {
			s.conversations = SeedConversations(username, now)
		}
	case errors.Is(err, storage.ErrDecode):
		m.logger.WarnContext(ctx, "conversation blob unreadable, starting empty", "user", username, "error", err)
	default:
		return nil, err
	}
	if s.conversations == nil {
		s.conversations = []domain.Conversation{}
	}
	s.active = mostRecentID(s.conversations)

	m.sessions[username] = s
	return s, nil
}

// Forget drops the cached session for username so the next Open reloads it
// from the store.
func (m *Manager) Forget(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, username)
}

// Sweep drops every cached session idle longer than the TTL and returns how
// many were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idleTTL <= 0 {
		return 0
	}
	return m.sweepLocked(m.now())
}

func (m *Manager) sweepLocked(now time.Time) int {
	m.lastSweep = now
	n := 0
	for u, s := range m.sessions {
		if now.Sub(s.lastOpened) > m.idleTTL {
			delete(m.sessions, u)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("evicted idle conversation sessions", "count", n)
	}
	return n
}

// Usernames lists the users with an open session.
func (m *Manager) Usernames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for u := range m.sessions {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func dedupByID(in []domain.Conversation) []domain.Conversation {
	seen := make(map[string]bool, len(in))
	out := make([]domain.Conversation, 0, len(in))
	for _, c := range in {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []domain.Message{}
		}
		out = append(out, c)
	}
	return out
}

func mostRecentID(convs []domain.Conversation) string {
	id := ""
	var latest time.Time
	for _, c := range convs {
		if id == "" || c.Timestamp.After(latest) {
			id, latest = c.ID, c.Timestamp
		}
	}
	return id
}

// Session is the conversation list of one user plus the active pointer.
type Session struct {
	username string
	store    storage.KeyValueStore
	logger   observability.Logger
	now      func() time.Time

	// guarded by Manager.mu
	lastOpened time.Time

	mu            sync.RWMutex
	conversations []domain.Conversation
	active        string
}

func (s *Session) Username() string { return s.username }

// ActiveID returns the active conversation id, or "" when none is selected.
func (s *Session) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Conversations returns copies of every conversation, most recent activity first.
func (s *Session) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Conversation returns a copy of the conversation with id.
func (s *Session) Conversation(id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Conversation{}, fmt.Errorf("conversation %q: %w", id, storage.ErrNotFound)
	}
	return s.conversations[i].Clone(), nil
}

// AppendUserMessage adds a user message to the active conversation. Without
// an active conversation it reuses an empty conversation carrying the same
// derived title, or creates a new one at the head of the list.
func (s *Session) AppendUserMessage(ctx context.Context, content string) (string, domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return "", domain.Message{}, fmt.Errorf("message content: %w", validation.ErrEmptyValue)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := domain.Message{
		ID:        uuid.NewString(),
		Type:      domain.MessageUser,
		Content:   content,
		Timestamp: now,
	}

	next := s.copyLocked()
	active := s.active
	i := s.indexLocked(active)
	if i < 0 {
		title := domain.TitleFromContent(content)
		for j, c := range next {
			if c.Title == title && len(c.Messages) == 0 {
				i = j
				break
			}
		}
		if i < 0 {
			conv := domain.Conversation{
				ID:        s.newConversationIDLocked(now),
				Title:     title,
				Messages:  []domain.Message{},
				Timestamp: now,
			}
			next = append([]domain.Conversation{conv}, next...)
			i = 0
		}
		active = next[i].ID
	}

	next[i] = next[i].Clone()
	next[i].Messages = append(next[i].Messages, msg)
	next[i].Timestamp = now
	if err := s.commitLocked(ctx, next, active); err != nil {
		return "", domain.Message{}, err
	}
	return next[i].ID, msg, nil
}

// AppendBotMessage adds a bot reply to convID. responseTime is measured from since.
func (s *Session) AppendBotMessage(ctx context.Context, convID, content string, dashboard *domain.DashboardResult, since time.Time) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(convID)
	if i < 0 {
		return domain.Message{}, fmt.Errorf("conversation %q: %w", convID, storage.ErrNotFound)
	}
	now := s.now()
	elapsed := now.Sub(since).Milliseconds()
	msg := domain.Message{
		ID:               uuid.NewString(),
		Type:             domain.MessageBot,
		Content:          content,
		Timestamp:        now,
		ResponseTime:     &elapsed,
		IsFuelPrediction: dashboard != nil,
		Dashboard:        dashboard,
	}
	next := s.copyLocked()
	next[i] = next[i].Clone()
	next[i].Messages = append(next[i].Messages, msg)
	if err := s.commitLocked(ctx, next, s.active); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// NewConversation creates an empty conversation and makes it active.
func (s *Session) NewConversation(ctx context.Context) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	conv := domain.Conversation{
		ID:        s.newConversationIDLocked(now),
		Title:     domain.DefaultConversationTitle,
		Messages:  []domain.Message{},
		Timestamp: now,
	}
	next := append([]domain.Conversation{conv}, s.copyLocked()...)
	if err := s.commitLocked(ctx, next, conv.ID); err != nil {
		return domain.Conversation{}, err
	}
	return conv.Clone(), nil
}

// SetActive selects id as the active conversation.
func (s *Session) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return fmt.Errorf("conversation %q: %w", id, storage.ErrNotFound)
	}
	s.active = id
	return nil
}

// DeleteConversation removes id. Deleting the active conversation moves the
// pointer to the most recent remaining one.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("conversation %q: %w", id, storage.ErrNotFound)
	}
	next := make([]domain.Conversation, 0, len(s.conversations)-1)
	next = append(next, s.conversations[:i]...)
	next = append(next, s.conversations[i+1:]...)
	active := s.active
	if active == id {
		active = mostRecentID(next)
	}
	return s.commitLocked(ctx, next, active)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Session) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false, fmt.Errorf("conversation %q: %w", id, storage.ErrNotFound)
	}
	next := s.copyLocked()
	next[i].Favorite = !next[i].Favorite
	if err := s.commitLocked(ctx, next, s.active); err != nil {
		return s.conversations[i].Favorite, err
	}
	return next[i].Favorite, nil
}

// ClearAll drops every conversation and removes the persisted blob.
func (s *Session) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, storage.ConversationsKey(s.username)); err != nil {
		s.logger.ErrorContext(ctx, "clear conversations", "error", err)
		return err
	}
	s.conversations = []domain.Conversation{}
	s.active = ""
	return nil
}

// ListDashboards projects every bot message carrying a dashboard, newest first.
func (s *Session) ListDashboards() []domain.DashboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DashboardEntry, 0)
	for _, c := range s.conversations {
		for _, m := range c.Messages {
			if m.Type != domain.MessageBot || m.Dashboard == nil {
				continue
			}
			out = append(out, domain.DashboardEntry{
				ID:                c.ID + "-" + m.ID,
				ConversationID:    c.ID,
				ConversationTitle: c.Title,
				Timestamp:         m.Timestamp,
				Dashboard:         *m.Dashboard,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// ExportText renders a conversation as plain text and names the download file.
func (s *Session) ExportText(id string) (filename, text string, err error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return "", "", err
	}
	blocks := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		blocks = append(blocks, fmt.Sprintf("[%s] %s:\n%s\n",
			strings.ToUpper(string(m.Type)), m.Timestamp.Format("2006-01-02 15:04:05"), m.Content))
	}
	return "chat_" + conv.ID + ".txt", strings.Join(blocks, "\n"), nil
}

func (s *Session) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) newConversationIDLocked(now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := "conv-" + strconv.FormatInt(ms, 10)
		if s.indexLocked(id) < 0 {
			return id
		}
		ms++
	}
}

// copyLocked returns a new slice holding the current conversations. Callers
// clone any element whose messages they change.
func (s *Session) copyLocked() []domain.Conversation {
	out := make([]domain.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// commitLocked persists next and only then makes it the live state, so a
// failed write leaves the session as it was.
func (s *Session) commitLocked(ctx context.Context, next []domain.Conversation, active string) error {
	if err := storage.SetJSON(ctx, s.store, storage.ConversationsKey(s.username), next); err != nil {
		s.logger.ErrorContext(ctx, "persist conversations", "error", err)
		return err
	}
	s.conversations = next
	s.active = active
	return nil
}
