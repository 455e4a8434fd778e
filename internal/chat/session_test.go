package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// stepClock advances by one second on every call.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newTestManager(t *testing.T, store storage.KeyValueStore, opts ...ManagerOption) *Manager {
	t.Helper()
	clock := newStepClock()
	opts = append([]ManagerOption{WithClock(clock.Now)}, opts...)
	return NewManager(store, observability.Discard(), opts...)
}

func TestOpen_SeedsDemoUsers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemoryStore())

	demo, err := m.Open(ctx, "demo")
	require.NoError(t, err)
	convs := demo.Conversations()
	require.Len(t, convs, 5)
	assert.Equal(t, "conv-5", convs[0].ID, "most recent first")
	assert.Equal(t, "conv-5", demo.ActiveID())
	assert.True(t, convs[4].Favorite, "conv-1 is the favorite")

	u1, err := m.Open(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, u1.Conversations(), 2)

	other, err := m.Open(ctx, "someone")
	require.NoError(t, err)
	assert.Empty(t, other.Conversations())
	assert.Equal(t, "", other.ActiveID())
}

func TestOpen_EmptyUsername(t *testing.T) {
	m := newTestManager(t, storage.NewMemoryStore())
	_, err := m.Open(context.Background(), "  ")
	assert.ErrorIs(t, err, validation.ErrEmptyValue)
}

func TestOpen_CachesSessions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, storage.NewMemoryStore())
	a, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	b, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"alice"}, m.Usernames())

	m.Forget("alice")
	assert.Empty(t, m.Usernames())
	c, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestOpen_DedupKeepsFirst(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := []domain.Conversation{
		{ID: "a", Title: "first", Timestamp: now},
		{ID: "b", Title: "other", Timestamp: now.Add(time.Minute)},
		{ID: "a", Title: "duplicate", Timestamp: now.Add(time.Hour)},
	}
	require.NoError(t, storage.SetJSON(ctx, store, storage.ConversationsKey("alice"), stored))

	s, err := newTestManager(t, store).Open(ctx, "alice")
	require.NoError(t, err)
	convs := s.Conversations()
	require.Len(t, convs, 2)
	a, err := s.Conversation("a")
	require.NoError(t, err)
	assert.Equal(t, "first", a.Title)
	assert.Equal(t, "b", s.ActiveID(), "most recent remaining conversation is active")
}

func TestOpen_MalformedBlobIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.ConversationsKey("demo"), "{oops"))

	s, err := newTestManager(t, store).Open(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, s.Conversations(), "decode failure must not fall back to seed data")
}

func TestAppendUserMessage_CreatesConversation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s, err := newTestManager(t, store).Open(ctx, "alice")
	require.NoError(t, err)

	long := strings.Repeat("x", 60)
	convID, msg, err := s.AppendUserMessage(ctx, long)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(convID, "conv-"))
	assert.Equal(t, domain.MessageUser, msg.Type)

	conv, err := s.Conversation(convID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 50)+"...", conv.Title)
	assert.Len(t, conv.Messages, 1)
	assert.Equal(t, convID, s.ActiveID())

	// The next message lands in the active conversation and the title sticks.
	convID2, _, err := s.AppendUserMessage(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, convID, convID2)
	conv, _ = s.Conversation(convID)
	assert.Len(t, conv.Messages, 2)
	assert.Equal(t, strings.Repeat("x", 50)+"...", conv.Title)

	// Persisted after every mutation.
	var persisted []domain.Conversation
	require.NoError(t, storage.GetJSON(ctx, store, storage.ConversationsKey("alice"), &persisted))
	require.Len(t, persisted, 1)
	assert.Len(t, persisted[0].Messages, 2)
}

func TestAppendUserMessage_ReusesEmptyConversationWithSameTitle(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)

	empty, err := s.NewConversation(ctx)
	require.NoError(t, err)
	require.NoError(t, s.DeleteConversation(ctx, empty.ID))
	assert.Equal(t, "", s.ActiveID())

	// An empty conversation whose title matches the derived title is reused.
	fresh, err := s.NewConversation(ctx)
	require.NoError(t, err)
	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()

	convID, _, err := s.AppendUserMessage(ctx, domain.DefaultConversationTitle)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, convID)
	assert.Len(t, s.Conversations(), 1)
}

func TestAppendUserMessage_EmptyRejected(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)
	_, _, err = s.AppendUserMessage(ctx, "   ")
	assert.ErrorIs(t, err, validation.ErrEmptyValue)
	assert.Empty(t, s.Conversations())
}

func TestAppendBotMessage(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)

	since := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	convID, _, err := s.AppendUserMessage(ctx, "hello")
	require.NoError(t, err)

	dash := &domain.DashboardResult{Query: "q"}
	msg, err := s.AppendBotMessage(ctx, convID, "reply", dash, since)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageBot, msg.Type)
	require.NotNil(t, msg.ResponseTime)
	assert.Positive(t, *msg.ResponseTime)
	assert.True(t, msg.IsFuelPrediction)

	_, err = s.AppendBotMessage(ctx, "nope", "reply", nil, since)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteConversation_MovesActiveToMostRecent(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, "conv-5", s.ActiveID())

	require.NoError(t, s.DeleteConversation(ctx, "conv-5"))
	assert.Equal(t, "conv-4", s.ActiveID())

	// Deleting a non-active conversation leaves the pointer alone.
	require.NoError(t, s.DeleteConversation(ctx, "conv-1"))
	assert.Equal(t, "conv-4", s.ActiveID())

	assert.ErrorIs(t, s.DeleteConversation(ctx, "conv-1"), storage.ErrNotFound)

	for _, id := range []string{"conv-2", "conv-3", "conv-4"} {
		require.NoError(t, s.DeleteConversation(ctx, id))
	}
	assert.Equal(t, "", s.ActiveID())
}

func TestToggleFavoriteAndSetActive(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "demo")
	require.NoError(t, err)

	fav, err := s.ToggleFavorite(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, fav)
	fav, err = s.ToggleFavorite(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, fav)

	_, err = s.ToggleFavorite(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetActive("conv-2"))
	assert.Equal(t, "conv-2", s.ActiveID())
	assert.ErrorIs(t, s.SetActive("missing"), storage.ErrNotFound)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s, err := newTestManager(t, store).Open(ctx, "alice")
	require.NoError(t, err)
	_, _, err = s.AppendUserMessage(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))
	assert.Empty(t, s.Conversations())
	assert.Equal(t, "", s.ActiveID())
	_, err = store.Get(ctx, storage.ConversationsKey("alice"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListDashboards(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)

	since := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c1, _, err := s.AppendUserMessage(ctx, "first")
	require.NoError(t, err)
	_, err = s.AppendBotMessage(ctx, c1, "no dashboard", nil, since)
	require.NoError(t, err)
	_, err = s.AppendBotMessage(ctx, c1, "older", &domain.DashboardResult{Query: "older"}, since)
	require.NoError(t, err)

	c2, err := s.NewConversation(ctx)
	require.NoError(t, err)
	_, _, err = s.AppendUserMessage(ctx, "second")
	require.NoError(t, err)
	newest, err := s.AppendBotMessage(ctx, c2.ID, "newer", &domain.DashboardResult{Query: "newer"}, since)
	require.NoError(t, err)

	entries := s.ListDashboards()
	require.Len(t, entries, 2)
	assert.Equal(t, "newer", entries[0].Dashboard.Query)
	assert.Equal(t, c2.ID+"-"+newest.ID, entries[0].ID)
	assert.Equal(t, domain.DefaultConversationTitle, entries[0].ConversationTitle)
	assert.Equal(t, "older", entries[1].Dashboard.Query)
	assert.Equal(t, "first", entries[1].ConversationTitle)
}

func TestExportText(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)
	convID, _, err := s.AppendUserMessage(ctx, "hello")
	require.NoError(t, err)
	_, err = s.AppendBotMessage(ctx, convID, "hi there", nil, time.Now())
	require.NoError(t, err)

	name, text, err := s.ExportText(convID)
	require.NoError(t, err)
	assert.Equal(t, "chat_"+convID+".txt", name)
	blocks := strings.Split(text, "\n\n")
	require.Len(t, blocks, 2)
	assert.True(t, strings.HasPrefix(blocks[0], "[USER] "))
	assert.True(t, strings.HasSuffix(blocks[0], ":\nhello"))
	assert.True(t, strings.HasPrefix(blocks[1], "[BOT] "))
	assert.True(t, strings.HasSuffix(blocks[1], ":\nhi there\n"))

	_, _, err = s.ExportText("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversations_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "demo")
	require.NoError(t, err)
	convs := s.Conversations()
	convs[0].Messages[0].Content = "mutated"
	again := s.Conversations()
	assert.NotEqual(t, "mutated", again[0].Messages[0].Content)
}

func TestPersistedShape(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s, err := newTestManager(t, store).Open(ctx, "alice")
	require.NoError(t, err)
	convID, _, err := s.AppendUserMessage(ctx, "hello")
	require.NoError(t, err)
	_, err = s.ToggleFavorite(ctx, convID)
	require.NoError(t, err)

	raw, err := store.Get(ctx, storage.ConversationsKey("alice"))
	require.NoError(t, err)
	var generic []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &generic))
	require.Len(t, generic, 1)
	for _, k := range []string{"id", "title", "messages", "timestamp", "isFavorite"} {
		assert.Contains(t, generic[0], k)
	}
	assert.Equal(t, true, generic[0]["isFavorite"])
}

func TestSessionConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, err := newTestManager(t, storage.NewMemoryStore()).Open(ctx, "alice")
	require.NoError(t, err)
	convID, _, err := s.AppendUserMessage(ctx, "start")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.AppendUserMessage(ctx, "msg")
			_ = s.Conversations()
		}()
	}
	wg.Wait()
	conv, err := s.Conversation(convID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 26)
}

var errDiskFull = errors.New("disk full")

// failingSetStore rejects writes while failing is set.
type failingSetStore struct {
	*storage.MemoryStore
	mu      sync.Mutex
	failing bool
}

func (f *failingSetStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *failingSetStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errDiskFull
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *failingSetStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errDiskFull
	}
	return f.MemoryStore.Delete(ctx, key)
}

func TestFailedWriteLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	store := &failingSetStore{MemoryStore: storage.NewMemoryStore()}
	s, err := newTestManager(t, store).Open(ctx, "alice")
	require.NoError(t, err)

	store.setFailing(true)
	_, _, err = s.AppendUserMessage(ctx, "hello")
	require.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, s.Conversations(), "failed append must not create a conversation")
	assert.Equal(t, "", s.ActiveID())

	_, err = s.NewConversation(ctx)
	require.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, s.Conversations())
	assert.Equal(t, "", s.ActiveID())

	store.setFailing(false)
	convID, _, err := s.AppendUserMessage(ctx, "first")
	require.NoError(t, err)
	before, err := s.Conversation(convID)
	require.NoError(t, err)

	store.setFailing(true)
	_, _, err = s.AppendUserMessage(ctx, "lost")
	require.ErrorIs(t, err, errDiskFull)
	_, err = s.AppendBotMessage(ctx, convID, "lost reply", nil, time.Now())
	require.ErrorIs(t, err, errDiskFull)
	_, err = s.ToggleFavorite(ctx, convID)
	require.ErrorIs(t, err, errDiskFull)
	require.ErrorIs(t, s.DeleteConversation(ctx, convID), errDiskFull)
	require.ErrorIs(t, s.ClearAll(ctx), errDiskFull)

	after, err := s.Conversation(convID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed writes must not change the conversation")
	assert.Equal(t, convID, s.ActiveID())

	// The next successful write persists only what succeeded.
	store.setFailing(false)
	_, _, err = s.AppendUserMessage(ctx, "second")
	require.NoError(t, err)
	conv, err := s.Conversation(convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "first", conv.Messages[0].Content)
	assert.Equal(t, "second", conv.Messages[1].Content)
	assert.False(t, conv.Favorite)

	var persisted []domain.Conversation
	require.NoError(t, storage.GetJSON(ctx, store, storage.ConversationsKey("alice"), &persisted))
	require.Len(t, persisted, 1)
	assert.Len(t, persisted[0].Messages, 2)
}

// manualClock only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{cur: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	m := NewManager(store, observability.Discard(), WithClock(clock.Now), WithIdleTTL(time.Minute), WithoutSeed())

	alice, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	_, _, err = alice.AppendUserMessage(ctx, "hello")
	require.NoError(t, err)
	_, err = m.Open(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, m.Usernames())

	clock.Advance(45 * time.Second)
	_, err = m.Open(ctx, "bob")
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, m.Sweep(), "only alice has been idle past the TTL")
	assert.Equal(t, []string{"bob"}, m.Usernames())

	// Opening again reloads from the store.
	again, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, alice, again)
	require.Len(t, again.Conversations(), 1)

	clock.Advance(2 * time.Minute)
	_, err = m.Open(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, m.Usernames(), "Open sweeps once the TTL has passed")
}

func TestManagerWithoutIdleTTLKeepsSessions(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{cur: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	m := NewManager(storage.NewMemoryStore(), observability.Discard(), WithClock(clock.Now), WithIdleTTL(0))
	_, err := m.Open(ctx, "alice")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, []string{"alice"}, m.Usernames())
}
