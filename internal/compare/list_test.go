package compare

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
)

func dashboard(q string, speed float64) domain.DashboardResult {
	return domain.DashboardResult{
		Query:      q,
		Analysis:   domain.Analysis{FuelConsumption: speed * 100, Efficiency: 80},
		VesselInfo: domain.VesselInfo{SpeedCalc: speed},
	}
}

func newTestList(t *testing.T, store storage.KeyValueStore) *List {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return NewList(store, observability.Discard(), WithClock(clock))
}

func TestList_AddEvictsOldest(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())

	for i := 1; i <= 4; i++ {
		_, err := l.Add(ctx, dashboard(fmt.Sprintf("q%d", i), float64(i)))
		require.NoError(t, err)
	}
	list, err := l.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, domain.MaxComparisons)
	assert.Equal(t, "q2", list[0].Query)
	assert.Equal(t, "q4", list[2].Query)
	assert.Equal(t, 4.0, list[2].Speed)
	assert.Equal(t, 400.0, list[2].FuelConsumption)
	assert.Equal(t, 80.0, list[2].Efficiency)
}

func TestList_Remove(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())
	for _, q := range []string{"a", "b", "c"} {
		_, err := l.Add(ctx, dashboard(q, 1))
		require.NoError(t, err)
	}

	list, err := l.Remove(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Query)
	assert.Equal(t, "c", list[1].Query)

	_, err = l.Remove(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = l.Remove(ctx, -1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stored, err := l.Snapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestList_Clear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestList(t, store)
	_, err := l.Add(ctx, dashboard("a", 1))
	require.NoError(t, err)

	require.NoError(t, l.Clear(ctx))
	_, err = store.Get(ctx, storage.KeyComparisons)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	list, err := l.Snapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestList_MalformedBlobTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.KeyComparisons, "[{]"))
	l := newTestList(t, store)

	list, err := l.Snapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = l.Add(ctx, dashboard("fresh", 2))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestList_SubscribeSeesEveryWrite(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())

	ch, cancel := l.Subscribe(ctx)
	defer cancel()

	initial := <-ch
	assert.Empty(t, initial)

	_, err := l.Add(ctx, dashboard("a", 1))
	require.NoError(t, err)
	got := <-ch
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Query)

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, <-ch)
}

func TestList_NewSubscriberDoesNotRepublish(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())
	_, err := l.Add(ctx, dashboard("a", 1))
	require.NoError(t, err)

	first, cancelFirst := l.Subscribe(ctx)
	defer cancelFirst()
	require.Len(t, <-first, 1)

	second, cancelSecond := l.Subscribe(ctx)
	defer cancelSecond()
	primed := <-second
	require.Len(t, primed, 1)
	assert.Equal(t, "a", primed[0].Query)

	select {
	case extra := <-first:
		t.Fatalf("existing subscriber received a redundant frame %v", extra)
	default:
	}
}

func TestList_SlowSubscriberKeepsLatest(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())

	ch, cancel := l.Subscribe(ctx)
	defer cancel()

	for _, q := range []string{"a", "b", "c"} {
		_, err := l.Add(ctx, dashboard(q, 1))
		require.NoError(t, err)
	}
	latest := <-ch
	require.Len(t, latest, 3)
	assert.Equal(t, "c", latest[2].Query)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered value %v", extra)
	default:
	}
}

func TestList_CancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, storage.NewMemoryStore())
	ch, cancel := l.Subscribe(ctx)
	<-ch
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, l.broker.Subscribers(topic))

	// Writes after cancel must not panic.
	_, err := l.Add(ctx, dashboard("a", 1))
	require.NoError(t, err)
}
