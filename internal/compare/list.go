// Package compare keeps the bounded list of dashboard snapshots pinned for
// side-by-side comparison and pushes every change to subscribers.
package compare

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fluxmare/internal/domain"
	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
)

const topic = "comparisons"

// List is the comparison list stored under storage.KeyComparisons.
type List struct {
	store   storage.KeyValueStore
	broker  *Broker[[]domain.ComparisonSnapshot]
	logger  observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a List.
type Option func(*List)

func WithClock(now func() time.Time) Option {
	return func(l *List) { l.now = now }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *List) { l.metrics = m }
}

func NewList(store storage.KeyValueStore, logger observability.Logger, opts ...Option) *List {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	l := &List{
		store:  store,
		broker: NewBroker[[]domain.ComparisonSnapshot](),
		logger: logger.WithComponent("compare"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Snapshots returns the current list, oldest first. A malformed blob reads as empty.
func (l *List) Snapshots(ctx context.Context) ([]domain.ComparisonSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

// Add pins a snapshot of d, evicting the oldest entries beyond domain.MaxComparisons.
func (l *List) Add(ctx context.Context, d domain.DashboardResult) ([]domain.ComparisonSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list, err := l.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	list = append(list, domain.SnapshotOf(d, l.now()))
	if over := len(list) - domain.MaxComparisons; over > 0 {
		list = list[over:]
	}
	return list, l.saveLocked(ctx, list)
}

// Remove deletes the snapshot at index.
func (l *List) Remove(ctx context.Context, index int) ([]domain.ComparisonSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list, err := l.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("comparison %d: %w", index, storage.ErrNotFound)
	}
	list = append(list[:index:index], list[index+1:]...)
	return list, l.saveLocked(ctx, list)
}

// Clear empties the list and removes the persisted key.
func (l *List) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(ctx, storage.KeyComparisons); err != nil {
		return err
	}
	l.publish([]domain.ComparisonSnapshot{})
	return nil
}

// Subscribe returns a channel that receives the full list after every write,
// primed with the current list, and a cancel func that closes it.
func (l *List) Subscribe(ctx context.Context) (<-chan []domain.ComparisonSnapshot, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ch <-chan []domain.ComparisonSnapshot
	if cur, err := l.loadLocked(ctx); err == nil {
		ch = l.broker.SubscribeWith(topic, cur)
	} else {
		l.logger.WarnContext(ctx, "comparison list unavailable for new subscriber", "error", err)
		ch = l.broker.Subscribe(topic)
	}
	l.metrics.StreamSubscribed(1)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.broker.Unsubscribe(topic, ch)
			l.metrics.StreamSubscribed(-1)
		})
	}
}

func (l *List) loadLocked(ctx context.Context) ([]domain.ComparisonSnapshot, error) {
	var list []domain.ComparisonSnapshot
	err := storage.GetJSON(ctx, l.store, storage.KeyComparisons, &list)
	switch {
	case err == nil:
		if list == nil {
			list = []domain.ComparisonSnapshot{}
		}
		return list, nil
	case errors.Is(err, storage.ErrNotFound):
		return []domain.ComparisonSnapshot{}, nil
	case errors.Is(err, storage.ErrDecode):
		l.logger.WarnContext(ctx, "comparison list unreadable, treating as empty", "error", err)
		return []domain.ComparisonSnapshot{}, nil
	default:
		return nil, err
	}
}

func (l *List) saveLocked(ctx context.Context, list []domain.ComparisonSnapshot) error {
	if err := storage.SetJSON(ctx, l.store, storage.KeyComparisons, list); err != nil {
		return err
	}
	l.publish(list)
	return nil
}

func (l *List) publish(list []domain.ComparisonSnapshot) {
	out := make([]domain.ComparisonSnapshot, len(list))
	copy(out, list)
	l.broker.Publish(topic, out)
	l.metrics.RecordComparisonUpdate()
}
