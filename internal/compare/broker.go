package compare

import (
	"sync"
)

// Broker fans out values to subscribers by topic. Each subscriber channel
// holds one value; a publish to a full channel replaces the stale value so
// writers never block and readers always see the latest state.
type Broker[T any] struct {
	mu          sync.Mutex
	subscribers map[string][]chan T
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subscribers: make(map[string][]chan T)}
}

func (b *Broker[T]) Subscribe(topic string) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, 1)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// SubscribeWith subscribes with initial already buffered on the new channel.
// Other subscribers see nothing.
func (b *Broker[T]) SubscribeWith(topic string, initial T) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, 1)
	ch <- initial
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes ch from topic and closes it.
func (b *Broker[T]) Unsubscribe(topic string, ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	chans := b.subscribers[topic]
	for i, c := range chans {
		if c == ch {
			b.subscribers[topic] = append(chans[:i], chans[i+1:]...)
			close(c)
			break
		}
	}
	if len(b.subscribers[topic]) == 0 {
		delete(b.subscribers, topic)
	}
}

func (b *Broker[T]) Publish(topic string, msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- msg:
			continue
		default:
		}
		// Drop the stale value, then deliver.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (b *Broker[T]) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}
