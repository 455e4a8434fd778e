package compare

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker[int]()
	a := b.Subscribe("t")
	c := b.Subscribe("t")
	other := b.Subscribe("other")

	b.Publish("t", 7)
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-c)
	select {
	case v := <-other:
		t.Fatalf("unexpected delivery on other topic: %d", v)
	default:
	}
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe("t")
	for i := 0; i < 100; i++ {
		b.Publish("t", i)
	}
	assert.Equal(t, 99, <-ch)
}

func TestBroker_SubscribeWithPrimesOnlyNewChannel(t *testing.T) {
	b := NewBroker[int]()
	existing := b.Subscribe("t")
	fresh := b.SubscribeWith("t", 5)

	assert.Equal(t, 5, <-fresh)
	select {
	case v := <-existing:
		t.Fatalf("existing subscriber got the initial value %d", v)
	default:
	}

	b.Publish("t", 6)
	assert.Equal(t, 6, <-existing)
	assert.Equal(t, 6, <-fresh)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker[string]()
	ch := b.Subscribe("t")
	assert.Equal(t, 1, b.Subscribers("t"))
	b.Unsubscribe("t", ch)
	assert.Equal(t, 0, b.Subscribers("t"))
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish("t", "after")
}

func TestBroker_Concurrent(t *testing.T) {
	b := NewBroker[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := b.Subscribe("t")
			b.Unsubscribe("t", ch)
		}()
		go func(i int) {
			defer wg.Done()
			b.Publish("t", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers("t"))
}
