// Package broadcast implements a non-blocking fan-out bus. Publishers never
// wait on subscribers: a subscriber whose buffer is full misses the event.
package broadcast

import (
	"sync"

	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
)

// Bus fans published values out to every active subscriber.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	buffer int
	closed bool
}

// New creates a bus whose subscriber channels buffer up to buffer values.
func New[T any](buffer int) *Bus[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus[T]{
		subs:   make(map[int]chan T),
		buffer: buffer,
	}
}

// Subscribe registers a new observer. The returned cancel func must be
// called when the observer goes away; it closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan T, b.buffer)
	b.subs[id] = ch
	metrics.SubscriberAdded()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
			metrics.SubscriberRemoved()
		}
	}
	return ch, cancel
}

// Publish delivers value to all subscribers, dropping it for any whose
// buffer is full.
func (b *Bus[T]) Publish(value T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- value:
		default:
			metrics.RecordDroppedBroadcast()
		}
	}
}

// Len reports the current subscriber count.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down. Subsequent publishes are no-ops and all
// subscriber channels are closed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		metrics.SubscriberRemoved()
	}
}
