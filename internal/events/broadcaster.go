// Package events fans out values (reconciliation change-sets, status
// changes) to any number of subscribers.
package events

import (
	"sync"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Broadcaster manages subscribers and publishes values to them in order.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	buffer      int
	closed      bool
	subscribers map[chan T]struct{}
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer values.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		buffer:      buffer,
		subscribers: make(map[chan T]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		if (<-chan T)(ch) == sub {
			delete(b.subscribers, ch)
			close(ch)
			return
		}
	}
}

// Publish sends v to all subscribers. Non-blocking: drops the value for
// subscribers whose buffer is full.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			metrics.RecordBroadcastDropped()
		}
	}
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
