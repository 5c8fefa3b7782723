package stream

import (
	"context"
	"sync"
)

// DefaultBuffer is the per-listener queue depth, ~3 seconds of 20ms frames.
const DefaultBuffer = 150

// Broadcaster fans out values from one producer to N listeners. It carries
// PCM frames for audio listeners and state snapshots for UI observers.
type Broadcaster[T any] struct {
	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
	buffer    int
	closed    bool
}

// Listener receives values from the broadcaster.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
	once sync.Once
}

// Done is closed once the listener is unsubscribed or the broadcaster closes.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

func (l *Listener[T]) stop() {
	l.once.Do(func() { close(l.done) })
}

// NewBroadcaster creates a broadcaster whose listeners queue up to buffer
// values. A non-positive buffer selects DefaultBuffer.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		listeners: make(map[*Listener[T]]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a new listener. Subscribing to a closed broadcaster
// returns a listener that is already done.
func (b *Broadcaster[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.stop()
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call more
// than once.
func (b *Broadcaster[T]) Unsubscribe(l *Listener[T]) {
	if l == nil {
		return
	}
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster[T]) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers v to every listener without blocking. A listener whose
// queue is full misses v.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- v:
		default:
			// listener too slow, drop to keep the producer moving
		}
	}
}

// Run reads values from source and fans them out until ctx is cancelled or
// source is closed.
func (b *Broadcaster[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			b.Publish(v)
		}
	}
}

// Close stops every listener. Later Subscribe calls get done listeners and
// Publish becomes a no-op.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		l.stop()
	}
}
