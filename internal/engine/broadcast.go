package engine

import (
	"log/slog"
	"sync"
)

// Broadcaster fans a status snapshot out to registered observers. Observers
// are expected to be cheap; a panicking observer is isolated and logged so
// one bad UI callback cannot take down ingestion.
type Broadcaster struct {
	logger *slog.Logger

	mu        sync.Mutex
	next      int
	observers map[int]func(Status)
}

// NewBroadcaster creates an empty observer registry.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:    logger,
		observers: make(map[int]func(Status)),
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Broadcaster) Subscribe(fn func(Status)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the snapshot to every observer, synchronously and
// fire-and-forget per observer.
func (b *Broadcaster) Publish(st Status) {
	b.mu.Lock()
	fns := make([]func(Status), 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.notify(fn, st)
	}
}

func (b *Broadcaster) notify(fn func(Status), st Status) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("status observer panicked", "panic", r)
		}
	}()
	fn(st)
}

// Len returns the number of registered observers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
