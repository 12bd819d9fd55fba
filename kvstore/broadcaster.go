package kvstore

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster fans changes out to in-process subscribers. Backends embed it
// and feed it from their own change source.
type Broadcaster struct {
	mu     sync.RWMutex
	origin string
	next   int
	subs   map[int]func(Change)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		origin: uuid.NewString(),
		subs:   make(map[int]func(Change)),
	}
}

// Origin identifies this process-local notifier in published changes.
func (b *Broadcaster) Origin() string {
	return b.origin
}

func (b *Broadcaster) Subscribe(fn func(Change)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}, nil
}

// Emit delivers change to every subscriber synchronously.
func (b *Broadcaster) Emit(change Change) {
	b.mu.RLock()
	fns := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
