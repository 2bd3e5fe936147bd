package eventbus

import (
	"sync"
	"sync/atomic"
)

// Bus is an in-memory fanout of typed events.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a full subscriber drops events.
//
// The zero value is not usable; call New.
type Bus[E any] struct {
	mu      sync.RWMutex
	subs    map[uint64]chan E
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func New[E any]() *Bus[E] {
	return &Bus[E]{subs: map[uint64]chan E{}}
}

// Publish offers e to every subscriber. A nil bus discards e.
func (b *Bus[E]) Publish(e E) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a buffered channel. unsubscribe closes it.
func (b *Bus[E]) Subscribe(buffer int) (ch <-chan E, unsubscribe func()) {
	if buffer <= 0 {
		buffer = 8
	}
	c := make(chan E, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = c
	b.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under
			// the write lock cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(c)
			b.mu.Unlock()
		})
	}
}

// Dropped counts events discarded because a subscriber was full.
func (b *Bus[E]) Dropped() uint64 { return b.dropped.Load() }
