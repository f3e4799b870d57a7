// Package bus decouples event producers (integration supervisors) from
// consumers so a stalled consumer can never block a supervisor's I/O loop.
package bus

import (
	"sync"

	"github.com/kittynXR/mewbot/internal/domain"
	"github.com/kittynXR/mewbot/pkg/log"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 256

// Bus fans events out to named subscribers over bounded buffers. Publish
// never blocks: when a subscriber's buffer is full its oldest unconsumed
// event is dropped and a BusOverflow diagnostic is delivered best-effort.
// Events from one producer goroutine reach every subscriber in emission
// order; no cross-producer ordering is implied.
type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     map[string]*subscriber
	closed   bool
}

type subscriber struct {
	name    string
	ch      chan domain.Event
	dropped uint64
}

// New creates a Bus with the given per-subscriber capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[string]*subscriber),
	}
}

// Subscribe registers a named consumer and returns its receive channel.
// The channel is closed by Close.
func (b *Bus) Subscribe(name string) <-chan domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		name: name,
		ch:   make(chan domain.Event, b.capacity),
	}
	b.subs[name] = sub
	return sub.ch
}

// Publish delivers ev to every subscriber without blocking the caller.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		b.deliver(sub, ev)
	}
}

// deliver is called with b.mu held; publishes are therefore serialized and
// dropping one slot is always enough to make room.
func (b *Bus) deliver(sub *subscriber, ev domain.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest pending event for this subscriber.
	select {
	case <-sub.ch:
		sub.dropped++
	default:
	}

	select {
	case sub.ch <- ev:
	default:
	}

	log.L().Warn().
		Str(log.FieldSubscriber, sub.name).
		Uint64(log.FieldDropped, sub.dropped).
		Msg("event bus overflow, dropped oldest event")

	// Best-effort diagnostic; skipped when the buffer refilled already.
	select {
	case sub.ch <- domain.BusOverflow{Subscriber: sub.name, Dropped: sub.dropped}:
	default:
	}
}

// Dropped returns the cumulative drop count for a subscriber.
func (b *Bus) Dropped(name string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[name]; ok {
		return sub.dropped
	}
	return 0
}

// Close closes every subscriber channel. Subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
}
