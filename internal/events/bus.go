// Package events implements the in-process publish/subscribe channel that
// distributes state-change notifications to an open set of subscribers.
// Goroutines + channels (core Go concurrency primitives) power the fan-out.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/PhotoFlow/internal/model"
)

// DefaultBuffer is the per-subscriber queue depth used when callers pass a
// non-positive value to NewBus.
const DefaultBuffer = 16

// Bus delivers every published event to each live subscriber. Delivery is
// fire-and-forget per subscriber: each one owns a bounded buffered channel,
// and when the buffer is full the oldest pending event is dropped so Publish
// never blocks, no matter how slow or dead a consumer is. Events are FIFO per
// subscriber relative to publish order; there is no replay for late joiners.
type Bus struct {
	log    *slog.Logger
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]chan model.Event
}

// NewBus constructs a Bus with the given per-subscriber buffer depth.
func NewBus(log *slog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		log:    log,
		buffer: buffer,
		subs:   make(map[int]chan model.Event),
	}
}

// Subscribe registers a new observer and returns its receive channel. The
// subscription lives until ctx is cancelled (the transport layer ties ctx to
// the client connection), at which point the channel is closed and every
// resource released — well-behaved clients never need an explicit unsubscribe.
func (b *Bus) Subscribe(ctx context.Context) <-chan model.Event {
	// make(chan T, N) creates a buffered channel that can hold N messages
	// without blocking producers.
	ch := make(chan model.Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			// Closing under the same mutex Publish holds means no send can
			// race the close.
			close(ch)
		}
	}()

	return ch
}

// Publish pushes the event to every current subscriber without waiting for any
// of them to consume it. One stalled or disconnected subscriber can neither
// stall the publisher nor affect its peers.
func (b *Bus) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Buffer full: drop the oldest pending event to make room, then
			// try once more. Subscribers only ever receive, so after the drain
			// there is room unless the consumer beat us to it — either way
			// neither select can block.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
			b.log.Debug("subscriber lagging, dropped oldest event",
				slog.Int("subscriber", id),
				slog.String("type", string(ev.Type)),
			)
		}
	}
}

// Subscribers reports how many observers are currently registered.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
