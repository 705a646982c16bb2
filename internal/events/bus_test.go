package events_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PhotoFlow/internal/events"
	"github.com/dharsanguruparan/PhotoFlow/internal/model"
)

func newBus(buffer int) *events.Bus {
	return events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)), buffer)
}

func created(id string) model.Event {
	return model.Event{Type: model.EventItemCreated, ID: id, Status: model.StatusUploaded}
}

func TestSubscriberReceivesInPublishOrder(t *testing.T) {
	t.Parallel()
	bus := newBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx)
	bus.Publish(created("a"))
	bus.Publish(created("b"))

	assert.Equal(t, "a", (<-sub).ID)
	assert.Equal(t, "b", (<-sub).ID)
}

func TestLateJoinerMissesEarlierEvents(t *testing.T) {
	t.Parallel()
	bus := newBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := bus.Subscribe(ctx)
	bus.Publish(created("a"))

	// A subscriber joining after the first publish never sees it: no replay.
	second := bus.Subscribe(ctx)
	bus.Publish(created("b"))

	assert.Equal(t, "a", (<-first).ID)
	assert.Equal(t, "b", (<-first).ID)
	assert.Equal(t, "b", (<-second).ID)
	select {
	case ev := <-second:
		t.Fatalf("unexpected replayed event: %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	t.Parallel()
	bus := newBus(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := bus.Subscribe(ctx)
	// Publish more than the buffer can hold without anyone draining; the
	// publisher must not block and the oldest pending event goes first.
	bus.Publish(created("a"))
	bus.Publish(created("b"))
	bus.Publish(created("c"))

	assert.Equal(t, "b", (<-sub).ID)
	assert.Equal(t, "c", (<-sub).ID)
}

func TestPublishWithDeadSubscriberDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	bus := newBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// dead never reads; its buffer fills and overflows silently.
	_ = bus.Subscribe(ctx)
	live := bus.Subscribe(ctx)

	for i := 0; i < 10; i++ {
		bus.Publish(created("x"))
		assert.Equal(t, "x", (<-live).ID)
	}
}

func TestCancelReleasesSubscription(t *testing.T) {
	t.Parallel()
	bus := newBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	sub := bus.Subscribe(ctx)
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	// Removal runs in a goroutine watching ctx.Done, so poll briefly.
	require.Eventually(t, func() bool {
		return bus.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	// The channel is closed once the subscription is gone.
	_, open := <-sub
	assert.False(t, open)

	// Publishing afterwards is a no-op rather than a panic.
	bus.Publish(created("late"))
}
