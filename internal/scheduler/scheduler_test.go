package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PhotoFlow/internal/model"
	"github.com/dharsanguruparan/PhotoFlow/internal/store"
)

// captor records published events so tests can assert on exactly what the
// scheduler emitted. Ticks run synchronously in tests, so no locking needed.
type captor struct {
	events []model.Event
}

func (c *captor) Publish(ev model.Event) {
	c.events = append(c.events, ev)
}

// env bundles a real snapshot store with a scheduler whose clock and success
// roll are pinned by the test.
type env struct {
	store  *store.PhotoStore
	bus    *captor
	sched  *Scheduler
	now    time.Time
	chance float64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewPhotoStore(t.TempDir())
	require.NoError(t, err)
	e := &env{
		store: st,
		bus:   &captor{},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		// 0.0 < any sensible success rate, so completions succeed unless a
		// test raises the roll.
		chance: 0.0,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.sched = New(log, st, e.bus, Config{
		Now:    func() time.Time { return e.now },
		Chance: func() float64 { return e.chance },
	})
	return e
}

// upload mimics the ingestion path: create in status uploaded plus the
// creation log entry.
func (e *env) upload(t *testing.T, id string) {
	t.Helper()
	_, err := e.store.Create(store.CreateInput{ID: id, Filename: id + ".png", OriginalName: id + ".png"})
	require.NoError(t, err)
	_, err = e.store.AppendLog(id, model.LogEntry{Timestamp: e.now, Message: "Photo uploaded"})
	require.NoError(t, err)
}

func (e *env) get(t *testing.T, id string) *model.Photo {
	t.Helper()
	p, err := e.store.Get(id)
	require.NoError(t, err)
	return p
}

func (e *env) processingCount(t *testing.T) int {
	t.Helper()
	photos, err := e.store.List()
	require.NoError(t, err)
	n := 0
	for _, p := range photos {
		if p.Status == model.StatusProcessing {
			n++
		}
	}
	return n
}

func TestTickAdmitsNextUploaded(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")

	require.NoError(t, e.sched.Tick())

	got := e.get(t, "x")
	assert.Equal(t, model.StatusProcessing, got.Status)
	require.Len(t, got.Log, 2)
	assert.Equal(t, "Moved to processing", got.Log[1].Message)

	require.Len(t, e.bus.events, 1)
	assert.Equal(t, model.EventItemUpdated, e.bus.events[0].Type)
	assert.Equal(t, model.StatusProcessing, e.bus.events[0].Status)

	startedAt, tracked := e.sched.state["x"]
	require.True(t, tracked)
	assert.Equal(t, e.now, startedAt)
}

func TestTickAdmitsOnlyEarliestOfMany(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")
	e.upload(t, "y")

	require.NoError(t, e.sched.Tick())

	assert.Equal(t, model.StatusProcessing, e.get(t, "x").Status)
	assert.Equal(t, model.StatusUploaded, e.get(t, "y").Status)
	assert.Equal(t, 1, e.processingCount(t))
}

func TestTickWithinWindowIsNoop(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")
	require.NoError(t, e.sched.Tick())

	// Clock has not advanced past the duration threshold: the completion
	// check must neither mutate the store nor publish anything.
	e.now = e.now.Add(time.Second)
	require.NoError(t, e.sched.Tick())

	got := e.get(t, "x")
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.Len(t, got.Log, 2)
	assert.Len(t, e.bus.events, 1)
}

func TestTickCompletesAfterDuration(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")
	require.NoError(t, e.sched.Tick())

	e.now = e.now.Add(DefaultProcessingDuration)
	require.NoError(t, e.sched.Tick())

	got := e.get(t, "x")
	assert.Equal(t, model.StatusProcessed, got.Status)
	require.Len(t, got.Log, 3)
	assert.Equal(t, "Processing succeeded", got.Log[2].Message)

	require.Len(t, e.bus.events, 2)
	assert.Equal(t, model.StatusProcessed, e.bus.events[1].Status)

	_, tracked := e.sched.state["x"]
	assert.False(t, tracked)
}

func TestTickCompletesWithFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")
	require.NoError(t, e.sched.Tick())

	// Roll above the success rate: the outcome is failed, terminal, silent.
	e.chance = 0.99
	e.now = e.now.Add(DefaultProcessingDuration)
	require.NoError(t, e.sched.Tick())

	got := e.get(t, "x")
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "Processing failed", got.Log[2].Message)

	// No retry: further ticks leave the failed photo alone.
	require.NoError(t, e.sched.Tick())
	assert.Equal(t, model.StatusFailed, e.get(t, "x").Status)
	assert.Len(t, e.bus.events, 2)
}

func TestOrphanedProcessingCompletesImmediately(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	// A photo left in processing by a previous run: present in the store but
	// absent from the tracking map.
	_, err := e.store.Create(store.CreateInput{ID: "orphan", Status: model.StatusProcessing})
	require.NoError(t, err)

	require.NoError(t, e.sched.Tick())

	got := e.get(t, "orphan")
	assert.Equal(t, model.StatusProcessed, got.Status)
	require.Len(t, e.bus.events, 1)
	assert.Equal(t, model.EventItemUpdated, e.bus.events[0].Type)
}

func TestTickNeverCompletesAndAdmitsTogether(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")
	e.upload(t, "y")

	require.NoError(t, e.sched.Tick()) // admits x
	e.now = e.now.Add(DefaultProcessingDuration)
	require.NoError(t, e.sched.Tick()) // completes x, must not touch y

	assert.Equal(t, model.StatusProcessed, e.get(t, "x").Status)
	assert.Equal(t, model.StatusUploaded, e.get(t, "y").Status)
	assert.Equal(t, 0, e.processingCount(t))

	require.NoError(t, e.sched.Tick()) // now y is admitted
	assert.Equal(t, model.StatusProcessing, e.get(t, "y").Status)
	assert.Equal(t, 1, e.processingCount(t))
}

func TestLifecycleNeverRevisitsEarlierState(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.upload(t, "x")

	seen := []model.PhotoStatus{e.get(t, "x").Status}
	for i := 0; i < 6; i++ {
		require.NoError(t, e.sched.Tick())
		e.now = e.now.Add(DefaultProcessingDuration)
		if st := e.get(t, "x").Status; st != seen[len(seen)-1] {
			seen = append(seen, st)
		}
		// Single-slot invariant holds after every tick.
		assert.LessOrEqual(t, e.processingCount(t), 1)
	}
	assert.Equal(t, []model.PhotoStatus{
		model.StatusUploaded,
		model.StatusProcessing,
		model.StatusProcessed,
	}, seen)
}

// failingStore simulates persistence outages to prove tick isolation.
type failingStore struct {
	err error
}

func (f *failingStore) List() ([]*model.Photo, error) { return nil, f.err }
func (f *failingStore) Update(string, store.PhotoUpdate) (*model.Photo, error) {
	return nil, f.err
}
func (f *failingStore) AppendLog(string, model.LogEntry) (*model.Photo, error) {
	return nil, f.err
}

func TestTickReportsStoreErrorWithoutPanic(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := errors.New("disk on fire")
	s := New(log, &failingStore{err: boom}, &captor{}, Config{})

	err := s.Tick()
	assert.ErrorIs(t, err, boom)
}
