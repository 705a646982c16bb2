// Package scheduler drives the simulated photo-processing lifecycle. A single
// timer-driven loop advances at most one photo at a time through a variable
// duration, probabilistically failing workload, mutating the shared store and
// publishing a notification for every transition.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dharsanguruparan/PhotoFlow/internal/model"
	"github.com/dharsanguruparan/PhotoFlow/internal/store"
)

const (
	// DefaultTickInterval is how often the decision logic runs.
	DefaultTickInterval = 2 * time.Second
	// DefaultProcessingDuration is how long a photo stays in processing before
	// an outcome is decided.
	DefaultProcessingDuration = 5 * time.Second
	// DefaultSuccessRate is the probability that a completed photo ends up
	// processed rather than failed. Both constants are policy, not derived
	// from any real signal; this is a simulation of an external processor.
	DefaultSuccessRate = 0.8

	logMoved     = "Moved to processing"
	logSucceeded = "Processing succeeded"
	logFailed    = "Processing failed"
)

// PhotoStore is the slice of the store the scheduler needs. Declaring the
// interface on the consumer side keeps the package testable with fakes.
type PhotoStore interface {
	List() ([]*model.Photo, error)
	Update(id string, upd store.PhotoUpdate) (*model.Photo, error)
	AppendLog(id string, entry model.LogEntry) (*model.Photo, error)
}

// Publisher is the outbound half of the event bus.
type Publisher interface {
	Publish(ev model.Event)
}

// Config carries the scheduler's policy knobs. Now and Chance exist so tests
// can pin time and the success roll; zero values select the real clock and
// math/rand.
type Config struct {
	TickInterval       time.Duration
	ProcessingDuration time.Duration
	SuccessRate        float64
	Now                func() time.Time
	Chance             func() float64
}

// Scheduler owns the ephemeral tracking of the one in-flight photo. The state
// map is scoped to the instance and never persisted: after a restart a photo
// left in processing has no entry here and is completed on the next tick.
type Scheduler struct {
	log      *slog.Logger
	store    PhotoStore
	bus      Publisher
	interval time.Duration
	duration time.Duration
	rate     float64
	now      func() time.Time
	chance   func() float64

	// state maps photo id to the instant it entered processing. By the
	// single-slot invariant it holds at most one entry.
	state map[string]time.Time
}

// New constructs an independent scheduler instance.
func New(log *slog.Logger, st PhotoStore, bus Publisher, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ProcessingDuration <= 0 {
		cfg.ProcessingDuration = DefaultProcessingDuration
	}
	if cfg.SuccessRate <= 0 {
		cfg.SuccessRate = DefaultSuccessRate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Chance == nil {
		cfg.Chance = rand.Float64
	}
	return &Scheduler{
		log:      log,
		store:    st,
		bus:      bus,
		interval: cfg.TickInterval,
		duration: cfg.ProcessingDuration,
		rate:     cfg.SuccessRate,
		now:      cfg.Now,
		chance:   cfg.Chance,
		state:    make(map[string]time.Time),
	}
}

// Run executes ticks until the context is cancelled. Ticks run inline in this
// single loop, so two can never overlap; if one overruns the interval the
// ticker simply coalesces the missed fires. A failed tick is logged and
// swallowed here so it can never take the loop down — the next tick retries
// against fresh store state.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				s.log.ErrorContext(ctx, "processing tick failed", slog.String("err", err.Error()))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick runs one pass of the decision logic: first the completion check for an
// in-flight photo, then — only when nothing is processing — admission of the
// next uploaded one. A tick makes at most one state change; it never both
// completes and admits.
func (s *Scheduler) Tick() error {
	photos, err := s.store.List()
	if err != nil {
		return err
	}

	if current := firstWithStatus(photos, model.StatusProcessing); current != nil {
		return s.maybeComplete(current)
	}

	next := firstWithStatus(photos, model.StatusUploaded)
	if next == nil {
		return nil
	}
	return s.admit(next)
}

// maybeComplete finishes the in-flight photo once it has been processing for
// the configured duration. A photo with no tracking entry — the process
// restarted while it was in flight — is completed immediately, outcome decided
// on the spot. That mirrors the reference behavior exactly; it is an accepted
// quirk, not a recovery mechanism.
func (s *Scheduler) maybeComplete(current *model.Photo) error {
	startedAt, tracked := s.state[current.ID]
	if tracked && s.now().Sub(startedAt) < s.duration {
		// Still within the simulated duration window; nothing to do.
		return nil
	}

	status := model.StatusFailed
	message := logFailed
	if s.chance() < s.rate {
		status = model.StatusProcessed
		message = logSucceeded
	}

	updated, err := s.store.Update(current.ID, store.PhotoUpdate{Status: &status})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The record vanished between List and Update; drop tracking and
			// treat it as nothing to do.
			delete(s.state, current.ID)
			return nil
		}
		return err
	}
	if _, err := s.store.AppendLog(current.ID, model.LogEntry{Timestamp: s.now(), Message: message}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	s.bus.Publish(model.Updated(updated))
	delete(s.state, current.ID)

	s.log.Info("photo completed",
		slog.String("id", current.ID),
		slog.String("status", string(status)),
	)
	return nil
}

// admit moves the earliest uploaded photo (store list order, no further
// fairness) into processing and starts tracking its start time.
func (s *Scheduler) admit(next *model.Photo) error {
	status := model.StatusProcessing
	updated, err := s.store.Update(next.ID, store.PhotoUpdate{Status: &status})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	s.state[next.ID] = s.now()

	if _, err := s.store.AppendLog(next.ID, model.LogEntry{Timestamp: s.now(), Message: logMoved}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	s.bus.Publish(model.Updated(updated))

	s.log.Info("photo admitted", slog.String("id", next.ID))
	return nil
}

func firstWithStatus(photos []*model.Photo, status model.PhotoStatus) *model.Photo {
	for _, p := range photos {
		if p.Status == status {
			return p
		}
	}
	return nil
}
