// Package debounce coalesces rapid edits into a single pending write per key.
//
// Each key has one slot. Scheduling replaces the slot and restarts its idle
// timer; the write runs when the timer fires or when Flush is called. Writes
// of one key are sent in the order they left the slot, each waiting for the
// previous one to finish.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDelay is the idle window before a pending write is sent.
const DefaultDelay = 800 * time.Millisecond

// Write sends one pending edit.
type Write func(ctx context.Context) error

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// Clock starts timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type slot struct {
	write Write
	timer Timer
	gen   uint64
}

// call is a write that left its slot. It runs after prev closes and closes done.
type call struct {
	write Write
	prev  <-chan struct{}
	done  chan struct{}
}

// Scheduler holds the pending writes.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	delay   time.Duration
	gen     uint64
	pending map[string]*slot
	// inFlight holds the done channel of the last write sent per key.
	inFlight map[string]chan struct{}
	onError func(key string, err error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option { return func(s *Scheduler) { s.delay = d } }

// OnError receives failures of timer-driven writes.
func OnError(fn func(key string, err error)) Option { return func(s *Scheduler) { s.onError = fn } }

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   realClock{},
		delay:   DefaultDelay,
		pending:  make(map[string]*slot),
		inFlight: make(map[string]chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule replaces the pending write of key and restarts its timer.
func (s *Scheduler) Schedule(key string, w Write) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	sl := &slot{write: w, gen: gen}
	sl.timer = s.clock.AfterFunc(s.delay, func() { s.fire(key, gen) })
	s.pending[key] = sl
}

// Pending reports whether key has an unsent write.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// take removes the slot of key. With send set the write is queued behind the
// last write of key still running.
func (s *Scheduler) take(key string, gen uint64, send bool) *call {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.pending[key]
	if !ok || (gen != 0 && sl.gen != gen) {
		return nil
	}
	delete(s.pending, key)
	sl.timer.Stop()
	if !send {
		return nil
	}
	c := &call{write: sl.write, prev: s.inFlight[key], done: make(chan struct{})}
	s.inFlight[key] = c.done
	return c
}

func (s *Scheduler) send(ctx context.Context, key string, c *call) error {
	defer func() {
		s.mu.Lock()
		if s.inFlight[key] == c.done {
			delete(s.inFlight, key)
		}
		s.mu.Unlock()
		close(c.done)
	}()
	if c.prev != nil {
		<-c.prev
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(ctx)
}

func (s *Scheduler) fire(key string, gen uint64) {
	c := s.take(key, gen, true)
	if c == nil {
		return
	}
	if err := s.send(context.Background(), key, c); err != nil && s.onError != nil {
		s.onError(key, err)
	}
}

// Flush sends the pending write of key now, after any earlier write of key
// finishes. With nothing pending it waits for the write still running, if any.
func (s *Scheduler) Flush(ctx context.Context, key string) error {
	if c := s.take(key, 0, true); c != nil {
		return s.send(ctx, key, c)
	}
	s.mu.Lock()
	running := s.inFlight[key]
	s.mu.Unlock()
	if running == nil {
		return nil
	}
	select {
	case <-running:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel drops the pending write of key without sending it.
func (s *Scheduler) Cancel(key string) {
	s.take(key, 0, false)
}

// FlushAll sends every pending write.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := s.Flush(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
