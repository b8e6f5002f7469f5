package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && t.at <= c.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) write(v string) Write {
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.writes = append(r.writes, v)
		return nil
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func TestRapidEditsCoalesce(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	s.Schedule("1:1", rec.write("1"))
	clock.Advance(300 * time.Millisecond)
	s.Schedule("1:1", rec.write("18"))
	clock.Advance(700 * time.Millisecond)
	assert.Empty(t, rec.got(), "timer restarted by the second edit")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"18"}, rec.got())
	assert.False(t, s.Pending("1:1"))
}

func TestKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	s.Schedule("1:1", rec.write("a"))
	s.Schedule("1:2", rec.write("b"))
	clock.Advance(DefaultDelay)

	assert.ElementsMatch(t, []string{"a", "b"}, rec.got())
}

func TestFlushSendsImmediately(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	s.Schedule("1:3", rec.write("42"))
	require.NoError(t, s.Flush(context.Background(), "1:3"))
	assert.Equal(t, []string{"42"}, rec.got())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"42"}, rec.got(), "stopped timer does not send twice")

	require.NoError(t, s.Flush(context.Background(), "1:3"))
	assert.Len(t, rec.got(), 1)
}

func TestFlushAllJoinsErrors(t *testing.T) {
	s := New(WithClock(&fakeClock{}))
	boom := errors.New("boom")
	s.Schedule("a", func(context.Context) error { return boom })
	s.Schedule("b", func(context.Context) error { return nil })

	err := s.FlushAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Pending("a"))
	assert.False(t, s.Pending("b"))
}

func TestTimerErrorsReachHandler(t *testing.T) {
	clock := &fakeClock{}
	var gotKey string
	s := New(WithClock(clock), WithDelay(time.Second), OnError(func(key string, err error) { gotKey = key }))

	s.Schedule("2:1", func(context.Context) error { return errors.New("offline") })
	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, gotKey)
	clock.Advance(time.Millisecond)
	assert.Equal(t, "2:1", gotKey)
}

func TestRealClock(t *testing.T) {
	done := make(chan struct{})
	s := New(WithDelay(10 * time.Millisecond))
	s.Schedule("k", func(context.Context) error { close(done); return nil })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write never ran")
	}
}

func TestCancelDropsPendingWrite(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	s.Schedule("1:2", rec.write("99"))
	s.Cancel("1:2")
	clock.Advance(time.Second)

	assert.Empty(t, rec.got())
	assert.False(t, s.Pending("1:2"))
}

func TestWritesOfOneKeyAreOrdered(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule("3:1", func(ctx context.Context) error {
		close(started)
		<-release
		return rec.write("20")(ctx)
	})

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		clock.Advance(DefaultDelay)
	}()
	<-started

	s.Schedule("3:1", rec.write("35"))
	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background(), "3:1") }()
	require.Eventually(t, func() bool { return !s.Pending("3:1") }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-flushed)
	<-fired

	assert.Equal(t, []string{"20", "35"}, rec.got(), "newest edit is written last")
}

func TestFlushWaitsForRunningWrite(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	s := New(WithClock(clock))

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule("3:2", func(ctx context.Context) error {
		close(started)
		<-release
		return rec.write("12")(ctx)
	})
	go clock.Advance(DefaultDelay)
	<-started

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush(context.Background(), "3:2") }()
	select {
	case <-flushed:
		t.Fatal("flush returned while the write was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-flushed)
	assert.Equal(t, []string{"12"}, rec.got())
}
