package layout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer not yet stopped, in arming order
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.f()
		}
	}
}

func TestScheduleFiresNowAndAtEachDelay(t *testing.T) {
	clock := &fakeClock{}
	var fired []string
	s := NewScheduler(nil, func(reason string) {
		fired = append(fired, reason)
	}, WithAfterFunc(clock.AfterFunc))

	s.Schedule("stream-created")
	assert.Equal(t, []string{"stream-created"}, fired, "first pass runs synchronously")

	require.Len(t, clock.timers, 3)
	assert.Equal(t, 500*time.Millisecond, clock.timers[0].d)
	assert.Equal(t, 1000*time.Millisecond, clock.timers[1].d)
	assert.Equal(t, 2000*time.Millisecond, clock.timers[2].d)
	assert.Equal(t, 3, s.Pending())

	clock.fireAll()
	assert.Len(t, fired, 4)
	assert.Equal(t, 0, s.Pending())

	// nothing re-arms itself
	clock.fireAll()
	assert.Len(t, fired, 4)
}

func TestScheduleCustomDelays(t *testing.T) {
	clock := &fakeClock{}
	n := 0
	s := NewScheduler([]time.Duration{time.Second}, func(string) { n++ }, WithAfterFunc(clock.AfterFunc))
	s.Schedule("a")
	s.Schedule("b")
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, []time.Duration{time.Second}, s.Delays())

	none := NewScheduler([]time.Duration{}, func(string) { n++ }, WithAfterFunc(clock.AfterFunc))
	none.Schedule("c")
	assert.Equal(t, 0, none.Pending())
}

func TestSchedulerStop(t *testing.T) {
	clock := &fakeClock{}
	n := 0
	s := NewScheduler(nil, func(string) { n++ }, WithAfterFunc(clock.AfterFunc))
	s.Schedule("x")
	s.Stop()
	assert.Equal(t, 0, s.Pending())

	clock.fireAll()
	assert.Equal(t, 1, n)

	s.Schedule("y")
	assert.Equal(t, 1, n, "schedule after stop is a no-op")
}

func TestSchedulerRealTimers(t *testing.T) {
	var mu sync.Mutex
	var at []time.Duration
	start := time.Now()
	done := make(chan struct{})

	s := NewScheduler([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, func(string) {
		mu.Lock()
		defer mu.Unlock()
		at = append(at, time.Since(start))
		if len(at) == 3 {
			close(done)
		}
	})
	s.Schedule("real")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up passes did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, at[2], 20*time.Millisecond)
}
