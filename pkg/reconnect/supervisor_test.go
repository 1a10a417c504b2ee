package reconnect

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	waits    []time.Duration
	statuses []Status
}

func (r *recorder) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recorder) observe(st Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, st)
	r.mu.Unlock()
}

func newTestSupervisor(r Reconnector, rec *recorder, opts ...Option) *Supervisor {
	opts = append([]Option{
		WithWait(rec.wait),
		WithObserver(rec.observe),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return New(DefaultPolicy(), r, opts...)
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	for k, want := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		4: 16 * time.Second,
		5: 32 * time.Second,
	} {
		assert.Equal(t, want, p.Delay(k), "attempt %d", k)
	}

	capped := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 4*time.Second, capped.Delay(3))
	assert.Equal(t, 5*time.Second, capped.Delay(4))
	assert.Equal(t, 5*time.Second, capped.Delay(9))

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, p.Schedule())

	// an uncapped schedule saturates rather than wrapping negative
	for _, k := range []int{34, 40, 100} {
		d := p.Delay(k)
		assert.Positive(t, d, "attempt %d", k)
		assert.GreaterOrEqual(t, d, p.Delay(33), "attempt %d", k)
	}
}

func TestRecoverExhaustsAfterMaxAttempts(t *testing.T) {
	rec := &recorder{}
	calls := 0
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		calls++
		return errors.New("no route to host")
	}), rec)

	err := s.Recover(context.Background(), "network")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.History, 5)
	for i, a := range exhausted.History {
		assert.Equal(t, i+1, a.Number)
	}
	assert.Zero(t, exhausted.History[4].Delay)

	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, rec.waits)

	st := s.Status()
	assert.Equal(t, Failed, st.State)
	assert.Equal(t, 5, st.Attempt)

	// Failed is terminal
	again := s.Recover(context.Background(), "network")
	assert.ErrorIs(t, again, ErrFailed)
	assert.Equal(t, 5, calls)
}

func TestRecoverFailsExactlyAtMax(t *testing.T) {
	for n := 0; n < 5; n++ {
		rec := &recorder{}
		calls := 0
		s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
			calls++
			if calls > n {
				return nil
			}
			return errors.New("fail")
		}), rec)

		require.NoError(t, s.Recover(context.Background(), "network"), "n=%d", n)
		assert.Equal(t, Connected, s.Status().State)
		assert.Len(t, rec.waits, n)
		for k, d := range rec.waits {
			assert.Equal(t, s.Policy().Delay(k+1), d)
		}
	}
}

func TestRecoverStatusSequence(t *testing.T) {
	rec := &recorder{}
	calls := 0
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		calls++
		if calls == 2 {
			return nil
		}
		return errors.New("fail")
	}), rec)

	s.Disconnected("network")
	require.NoError(t, s.Recover(context.Background(), "network"))

	var states []State
	var attempts []int
	for _, st := range rec.statuses {
		states = append(states, st.State)
		attempts = append(attempts, st.Attempt)
	}
	assert.Equal(t, []State{Disconnected, Reconnecting, Reconnecting, Reconnecting, Connected}, states)
	assert.Equal(t, []int{0, 1, 1, 2, 0}, attempts)
	assert.Equal(t, 2*time.Second, rec.statuses[1].NextDelay)
	assert.Error(t, rec.statuses[2].Err)
}

func TestRecoverWaitsForOnlineWithoutSpendingAttempts(t *testing.T) {
	rec := &recorder{}
	checks := 0
	online := OnlineFunc(func(context.Context) bool {
		checks++
		return checks > 3
	})
	calls := 0
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		calls++
		return nil
	}), rec, WithOnlineChecker(online, 250*time.Millisecond))

	require.NoError(t, s.Recover(context.Background(), "offline"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, rec.waits)
	require.Len(t, rec.statuses, 4)
	assert.Equal(t, Disconnected, rec.statuses[0].State)
	assert.True(t, rec.statuses[1].Waiting)
	assert.Equal(t, 1, rec.statuses[1].Attempt)
	assert.False(t, rec.statuses[2].Waiting)
	assert.Equal(t, Connected, rec.statuses[3].State)
}

func TestRecoverHonoursCancellation(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		cancel()
		return errors.New("fail")
	}), rec)

	err := s.Recover(ctx, "network")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Disconnected, s.Status().State)
	require.NotEmpty(t, rec.statuses)
	assert.Equal(t, Disconnected, rec.statuses[len(rec.statuses)-1].State)
}

func TestRecoverCancelledDuringBackoff(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		return errors.New("fail")
	}), rec, WithWait(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	err := s.Recover(ctx, "network")
	assert.ErrorIs(t, err, context.Canceled)
	st := s.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.Zero(t, st.Attempt)
}

func TestRecoverRejectsConcurrentRun(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error {
		close(entered)
		<-release
		return nil
	}), rec)

	done := make(chan error, 1)
	go func() { done <- s.Recover(context.Background(), "network") }()
	<-entered

	assert.ErrorIs(t, s.Recover(context.Background(), "network"), ErrInProgress)
	close(release)
	assert.NoError(t, <-done)
}

func TestDisconnectedOnlyFromConnected(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(ReconnectFunc(func(context.Context) error { return nil }), rec)
	s.Disconnected("a")
	s.Disconnected("b")
	assert.Len(t, rec.statuses, 1)
	assert.Equal(t, "a", s.Status().Reason)
}

func TestDialChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	up := DialChecker{Network: "tcp", Address: ln.Addr().String(), Timeout: time.Second}
	assert.True(t, up.Online(context.Background()))

	addr := ln.Addr().String()
	ln.Close()
	down := DialChecker{Network: "tcp", Address: addr, Timeout: 200 * time.Millisecond}
	assert.False(t, down.Online(context.Background()))

	assert.True(t, DialChecker{}.Online(context.Background()))
}
