package layout

import (
	"sync"
	"time"
)

// DefaultDelays are the follow-up passes run after every triggering event
var DefaultDelays = []time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// Timer is the part of *time.Timer the scheduler needs
type Timer interface {
	Stop() bool
}

// AfterFunc matches time.AfterFunc
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler re-runs an idempotent action right away and then again at each
// configured delay. It papers over readiness events that arrive out of order:
// a late pass on a settled state is a no-op, an early pass on an unsettled
// one gets corrected by a later pass.
//
// The action runs on timer goroutines. Callers that own single-goroutine
// state should have it post a message rather than touch that state directly.
type Scheduler struct {
	delays    []time.Duration
	fire      func(reason string)
	afterFunc AfterFunc

	mu      sync.Mutex
	nextID  int
	pending map[int]Timer
	stopped bool
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithAfterFunc replaces time.AfterFunc, for tests
func WithAfterFunc(fn AfterFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.afterFunc = fn
	}
}

// NewScheduler creates a scheduler calling fire. A nil delays slice uses
// DefaultDelays; an empty one disables follow-up passes.
func NewScheduler(delays []time.Duration, fire func(reason string), opts ...SchedulerOption) *Scheduler {
	if delays == nil {
		delays = DefaultDelays
	}
	s := &Scheduler{
		delays:    append([]time.Duration(nil), delays...),
		fire:      fire,
		afterFunc: realAfterFunc,
		pending:   make(map[int]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delays returns the follow-up schedule
func (s *Scheduler) Delays() []time.Duration {
	return append([]time.Duration(nil), s.delays...)
}

// Schedule fires immediately and arms one timer per delay.
// Earlier timers are not cancelled; they re-confirm the current state.
func (s *Scheduler) Schedule(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	for _, d := range s.delays {
		id := s.nextID
		s.nextID++
		s.pending[id] = s.afterFunc(d, func() {
			s.mu.Lock()
			_, live := s.pending[id]
			delete(s.pending, id)
			s.mu.Unlock()
			if live {
				s.fire(reason)
			}
		})
	}
	s.mu.Unlock()

	s.fire(reason)
}

// Pending returns the number of armed follow-up passes
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels armed passes and makes later Schedule calls no-ops
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
