package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// State of the supervised session
type State int

const (
	Connected State = iota
	Disconnected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is what observers see on every transition
type Status struct {
	State       State
	Attempt     int           // current attempt while Reconnecting, 1-based
	MaxAttempts int           // cap from the policy
	NextDelay   time.Duration // wait if the current attempt fails
	Waiting     bool          // paused until the host is back online
	Reason      string        // disconnect reason
	Err         error         // last attempt error, or *ExhaustedError when Failed
}

// Reconnector re-establishes the session
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// ReconnectFunc adapts a function to Reconnector
type ReconnectFunc func(ctx context.Context) error

func (f ReconnectFunc) Reconnect(ctx context.Context) error { return f(ctx) }

// OnlineChecker reports whether the host has network access
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// OnlineFunc adapts a function to OnlineChecker
type OnlineFunc func(ctx context.Context) bool

func (f OnlineFunc) Online(ctx context.Context) bool { return f(ctx) }

type alwaysOnline struct{}

func (alwaysOnline) Online(context.Context) bool { return true }

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor runs the Connected -> Disconnected -> Reconnecting(n) ->
// Connected | Failed state machine. Failed is terminal; a new Supervisor is
// needed to try again.
type Supervisor struct {
	policy       Policy
	reconnector  Reconnector
	online       OnlineChecker
	pollInterval time.Duration
	wait         WaitFunc
	now          func() time.Time
	observer     func(Status)
	logger       zerolog.Logger

	mu      sync.Mutex
	status  Status
	running bool
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithOnlineChecker pauses retries while the checker reports offline
func WithOnlineChecker(c OnlineChecker, pollInterval time.Duration) Option {
	return func(s *Supervisor) {
		s.online = c
		if pollInterval > 0 {
			s.pollInterval = pollInterval
		}
	}
}

// WithWait replaces the backoff and polling sleep, for tests
func WithWait(w WaitFunc) Option {
	return func(s *Supervisor) {
		s.wait = w
	}
}

// WithClock replaces time.Now for attempt timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// WithObserver receives every status change. It is called synchronously
// from the recovering goroutine and must not block.
func WithObserver(fn func(Status)) Option {
	return func(s *Supervisor) {
		s.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// New creates a supervisor in the Connected state
func New(policy Policy, r Reconnector, opts ...Option) *Supervisor {
	policy = policy.normalized()
	s := &Supervisor{
		policy:       policy,
		reconnector:  r,
		online:       alwaysOnline{},
		pollInterval: time.Second,
		wait:         sleepCtx,
		now:          time.Now,
		logger:       plog.Component("reconnect"),
		status:       Status{State: Connected, MaxAttempts: policy.MaxAttempts},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the retry schedule in use
func (s *Supervisor) Policy() Policy {
	return s.policy
}

// Status returns the current status
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Disconnected records a disconnect signal. It only moves Connected to
// Disconnected; it never starts recovery on its own.
func (s *Supervisor) Disconnected(reason string) {
	s.mu.Lock()
	if s.status.State != Connected {
		s.mu.Unlock()
		return
	}
	st := Status{State: Disconnected, MaxAttempts: s.policy.MaxAttempts, Reason: reason}
	s.status = st
	s.mu.Unlock()

	s.logger.Info().Str(plog.FieldReason, reason).Msg("session disconnected")
	s.emit(st)
}

func (s *Supervisor) set(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.emit(st)
}

func (s *Supervisor) emit(st Status) {
	if s.observer != nil {
		s.observer(st)
	}
}

// Recover retries the session until it is back or attempts run out.
//
// It returns nil once connected, an *ExhaustedError (wrapping ErrFailed)
// after the last attempt fails, or ctx.Err() if cancelled. Time spent
// waiting for the host to come back online does not use up attempts.
func (s *Supervisor) Recover(ctx context.Context, reason string) error {
	s.mu.Lock()
	switch {
	case s.running:
		s.mu.Unlock()
		return ErrInProgress
	case s.status.State == Failed:
		err := s.status.Err
		s.mu.Unlock()
		return err
	}
	s.running = true
	wasConnected := s.status.State == Connected
	s.mu.Unlock()

	if wasConnected {
		s.logger.Info().Str(plog.FieldReason, reason).Msg("session disconnected")
		s.set(Status{State: Disconnected, MaxAttempts: s.policy.MaxAttempts, Reason: reason})
	}

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var history []Attempt
	for attempt := 1; ; attempt++ {
		st := Status{
			State:       Reconnecting,
			Attempt:     attempt,
			MaxAttempts: s.policy.MaxAttempts,
			NextDelay:   s.policy.Delay(attempt),
			Reason:      reason,
		}

		if err := s.waitOnline(ctx, st); err != nil {
			return s.stopped(reason, err)
		}
		s.set(st)

		err := s.reconnector.Reconnect(ctx)
		if err == nil {
			s.logger.Info().Int(plog.FieldAttempt, attempt).Msg("reconnected")
			s.set(Status{State: Connected, MaxAttempts: s.policy.MaxAttempts})
			return nil
		}
		if ctx.Err() != nil {
			return s.stopped(reason, ctx.Err())
		}

		rec := Attempt{Number: attempt, At: s.now(), Err: err}
		if attempt >= s.policy.MaxAttempts {
			history = append(history, rec)
			exhausted := &ExhaustedError{History: history}
			s.logFailure(exhausted)
			s.set(Status{
				State:       Failed,
				Attempt:     attempt,
				MaxAttempts: s.policy.MaxAttempts,
				Reason:      reason,
				Err:         exhausted,
			})
			return exhausted
		}

		rec.Delay = st.NextDelay
		history = append(history, rec)
		s.logger.Warn().
			Err(err).
			Int(plog.FieldAttempt, attempt).
			Int(plog.FieldMaxAttempts, s.policy.MaxAttempts).
			Dur(plog.FieldDelay, rec.Delay).
			Msg("reconnect attempt failed, retrying")

		st.Err = err
		s.set(st)
		if err := s.wait(ctx, rec.Delay); err != nil {
			return s.stopped(reason, err)
		}
	}
}

// stopped leaves Disconnected behind when recovery is abandoned mid-way,
// so Status no longer reports a retry
func (s *Supervisor) stopped(reason string, err error) error {
	s.logger.Info().Err(err).Str(plog.FieldReason, reason).Msg("recovery stopped")
	s.set(Status{State: Disconnected, MaxAttempts: s.policy.MaxAttempts, Reason: reason})
	return err
}

// waitOnline polls until the host is online. The attempt number is not
// advanced while waiting.
func (s *Supervisor) waitOnline(ctx context.Context, st Status) error {
	announced := false
	for !s.online.Online(ctx) {
		if !announced {
			announced = true
			s.logger.Info().Int(plog.FieldAttempt, st.Attempt).Msg("offline, waiting for network before retrying")
			waiting := st
			waiting.Waiting = true
			s.set(waiting)
		}
		if err := s.wait(ctx, s.pollInterval); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) logFailure(e *ExhaustedError) {
	arr := zerolog.Arr()
	for _, a := range e.History {
		arr.Dict(zerolog.Dict().
			Int(plog.FieldAttempt, a.Number).
			Time("at", a.At).
			Dur(plog.FieldDelay, a.Delay).
			Str("error", a.Err.Error()))
	}
	s.logger.Error().
		Int(plog.FieldMaxAttempts, s.policy.MaxAttempts).
		Array("history", arr).
		Msg("reconnection exhausted, giving up")
}
