package call

import (
	"context"
	"errors"

	"github.com/tomaslejdung/peepcall/pkg/media"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
)

func (s *Session) newSupervisor() *reconnect.Supervisor {
	opts := []reconnect.Option{
		reconnect.WithLogger(s.logger.With().Str("component", "reconnect").Logger()),
		reconnect.WithObserver(func(st reconnect.Status) {
			s.do(func() { s.presenter.SetConnectionStatus(st) })
		}),
	}
	if s.cfg.Online != nil {
		opts = append(opts, reconnect.WithOnlineChecker(s.cfg.Online, s.cfg.OnlinePoll))
	}
	if s.cfg.wait != nil {
		opts = append(opts, reconnect.WithWait(s.cfg.wait))
	}
	return reconnect.New(s.cfg.Policy, reconnect.ReconnectFunc(s.reconnectOnce), opts...)
}

// reconnectOnce is one recovery attempt. Remote sources belong to the lost
// connection, so they are dropped before the signaling layer rejoins and
// announces the room again.
func (s *Session) reconnectOnce(ctx context.Context) error {
	if err := s.query(s.dropRemote); err != nil {
		return err
	}
	return s.sig.Reconnect(ctx)
}

func (s *Session) dropRemote() {
	hadRemote := len(s.participants) > 0
	s.registry.UnregisterRemote()
	s.participants = make(map[string]Participant)
	s.earlyReady = make(map[string]media.Handle)
	if hadRemote {
		s.presenter.ParticipantsChanged(nil)
	}
	s.scheduler.Schedule("connection-lost")
}

func (s *Session) onDisconnected(reason string) {
	if s.recovering || s.supervisor.Status().State == reconnect.Failed {
		return
	}
	s.presenter.Notify(Notice{Level: Warning, Text: "Connection lost, reconnecting..."})
	s.startRecovery(reason)
}

// onReconnecting marks the call unstable while the transport retries on
// its own. It is ignored while the supervisor owns recovery.
func (s *Session) onReconnecting() {
	if s.recovering || s.unstable || s.supervisor.Status().State == reconnect.Failed {
		return
	}
	s.unstable = true
	s.presenter.SetConnectionStatus(reconnect.Status{State: reconnect.Reconnecting, MaxAttempts: s.supervisor.Policy().MaxAttempts})
	s.presenter.Notify(Notice{Level: Warning, Text: "Connection unstable, reconnecting..."})
}

func (s *Session) onReconnected() {
	if !s.unstable {
		return
	}
	s.unstable = false
	if s.recovering {
		return
	}
	s.presenter.SetConnectionStatus(s.supervisor.Status())
	s.presenter.Notify(Notice{Level: Success, Text: "Reconnected"})
	s.scheduler.Schedule("reconnected")
}

func (s *Session) startRecovery(reason string) {
	s.recovering = true
	s.unstable = false
	sup := s.supervisor
	ctx := s.ctx
	go func() {
		err := sup.Recover(ctx, reason)
		s.do(func() { s.onRecoveryDone(sup, err) })
	}()
}

func (s *Session) onRecoveryDone(sup *reconnect.Supervisor, err error) {
	if sup != s.supervisor {
		return
	}
	s.recovering = false

	var exhausted *reconnect.ExhaustedError
	switch {
	case err == nil:
		s.presenter.Notify(Notice{Level: Success, Text: "Reconnected"})
		s.scheduler.Schedule("reconnected")
	case errors.As(err, &exhausted):
		s.presenter.Notify(Notice{Level: Error, Text: "Could not reconnect. Press r to rejoin or R to restart."})
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error().Err(err).Msg("recovery stopped")
	}
}

// Rejoin starts a fresh recovery after the previous one failed
func (s *Session) Rejoin() error {
	return s.do(func() {
		if s.recovering || s.supervisor.Status().State != reconnect.Failed {
			return
		}
		s.supervisor = s.newSupervisor()
		s.startRecovery("rejoin")
	})
}

// Status returns the connection status
func (s *Session) Status() (reconnect.Status, error) {
	var st reconnect.Status
	err := s.query(func() { st = s.supervisor.Status() })
	return st, err
}
