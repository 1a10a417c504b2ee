// Package call runs one video call: it tracks the call's media sources,
// keeps the two display slots arranged, recovers from disconnects and
// carries chat and file sharing.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/media"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
	"github.com/tomaslejdung/peepcall/pkg/signal"
)

// ErrClosed is returned by Session methods once Run has returned
var ErrClosed = errors.New("call session closed")

const placeholderLabel = "Participant"

// Config configures a Session
type Config struct {
	Username          string
	Variant           layout.Variant
	ArrangementDelays []time.Duration // nil uses layout.DefaultDelays
	Policy            reconnect.Policy
	Online            reconnect.OnlineChecker
	OnlinePoll        time.Duration
	MaxFileSize       int64
	DownloadDir       string
	StartMuted        bool
	StartNoCamera     bool

	// test hooks
	afterFunc layout.AfterFunc
	wait      reconnect.WaitFunc
	now       func() time.Time
}

// Session owns the stream registry of one call. All registry access and
// every Presenter call happen on the goroutine running Run; other
// goroutines talk to it through channels.
type Session struct {
	cfg       Config
	sig       Signaling
	presenter Presenter
	logger    zerolog.Logger

	events    chan Event
	ops       chan func()
	arrangeCh chan string
	done      chan struct{}
	runOnce   sync.Once

	// owned by the Run goroutine
	registry     *media.Registry
	scheduler    *layout.Scheduler
	current      layout.Arrangement
	participants map[string]Participant
	earlyReady   map[string]media.Handle
	media        MediaState
	publishing   map[media.Kind]bool
	supervisor   *reconnect.Supervisor
	recovering   bool
	unstable     bool // the media path reported a drop it may recover from
	ctx          context.Context
	stop         context.CancelFunc

	files *fileStore
}

// New creates a session. Nothing happens until Run is called.
func New(cfg Config, sig Signaling, presenter Presenter) *Session {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Session{
		cfg:          cfg,
		sig:          sig,
		presenter:    presenter,
		logger:       plog.Component("call").With().Str(plog.FieldUsername, cfg.Username).Logger(),
		events:       make(chan Event, 64),
		ops:          make(chan func(), 16),
		arrangeCh:    make(chan string, 1),
		done:         make(chan struct{}),
		registry:     media.NewRegistry(),
		participants: make(map[string]Participant),
		earlyReady:   make(map[string]media.Handle),
		publishing:   make(map[media.Kind]bool),
		media:        MediaState{MicOn: !cfg.StartMuted},
		files:        newFileStore(),
	}
}

// Run processes events until ctx is cancelled or Leave is called.
// It publishes the local camera first unless StartNoCamera is set.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("session already ran")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx
	s.stop = cancel
	defer close(s.done)

	opts := []layout.SchedulerOption{}
	if s.cfg.afterFunc != nil {
		opts = append(opts, layout.WithAfterFunc(s.cfg.afterFunc))
	}
	s.scheduler = layout.NewScheduler(s.cfg.ArrangementDelays, s.requestArrange, opts...)
	defer s.scheduler.Stop()

	s.supervisor = s.newSupervisor()
	s.presenter.SetConnectionStatus(s.supervisor.Status())
	if s.cfg.StartMuted {
		if err := s.sig.SetTrackEnabled(Microphone, false); err != nil {
			s.logger.Warn().Err(err).Msg("mute microphone")
		}
	}
	s.presenter.MediaStateChanged(s.media)
	if !s.cfg.StartNoCamera {
		s.publish(media.LocalCamera)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.handle(ev)
		case fn := <-s.ops:
			fn()
		case reason := <-s.arrangeCh:
			s.applyArrangement(reason)
		}
	}
}

// Deliver hands an event to the session. It blocks until the session takes
// it or has stopped.
func (s *Session) Deliver(ev Event) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// do runs fn on the session goroutine
func (s *Session) do(fn func()) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ops <- fn:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// query runs fn on the session goroutine and waits for it
func (s *Session) query(fn func()) error {
	finished := make(chan struct{})
	if err := s.do(func() { fn(); close(finished) }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// requestArrange is the scheduler callback. It runs on timer goroutines and
// on the session goroutine, so it only posts. A pass already queued covers
// this one.
func (s *Session) requestArrange(reason string) {
	select {
	case s.arrangeCh <- reason:
	default:
	}
}

func (s *Session) handle(ev Event) {
	s.logger.Debug().Str("event", ev.eventName()).Msg("event")

	switch ev := ev.(type) {
	case StreamCreated:
		s.onStreamCreated(ev)
	case StreamReady:
		s.onStreamReady(ev)
	case StreamDestroyed:
		s.onStreamDestroyed(ev.StreamID)
	case StreamEnded:
		s.onStreamEnded(ev.StreamID)
	case ConnectionCreated:
		s.onConnectionCreated(ev.ConnectionID, ev.Data, true)
	case ConnectionDestroyed:
		s.onConnectionDestroyed(ev.ConnectionID)
	case Disconnected:
		s.onDisconnected(ev.Reason)
	case Reconnecting:
		s.onReconnecting()
	case Reconnected:
		s.onReconnected()
	case SignalReceived:
		s.onSignal(ev)
	}
}

func (s *Session) label(connectionID, data string) string {
	if p, ok := s.participants[connectionID]; ok && p.Label != "" {
		return p.Label
	}
	if data == "" {
		return placeholderLabel
	}
	return signal.LabelFor(data, placeholderLabel)
}

func (s *Session) onStreamCreated(ev StreamCreated) {
	if ev.ConnectionID == "" {
		s.logger.Warn().Str(plog.FieldStreamID, ev.StreamID).Msg("stream without connection, ignored")
		return
	}
	if _, known := s.participants[ev.ConnectionID]; !known {
		s.onConnectionCreated(ev.ConnectionID, ev.Data, false)
	}

	kind := media.RemoteCamera
	if ev.ScreenShare {
		kind = media.RemoteScreen
	}

	handle := ev.Handle
	state := media.Pending
	if h, ok := s.earlyReady[ev.StreamID]; ok {
		delete(s.earlyReady, ev.StreamID)
		if h != nil {
			handle = h
		}
		state = media.Ready
	}

	s.registry.Register(kind, ev.ConnectionID, media.Source{
		Label:  s.label(ev.ConnectionID, ev.Data),
		ID:     ev.StreamID,
		Handle: handle,
		State:  state,
	})
	s.logger.Info().
		Str(plog.FieldKind, kind.String()).
		Str(plog.FieldConnectionID, ev.ConnectionID).
		Str(plog.FieldStreamID, ev.StreamID).
		Msg("stream registered")

	if kind == media.RemoteScreen {
		s.presenter.Notify(Notice{Level: Info, Text: s.label(ev.ConnectionID, ev.Data) + " started sharing their screen"})
	}
	s.scheduler.Schedule("stream-created")
}

func (s *Session) onStreamReady(ev StreamReady) {
	src, ok := s.registry.Lookup(ev.StreamID)
	if !ok {
		// readiness overtook creation; keep it for the StreamCreated
		s.earlyReady[ev.StreamID] = ev.Handle
		return
	}
	if ev.Handle != nil {
		s.registry.SetHandle(src.StreamID(), ev.Handle)
	}
	s.registry.SetState(ev.StreamID, media.Ready)
	s.scheduler.Schedule("stream-ready")
}

func (s *Session) onStreamDestroyed(streamID string) {
	delete(s.earlyReady, streamID)
	src, ok := s.registry.UnregisterStream(streamID)
	if !ok {
		return
	}
	s.logger.Info().Str(plog.FieldKind, src.Kind.String()).Str(plog.FieldStreamID, streamID).Msg("stream unregistered")

	switch src.Kind {
	case media.RemoteScreen:
		s.presenter.Notify(Notice{Level: Info, Text: src.Label + " stopped sharing their screen"})
	case media.LocalScreen:
		s.setScreenShared(false)
	}
	s.scheduler.Schedule("stream-destroyed")
}

// onStreamEnded handles media that stopped without a teardown signal
func (s *Session) onStreamEnded(streamID string) {
	src, ok := s.registry.Lookup(streamID)
	if !ok {
		return
	}
	if src.Kind == media.LocalScreen {
		s.stopScreenShare()
		return
	}
	s.registry.SetState(streamID, media.Ended)
	s.scheduler.Schedule("stream-ended")
}

func (s *Session) onConnectionCreated(id, data string, announce bool) {
	if id == "" {
		return
	}
	label := placeholderLabel
	if data != "" {
		label = signal.LabelFor(data, placeholderLabel)
	}
	_, existed := s.participants[id]
	s.participants[id] = Participant{ConnectionID: id, Label: label}
	s.presenter.ParticipantsChanged(s.participantList())
	if announce && !existed {
		s.presenter.Notify(Notice{Level: Info, Text: label + " joined the call"})
	}
}

func (s *Session) onConnectionDestroyed(id string) {
	p, ok := s.participants[id]
	delete(s.participants, id)
	removed := s.registry.UnregisterOwner(id)
	if ok {
		s.presenter.ParticipantsChanged(s.participantList())
		s.presenter.Notify(Notice{Level: Info, Text: p.Label + " left the call"})
	}
	if removed > 0 {
		s.scheduler.Schedule("connection-destroyed")
	}
}

func (s *Session) participantList() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

// applyArrangement runs one arrange pass and pushes only the slots that
// changed to the presenter
func (s *Session) applyArrangement(reason string) {
	next := layout.Arrange(s.registry.Snapshot(), s.cfg.Variant)
	for _, slot := range layout.Slots {
		want := next.Get(slot)
		if want.Key() == s.current.Get(slot).Key() {
			continue
		}
		if want.Empty() {
			s.presenter.ClearSlot(slot)
		} else {
			s.presenter.SetSlot(want)
		}
		s.logger.Debug().
			Str(plog.FieldSlot, slot.String()).
			Str("occupant", want.Label).
			Str(plog.FieldReason, reason).
			Msg("slot updated")
	}
	s.current = next
}

// Arrangement returns the slots as last shown
func (s *Session) Arrangement() (layout.Arrangement, error) {
	var a layout.Arrangement
	err := s.query(func() { a = s.current })
	return a, err
}

// Snapshot returns a copy of the registry
func (s *Session) Snapshot() (media.Snapshot, error) {
	var snap media.Snapshot
	err := s.query(func() { snap = s.registry.Snapshot() })
	return snap, err
}

// Participants returns the remote members of the call
func (s *Session) Participants() ([]Participant, error) {
	var ps []Participant
	err := s.query(func() { ps = s.participantList() })
	return ps, err
}

// Leave ends the session
func (s *Session) Leave() {
	s.do(func() {
		for _, kind := range []media.Kind{media.LocalScreen, media.LocalCamera} {
			if src, ok := s.localSource(kind); ok {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := s.sig.Unpublish(ctx, src.Handle); err != nil {
					s.logger.Debug().Err(err).Msg("unpublish on leave")
				}
				cancel()
			}
		}
		s.stop()
	})
}

func (s *Session) onSignal(ev SignalReceived) {
	mine := ev.From != "" && ev.From == s.sig.ConnectionID()
	switch ev.Type {
	case signal.TypeChat:
		m, err := decodeChat(ev.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("chat dropped")
			return
		}
		if m.Username == "" {
			m.Username = s.label(ev.From, ev.Data)
		}
		m.From = ev.From
		m.Mine = mine
		s.presenter.ChatReceived(m)
	case signal.TypeFile:
		p, err := decodeFile(ev.Payload, s.cfg.MaxFileSize)
		if err != nil {
			s.logger.Warn().Err(err).Str(plog.FieldConnectionID, ev.From).Msg("file dropped")
			if !mine {
				s.presenter.Notify(Notice{Level: Warning, Text: "Rejected a shared file: " + err.Error()})
			}
			return
		}
		if p.Username == "" {
			p.Username = s.label(ev.From, ev.Data)
		}
		f := s.files.add(p, ev.From, mine)
		s.presenter.FileReceived(f)
		if !mine {
			s.presenter.Notify(Notice{Level: Info, Text: fmt.Sprintf("%s shared %s", f.Username, f.Name)})
		}
	default:
		s.logger.Debug().Str("type", ev.Type).Msg("unhandled signal")
	}
}

// SendChat posts text to the room. Blank text is dropped. The message comes
// back through the room echo like everyone else's.
func (s *Session) SendChat(ctx context.Context, text string) error {
	payload, err := encodeChat(text, s.cfg.Username, s.cfg.now())
	if err != nil || payload == nil {
		return err
	}
	return s.sig.Send(ctx, signal.TypeChat, payload)
}

// SendFile shares the file at path with the room
func (s *Session) SendFile(ctx context.Context, path string) error {
	p, err := readShareable(path, s.cfg.MaxFileSize)
	if err != nil {
		return err
	}
	p.Username = s.cfg.Username
	p.Timestamp = s.cfg.now()

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode file: %w", err)
	}
	return s.sig.Send(ctx, signal.TypeFile, payload)
}

// SaveFile writes a received file into the download directory
func (s *Session) SaveFile(id string) (string, error) {
	return s.files.save(id, s.cfg.DownloadDir)
}

// Files lists shared files, oldest first
func (s *Session) Files() []SharedFile {
	files := s.files.list()
	sort.Slice(files, func(i, j int) bool {
		return files[i].Timestamp.Before(files[j].Timestamp)
	})
	return files
}
