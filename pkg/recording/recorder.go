// Package recording writes call audio to Ogg/Opus files. Each take gets
// one file per audio source: the local microphone and every remote
// participant heard while recording.
package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// LocalSource names the local microphone in file names
const LocalSource = "local"

const (
	sampleRate  = 48000
	channels    = 2
	stampLayout = "20060102_150405"
)

var (
	ErrRecording       = errors.New("already recording")
	ErrNotRecording    = errors.New("not recording")
	ErrNothingRecorded = errors.New("nothing was recorded, is a microphone on?")
)

// Recording describes a finished take
type Recording struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Files     []string
	Size      int64
}

// Name is the shared prefix of the take's files
func (r Recording) Name() string {
	return "recording_" + r.StartedAt.Format(stampLayout)
}

// Option configures a Recorder
type Option func(*Recorder)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// Recorder records at most one take at a time. Writes while no take is
// running are dropped, so producers can feed it unconditionally.
type Recorder struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
	active atomic.Bool

	mu      sync.Mutex
	take    *take
	history []Recording
}

type take struct {
	id      string
	started time.Time
	tracks  map[string]*track
	order   []string
}

type track struct {
	path    string
	ogg     *oggwriter.OggWriter
	packets int

	// RTP header state for sources that hand over bare samples
	seq uint16
	ts  uint32
}

// New creates a recorder writing into dir
func New(dir string, opts ...Option) *Recorder {
	r := &Recorder{
		dir:    dir,
		now:    time.Now,
		logger: plog.Component("recording"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active reports whether a take is running
func (r *Recorder) Active() bool {
	return r.active.Load()
}

// Start begins a take
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.take != nil {
		return ErrRecording
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	r.take = &take{
		id:      uuid.NewString(),
		started: r.now(),
		tracks:  make(map[string]*track),
	}
	r.active.Store(true)
	r.logger.Info().Str("id", r.take.id).Str("dir", r.dir).Msg("recording started")
	return nil
}

// WriteRTP records an Opus RTP packet from source
func (r *Recorder) WriteRTP(source string, pkt *rtp.Packet) {
	if !r.Active() || len(pkt.Payload) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.track(source); t != nil {
		r.write(t, source, pkt)
	}
}

// WriteSample records one Opus packet of duration d from source
func (r *Recorder) WriteSample(source string, data []byte, d time.Duration) {
	if !r.Active() || len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.track(source)
	if t == nil {
		return
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: t.seq,
			Timestamp:      t.ts,
		},
		Payload: data,
	}
	t.seq++
	t.ts += uint32(d * sampleRate / time.Second)
	r.write(t, source, pkt)
}

// track returns the writer of source in the running take, opening its
// file on first use. Callers hold r.mu.
func (r *Recorder) track(source string) *track {
	if r.take == nil {
		return nil
	}
	if t, ok := r.take.tracks[source]; ok {
		if t.ogg == nil {
			return nil
		}
		return t
	}

	t := &track{path: filepath.Join(r.dir, fmt.Sprintf("recording_%s_%s.ogg", r.take.started.Format(stampLayout), fileSafe(source)))}
	r.take.tracks[source] = t
	r.take.order = append(r.take.order, source)

	ogg, err := oggwriter.New(t.path, sampleRate, channels)
	if err == nil && ogg == nil {
		// header write failed and the file close succeeded
		err = fmt.Errorf("write ogg headers to %s", t.path)
	}
	if err != nil {
		// remembered with a nil writer so the source is not retried
		r.logger.Error().Err(err).Str("source", source).Msg("open recording file")
		return nil
	}
	t.ogg = ogg
	return t
}

func (r *Recorder) write(t *track, source string, pkt *rtp.Packet) {
	if err := t.ogg.WriteRTP(pkt); err != nil {
		r.logger.Debug().Err(err).Str("source", source).Msg("write recording packet")
		return
	}
	t.packets++
}

// Stop ends the take and closes its files. A take that captured no audio
// leaves no files behind and returns ErrNothingRecorded.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	tk := r.take
	r.take = nil
	r.active.Store(false)
	r.mu.Unlock()

	if tk == nil {
		return Recording{}, ErrNotRecording
	}

	rec := Recording{
		ID:        tk.id,
		StartedAt: tk.started,
		Duration:  r.now().Sub(tk.started),
	}
	var errs []error
	for _, source := range tk.order {
		t := tk.tracks[source]
		if t.ogg == nil {
			continue
		}
		if err := t.ogg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.path, err))
		}
		if t.packets == 0 {
			os.Remove(t.path)
			continue
		}
		if info, err := os.Stat(t.path); err == nil {
			rec.Size += info.Size()
		}
		rec.Files = append(rec.Files, t.path)
	}

	if len(rec.Files) == 0 {
		r.logger.Warn().Str("id", rec.ID).Msg("recording stopped with no audio")
		return rec, errors.Join(append([]error{ErrNothingRecorded}, errs...)...)
	}

	r.mu.Lock()
	r.history = append(r.history, rec)
	r.mu.Unlock()

	r.logger.Info().
		Str("id", rec.ID).
		Dur("duration", rec.Duration).
		Int64("size", rec.Size).
		Strs("files", rec.Files).
		Msg("recording saved")
	return rec, errors.Join(errs...)
}

// Recordings lists the takes saved so far, oldest first
func (r *Recorder) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recording(nil), r.history...)
}

// fileSafe turns a display name into a file name fragment
func fileSafe(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return unicode.ToLower(r)
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if s == "" {
		return "unknown"
	}
	return s
}
