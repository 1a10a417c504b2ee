package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	pmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/h264reader"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
	"github.com/tomaslejdung/peepcall/pkg/recording"
)

// sampleWriter is the part of a local track a feeder writes to
type sampleWriter interface {
	WriteSample(s pmedia.Sample) error
}

// micTap copies what the microphone sends into the recorder. Muted audio
// is never written, so it is never recorded either.
type micTap struct {
	track sampleWriter
	rec   *recording.Recorder
}

func (t micTap) WriteSample(s pmedia.Sample) error {
	t.rec.WriteSample(recording.LocalSource, s.Data, s.Duration)
	return t.track.WriteSample(s)
}

// frameSource yields timed samples from a media file
type frameSource interface {
	next() ([]byte, time.Duration, error)
	io.Closer
}

// feeder plays a media file into a local track in real time. While
// disabled it keeps its place in the file but writes nothing, which is how
// mute and camera-off work.
type feeder struct {
	path    string
	open    func(path string) (frameSource, error)
	track   sampleWriter
	loop    bool
	enabled atomic.Bool
	onEnd   func() // called once when a non-looping file runs out
	logger  zerolog.Logger
}

func newVideoFeeder(path string, codec CodecInfo, fps int, loop bool, track sampleWriter) *feeder {
	f := &feeder{
		path:   path,
		track:  track,
		loop:   loop,
		logger: plog.Component("feeder").With().Str("file", path).Str("codec", codec.Name).Logger(),
	}
	if codec.Type == CodecH264 {
		f.open = func(path string) (frameSource, error) { return openH264(path, fps) }
	} else {
		f.open = func(path string) (frameSource, error) { return openIVF(path, codec, fps) }
	}
	f.enabled.Store(true)
	return f
}

func newAudioFeeder(path string, loop bool, track sampleWriter) *feeder {
	f := &feeder{
		path:   path,
		open:   openOgg,
		track:  track,
		loop:   loop,
		logger: plog.Component("feeder").With().Str("file", path).Str("codec", "opus").Logger(),
	}
	f.enabled.Store(true)
	return f
}

// SetEnabled pauses or resumes writing samples
func (f *feeder) SetEnabled(on bool) {
	f.enabled.Store(on)
}

// Enabled reports whether samples are being written
func (f *feeder) Enabled() bool {
	return f.enabled.Load()
}

// Run plays the file until ctx is done or, without looping, the file ends
func (f *feeder) Run(ctx context.Context) error {
	src, err := f.open(f.path)
	if err != nil {
		return err
	}
	defer func() {
		if src != nil {
			src.Close()
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	frames := 0
	for {
		data, d, err := src.next()
		if errors.Is(err, io.EOF) {
			src.Close()
			src = nil
			if frames == 0 {
				return fmt.Errorf("%s has no media", f.path)
			}
			if !f.loop {
				f.logger.Info().Msg("end of file")
				if f.onEnd != nil {
					f.onEnd()
				}
				return nil
			}
			if src, err = f.open(f.path); err != nil {
				return err
			}
			frames = 0
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", f.path, err)
		}
		frames++

		timer.Reset(d)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if !f.enabled.Load() {
			continue
		}
		if err := f.track.WriteSample(pmedia.Sample{Data: data, Duration: d}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			f.logger.Debug().Err(err).Msg("write sample")
		}
	}
}

type ivfSource struct {
	file  *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func openIVF(path string, codec CodecInfo, fps int) (frameSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	if err := codec.checkFourCC(header.FourCC); err != nil {
		file.Close()
		return nil, err
	}

	frame := frameDuration(fps)
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frame = time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
	}
	return &ivfSource{file: file, r: r, frame: frame}, nil
}

func (s *ivfSource) next() ([]byte, time.Duration, error) {
	frame, _, err := s.r.ParseNextFrame()
	if err != nil {
		return nil, 0, err
	}
	return frame, s.frame, nil
}

func (s *ivfSource) Close() error { return s.file.Close() }

type h264Source struct {
	file  *os.File
	r     *h264reader.H264Reader
	frame time.Duration
}

func openH264(path string, fps int) (frameSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := h264reader.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open h264 stream: %w", err)
	}
	return &h264Source{file: file, r: r, frame: frameDuration(fps)}, nil
}

func (s *h264Source) next() ([]byte, time.Duration, error) {
	nal, err := s.r.NextNAL()
	if err != nil {
		return nil, 0, err
	}
	return nal.Data, s.frame, nil
}

func (s *h264Source) Close() error { return s.file.Close() }

// opus runs at 48kHz regardless of the input rate
const opusClockRate = 48000

type oggSource struct {
	file        *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

func openOgg(path string) (frameSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	return &oggSource{file: file, r: r}, nil
}

func (s *oggSource) next() ([]byte, time.Duration, error) {
	for {
		page, header, err := s.r.ParseNextPage()
		if err != nil {
			return nil, 0, err
		}
		samples := header.GranulePosition - s.lastGranule
		s.lastGranule = header.GranulePosition
		d := time.Duration(samples) * time.Second / opusClockRate
		if d <= 0 {
			// header and comment pages
			continue
		}
		return page, d, nil
	}
}

func (s *oggSource) Close() error { return s.file.Close() }
