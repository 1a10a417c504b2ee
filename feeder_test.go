package main

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	pmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaslejdung/peepcall/pkg/recording"
)

type recordingWriter struct {
	mu      sync.Mutex
	samples []pmedia.Sample
}

func (w *recordingWriter) WriteSample(s pmedia.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// writeIVF writes an IVF file with a 1ms timebase and the given frames
func writeIVF(t *testing.T, fourcc string, frames ...[]byte) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)  // version
	binary.LittleEndian.PutUint16(header[6:], 32) // header size
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 64)   // width
	binary.LittleEndian.PutUint16(header[14:], 48)   // height
	binary.LittleEndian.PutUint32(header[16:], 1000) // timebase denominator
	binary.LittleEndian.PutUint32(header[20:], 1)    // timebase numerator
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))

	data := header
	for i, f := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		data = append(data, fh...)
		data = append(data, f...)
	}

	path := filepath.Join(t.TempDir(), "camera.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func vp8() CodecInfo {
	return *CodecByType(CodecVP8)
}

func TestFeederPlaysFileOnce(t *testing.T) {
	path := writeIVF(t, "VP80", []byte{1}, []byte{2, 2}, []byte{3, 3, 3})
	w := &recordingWriter{}
	f := newVideoFeeder(path, vp8(), 30, false, w)

	ended := make(chan struct{})
	f.onEnd = func() { close(ended) }

	require.NoError(t, f.Run(context.Background()))

	select {
	case <-ended:
	default:
		t.Fatal("onEnd was not called")
	}
	require.Len(t, w.samples, 3)
	assert.Equal(t, []byte{2, 2}, w.samples[1].Data)
	for _, s := range w.samples {
		assert.Equal(t, time.Millisecond, s.Duration)
	}
}

func TestFeederDisabledWritesNothing(t *testing.T) {
	path := writeIVF(t, "VP80", []byte{1}, []byte{2})
	w := &recordingWriter{}
	f := newVideoFeeder(path, vp8(), 30, false, w)
	f.SetEnabled(false)
	assert.False(t, f.Enabled())

	require.NoError(t, f.Run(context.Background()))
	assert.Zero(t, w.count())
}

func TestFeederLoops(t *testing.T) {
	path := writeIVF(t, "VP80", []byte{1}, []byte{2})
	w := &recordingWriter{}
	f := newVideoFeeder(path, vp8(), 30, true, w)
	f.onEnd = func() { t.Error("onEnd called while looping") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return w.count() >= 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestFeederErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newVideoFeeder(filepath.Join(t.TempDir(), "nope.ivf"), vp8(), 30, false, &recordingWriter{})
		assert.Error(t, f.Run(context.Background()))
	})

	t.Run("codec mismatch", func(t *testing.T) {
		path := writeIVF(t, "VP90", []byte{1})
		f := newVideoFeeder(path, vp8(), 30, false, &recordingWriter{})
		err := f.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("no frames", func(t *testing.T) {
		path := writeIVF(t, "VP80")
		f := newVideoFeeder(path, vp8(), 30, true, &recordingWriter{})
		err := f.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no media")
	})
}

func TestFeederStopsOnCancel(t *testing.T) {
	path := writeIVF(t, "VP80", []byte{1})
	w := &recordingWriter{}
	f := newVideoFeeder(path, vp8(), 30, true, w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.Run(ctx))
}

// writeOgg writes an Ogg/Opus file with one 20ms packet per payload
func writeOgg(t *testing.T, payloads ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mic.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i, p := range payloads {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: 1000 + uint32(i)*960},
			Payload: p,
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestAudioFeederPlaysOgg(t *testing.T) {
	path := writeOgg(t, []byte{0xfc, 1}, []byte{0xfc, 2}, []byte{0xfc, 3})
	w := &recordingWriter{}
	f := newAudioFeeder(path, false, w)

	require.NoError(t, f.Run(context.Background()))
	require.Equal(t, 3, w.count())
	assert.Equal(t, []byte{0xfc, 2}, w.samples[1].Data)
	assert.Equal(t, 20*time.Millisecond, w.samples[2].Duration)
}

func TestMicTapRecordsWhatIsSent(t *testing.T) {
	rec := recording.New(t.TempDir(), recording.WithLogger(zerolog.Nop()))
	w := &recordingWriter{}
	tap := micTap{track: w, rec: rec}

	// nothing is recorded before a take starts
	require.NoError(t, tap.WriteSample(pmedia.Sample{Data: []byte{0xfc, 0}, Duration: 20 * time.Millisecond}))

	require.NoError(t, rec.Start())
	for i := 1; i <= 3; i++ {
		require.NoError(t, tap.WriteSample(pmedia.Sample{Data: []byte{0xfc, byte(i)}, Duration: 20 * time.Millisecond}))
	}
	r, err := rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, 4, w.count())
	require.Len(t, r.Files, 1)
	assert.Contains(t, filepath.Base(r.Files[0]), recording.LocalSource)
}
