package call

import (
	"context"
	"time"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
	"github.com/tomaslejdung/peepcall/pkg/media"
)

const unpublishTimeout = 5 * time.Second

func (s *Session) localSource(kind media.Kind) (media.Source, bool) {
	snap := s.registry.Snapshot()
	var src *media.Source
	switch kind {
	case media.LocalCamera:
		src = snap.LocalCamera
	case media.LocalScreen:
		src = snap.LocalScreen
	}
	if src == nil {
		return media.Source{}, false
	}
	return *src, true
}

// publish starts a local source without blocking the session goroutine
func (s *Session) publish(kind media.Kind) {
	if s.publishing[kind] {
		return
	}
	s.publishing[kind] = true

	ctx := s.ctx
	go func() {
		h, err := s.sig.Publish(ctx, kind)
		if s.do(func() { s.onPublished(kind, h, err) }) != nil && err == nil {
			// session ended while publishing
			uctx, cancel := context.WithTimeout(context.Background(), unpublishTimeout)
			defer cancel()
			s.sig.Unpublish(uctx, h)
		}
	}()
}

func (s *Session) onPublished(kind media.Kind, h media.Handle, err error) {
	delete(s.publishing, kind)
	if err != nil {
		s.logger.Error().Err(err).Str(plog.FieldKind, kind.String()).Msg("publish failed")
		text := "Could not start the camera"
		if kind == media.LocalScreen {
			text = "Could not start screen sharing"
		}
		s.presenter.Notify(Notice{Level: Error, Text: text})
		return
	}

	s.registry.Register(kind, "", media.Source{
		Owner:  s.cfg.Username,
		Label:  s.cfg.Username,
		Handle: h,
		State:  media.Ready,
	})
	s.logger.Info().Str(plog.FieldKind, kind.String()).Str(plog.FieldStreamID, h.StreamID()).Msg("published")

	switch kind {
	case media.LocalCamera:
		s.media.CameraOn = true
	case media.LocalScreen:
		s.setScreenShared(true)
		s.presenter.Notify(Notice{Level: Success, Text: "Screen sharing started"})
	}
	s.presenter.MediaStateChanged(s.media)
	s.scheduler.Schedule("published")
}

func (s *Session) unpublishAsync(h media.Handle) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), unpublishTimeout)
		defer cancel()
		if err := s.sig.Unpublish(ctx, h); err != nil {
			s.logger.Warn().Err(err).Str(plog.FieldStreamID, h.StreamID()).Msg("unpublish failed")
		}
	}()
}

func (s *Session) setScreenShared(on bool) {
	if s.media.ScreenShared == on {
		return
	}
	s.media.ScreenShared = on
	s.presenter.MediaStateChanged(s.media)
}

func (s *Session) stopScreenShare() {
	src, ok := s.localSource(media.LocalScreen)
	if !ok {
		return
	}
	s.registry.Unregister(media.LocalScreen, "")
	s.unpublishAsync(src.Handle)
	s.setScreenShared(false)
	s.presenter.Notify(Notice{Level: Info, Text: "Screen sharing stopped"})
	s.scheduler.Schedule("screen-stopped")
}

// ToggleScreenShare starts or stops sharing the screen. The camera stays
// published either way.
func (s *Session) ToggleScreenShare() error {
	return s.do(func() {
		if _, sharing := s.localSource(media.LocalScreen); sharing {
			s.stopScreenShare()
			return
		}
		if s.publishing[media.LocalScreen] {
			return
		}
		s.publish(media.LocalScreen)
	})
}

// ToggleCamera pauses or resumes the camera. A camera that was never
// published is published.
func (s *Session) ToggleCamera() error {
	return s.do(func() {
		if _, published := s.localSource(media.LocalCamera); !published {
			s.publish(media.LocalCamera)
			return
		}
		on := !s.media.CameraOn
		if err := s.sig.SetTrackEnabled(Camera, on); err != nil {
			s.logger.Warn().Err(err).Msg("toggle camera")
			s.presenter.Notify(Notice{Level: Error, Text: "Could not toggle the camera"})
			return
		}
		s.media.CameraOn = on
		s.presenter.MediaStateChanged(s.media)
		if on {
			s.presenter.Notify(Notice{Level: Info, Text: "Camera on"})
		} else {
			s.presenter.Notify(Notice{Level: Info, Text: "Camera off"})
		}
	})
}

// ToggleMic mutes or unmutes the microphone
func (s *Session) ToggleMic() error {
	return s.do(func() {
		on := !s.media.MicOn
		if err := s.sig.SetTrackEnabled(Microphone, on); err != nil {
			s.logger.Warn().Err(err).Msg("toggle microphone")
			s.presenter.Notify(Notice{Level: Error, Text: "Could not toggle the microphone"})
			return
		}
		s.media.MicOn = on
		s.presenter.MediaStateChanged(s.media)
		if on {
			s.presenter.Notify(Notice{Level: Info, Text: "Microphone on"})
		} else {
			s.presenter.Notify(Notice{Level: Info, Text: "Microphone muted"})
		}
	})
}
