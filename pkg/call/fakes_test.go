package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/media"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
)

type fakeHandle string

func (h fakeHandle) StreamID() string { return string(h) }

type sentMessage struct {
	typ     string
	payload json.RawMessage
}

type fakeSignaling struct {
	mu          sync.Mutex
	id          string
	published   []media.Kind
	unpublished []string
	enabled     map[Track]bool
	sent        []sentMessage
	reconnects  int
	reconnect   func(n int) error
	publishErr  error
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{id: "self-conn", enabled: map[Track]bool{Microphone: true, Camera: true}}
}

func (f *fakeSignaling) ConnectionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSignaling) Publish(_ context.Context, kind media.Kind) (media.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, kind)
	if kind == media.LocalScreen {
		return fakeHandle("self-screen"), nil
	}
	return fakeHandle("self-cam"), nil
}

func (f *fakeSignaling) Unpublish(_ context.Context, h media.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpublished = append(f.unpublished, h.StreamID())
	return nil
}

func (f *fakeSignaling) SetTrackEnabled(track Track, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[track] = enabled
	return nil
}

func (f *fakeSignaling) Reconnect(context.Context) error {
	f.mu.Lock()
	f.reconnects++
	n := f.reconnects
	fn := f.reconnect
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(n)
}

func (f *fakeSignaling) Send(_ context.Context, typ string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{typ: typ, payload: payload})
	return nil
}

func (f *fakeSignaling) lastSent() (sentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}, errors.New("nothing sent")
	}
	return f.sent[len(f.sent)-1], nil
}

type fakePresenter struct {
	mu           sync.Mutex
	slots        map[layout.Slot]layout.Assignment
	setCalls     int
	statuses     []reconnect.Status
	notices      []Notice
	chats        []ChatMessage
	files        []SharedFile
	participants []Participant
	media        MediaState
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{slots: make(map[layout.Slot]layout.Assignment)}
}

func (p *fakePresenter) SetSlot(a layout.Assignment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[a.Slot] = a
	p.setCalls++
}

func (p *fakePresenter) ClearSlot(slot layout.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, slot)
	p.setCalls++
}

func (p *fakePresenter) SetConnectionStatus(st reconnect.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
}

func (p *fakePresenter) Notify(n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
}

func (p *fakePresenter) ChatReceived(m ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, m)
}

func (p *fakePresenter) FileReceived(f SharedFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, f)
}

func (p *fakePresenter) ParticipantsChanged(ps []Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.participants = ps
}

func (p *fakePresenter) MediaStateChanged(ms MediaState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = ms
}

// slot returns the source key shown in slot, "" when empty
func (p *fakePresenter) slot(s layout.Slot) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.slots[s]
	if !ok || a.Source == nil {
		return ""
	}
	return a.Source.Key()
}

func (p *fakePresenter) lastStatus() reconnect.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return reconnect.Status{}
	}
	return p.statuses[len(p.statuses)-1]
}

func (p *fakePresenter) noticeTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.notices))
	for _, n := range p.notices {
		out = append(out, n.Text)
	}
	return out
}

func (p *fakePresenter) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setCalls
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) layout.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		t.f()
	}
}

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *waitRecorder) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}
