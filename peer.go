package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	"github.com/tomaslejdung/peepcall/pkg/call"
	"github.com/tomaslejdung/peepcall/pkg/config"
	plog "github.com/tomaslejdung/peepcall/pkg/log"
	"github.com/tomaslejdung/peepcall/pkg/media"
	"github.com/tomaslejdung/peepcall/pkg/recording"
	"github.com/tomaslejdung/peepcall/pkg/signal"
)

// iceConfiguration builds the pion configuration for the ICE settings
func iceConfiguration(ice config.ICEConfig) webrtc.Configuration {
	iceServers := make([]webrtc.ICEServer, 0)

	if !ice.ForceRelay && len(ice.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: ice.STUNServers})
	}

	if ice.TURNServer != "" {
		turnServer := webrtc.ICEServer{
			URLs: []string{ice.TURNServer},
		}
		if ice.TURNUser != "" {
			turnServer.Username = ice.TURNUser
			turnServer.Credential = ice.TURNPass
			turnServer.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, turnServer)
	}

	iceTransportPolicy := webrtc.ICETransportPolicyAll
	if ice.ForceRelay {
		iceTransportPolicy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: iceTransportPolicy,
	}
}

// dialFunc joins the room. previous is the connection ID being replaced,
// empty on the first join.
type dialFunc func(ctx context.Context, previous string) (signal.Transport, error)

// websocketDialer joins through a remote signal server
func websocketDialer(signalURL string, p signal.JoinParams, timeout time.Duration) dialFunc {
	return func(ctx context.Context, previous string) (signal.Transport, error) {
		return signal.Dial(ctx, signalURL, p, signal.DialOptions{HandshakeTimeout: timeout, Previous: previous})
	}
}

// localDialer joins through a signal server running in this process
func localDialer(srv *signal.Server, p signal.JoinParams) dialFunc {
	return func(_ context.Context, previous string) (signal.Transport, error) {
		return srv.ConnectLocal(p, previous)
	}
}

// localStream is a source this client publishes
type localStream struct {
	id     string
	kind   media.Kind
	tracks []*webrtc.TrackLocalStaticSample
	video  *feeder
	audio  *feeder
	cancel context.CancelFunc
}

func (s *localStream) StreamID() string { return s.id }

func (s *localStream) info(connID string) *signal.StreamInfo {
	return &signal.StreamInfo{
		StreamID:     s.id,
		ConnectionID: connID,
		ScreenShare:  s.kind == media.LocalScreen,
		HasAudio:     s.audio != nil,
		HasVideo:     true,
	}
}

// remoteStream is the handle of a stream received from a peer
type remoteStream struct {
	id      string
	owner   string
	tracks  atomic.Int32
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (s *remoteStream) StreamID() string { return s.id }

// Stats returns the packets and bytes received so far
func (s *remoteStream) Stats() (packets, bytes uint64) {
	return s.packets.Load(), s.bytes.Load()
}

// peer is the connection to one remote participant
type peer struct {
	id      string
	data    string
	pc      *webrtc.PeerConnection
	senders map[string][]*webrtc.RTPSender // local stream ID -> senders, guarded by PeerClient.mu
	dirty   atomic.Bool                    // local tracks changed since the last offer

	mu         sync.Mutex // serializes negotiation
	pendingICE []webrtc.ICECandidateInit

	streamsMu sync.Mutex
	streams   map[string]*remoteStream

	stateMu     sync.Mutex
	wasUp       bool // reached Connected at least once
	interrupted bool // dropped to Disconnected since
}

// mediaEvent maps a PeerConnection state change to the call event it
// implies, if any. ICE retries on its own from Disconnected; Failed is
// final and needs a full reconnect.
func (p *peer) mediaEvent(state webrtc.PeerConnectionState) call.Event {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.wasUp = true
		if p.interrupted {
			p.interrupted = false
			return call.Reconnected{}
		}
	case webrtc.PeerConnectionStateDisconnected:
		if p.wasUp && !p.interrupted {
			p.interrupted = true
			return call.Reconnecting{}
		}
	case webrtc.PeerConnectionStateFailed:
		p.interrupted = false
		return call.Disconnected{Reason: "media connection failed"}
	}
	return nil
}

// PeerClient is the signaling and media layer of a call. It holds one
// PeerConnection per remote participant and implements call.Signaling.
type PeerClient struct {
	dial      dialFunc
	rtc       webrtc.Configuration
	publisher config.PublisherConfig
	codec     CodecInfo
	logger    zerolog.Logger

	sinkMu sync.RWMutex
	sink   func(call.Event) error

	recorder *recording.Recorder // set before Connect, may be nil

	mu        sync.Mutex
	transport signal.Transport
	connID    string
	peers     map[string]*peer
	streams   map[string]*localStream
	micOn     bool
	cameraOn  bool
	ctx       context.Context
	cancel    context.CancelFunc
}

var _ call.Signaling = (*PeerClient)(nil)

// NewPeerClient creates a client. Nothing is sent until Connect.
func NewPeerClient(dial dialFunc, ice config.ICEConfig, pub config.PublisherConfig) (*PeerClient, error) {
	codec := CodecByType(ParseCodecFlag(pub.Codec))
	if codec == nil {
		return nil, fmt.Errorf("unsupported codec %q", pub.Codec)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerClient{
		dial:      dial,
		rtc:       iceConfiguration(ice),
		publisher: pub,
		codec:     *codec,
		logger:    plog.Component("peer"),
		peers:     make(map[string]*peer),
		streams:   make(map[string]*localStream),
		micOn:     true,
		cameraOn:  true,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetSink sets where call events go, normally Session.Deliver
func (c *PeerClient) SetSink(sink func(call.Event) error) {
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

// SetRecorder routes the local microphone and incoming Opus tracks into
// rec. It must be called before Connect.
func (c *PeerClient) SetRecorder(rec *recording.Recorder) {
	c.recorder = rec
}

// emit must not be called with c.mu or a peer lock held; the session may
// be calling into the client at the same time.
func (c *PeerClient) emit(ev call.Event) {
	c.sinkMu.RLock()
	sink := c.sink
	c.sinkMu.RUnlock()
	if sink == nil {
		return
	}
	if err := sink(ev); err != nil {
		c.logger.Debug().Err(err).Msg("event dropped")
	}
}

// Connect joins the room for the first time
func (c *PeerClient) Connect(ctx context.Context) error {
	t, err := c.dial(ctx, "")
	if err != nil {
		return err
	}
	c.attach(t)
	return nil
}

// ConnectionID returns this client's ID in the room
func (c *PeerClient) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// attach makes t the current transport and replays the room it joined
func (c *PeerClient) attach(t signal.Transport) {
	joined := t.Joined()

	c.mu.Lock()
	c.transport = t
	c.connID = joined.ConnectionID
	local := make([]*localStream, 0, len(c.streams))
	for _, s := range c.streams {
		local = append(local, s)
	}
	c.mu.Unlock()

	c.logger.Info().
		Str(plog.FieldRoom, joined.Room).
		Str(plog.FieldConnectionID, joined.ConnectionID).
		Int("participants", len(joined.Participants)).
		Msg("joined room")

	t.SetDisconnectHandler(func(err error) {
		if !c.isCurrent(t) {
			return
		}
		reason := "signal connection lost"
		if err != nil {
			reason = err.Error()
		}
		c.logger.Warn().Str(plog.FieldReason, reason).Msg("disconnected")
		c.emit(call.Disconnected{Reason: reason})
	})
	go c.readLoop(t)

	for _, p := range joined.Participants {
		c.emit(call.ConnectionCreated{ConnectionID: p.ConnectionID, Data: p.Data})
	}
	for _, st := range joined.Streams {
		c.emit(call.StreamCreated{
			ConnectionID: st.ConnectionID,
			Data:         c.participantData(joined, st.ConnectionID),
			StreamID:     st.StreamID,
			ScreenShare:  st.ScreenShare,
		})
	}

	for _, s := range local {
		if err := t.Send(signal.Message{Type: signal.TypeStreamCreated, Stream: s.info(joined.ConnectionID)}); err != nil {
			c.logger.Warn().Err(err).Str(plog.FieldStreamID, s.id).Msg("announce stream")
		}
	}
	for _, p := range joined.Participants {
		if pr, err := c.ensurePeer(p.ConnectionID, p.Data); err == nil && pr.dirty.Load() {
			go c.negotiate(pr)
		}
	}
}

func (c *PeerClient) participantData(joined signal.Message, connID string) string {
	for _, p := range joined.Participants {
		if p.ConnectionID == connID {
			return p.Data
		}
	}
	return ""
}

func (c *PeerClient) isCurrent(t signal.Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport == t
}

func (c *PeerClient) readLoop(t signal.Transport) {
	for msg := range t.Messages() {
		if !c.isCurrent(t) {
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *PeerClient) handleMessage(msg signal.Message) {
	switch msg.Type {
	case signal.TypeParticipantJoined:
		c.emit(call.ConnectionCreated{ConnectionID: msg.ConnectionID, Data: msg.Data})
		p, err := c.ensurePeer(msg.ConnectionID, msg.Data)
		if err != nil {
			c.logger.Error().Err(err).Msg("create peer connection")
			return
		}
		if p.dirty.Load() {
			go c.negotiate(p)
		}

	case signal.TypeParticipantLeft:
		c.removePeer(msg.ConnectionID)
		c.emit(call.ConnectionDestroyed{ConnectionID: msg.ConnectionID})

	case signal.TypeOffer:
		go c.onOffer(msg.ConnectionID, msg.SDP)

	case signal.TypeAnswer:
		go c.onAnswer(msg.ConnectionID, msg.SDP)

	case signal.TypeICE:
		go c.onICE(msg.ConnectionID, msg.Candidate)

	case signal.TypeStreamCreated:
		if msg.Stream == nil {
			return
		}
		owner := msg.Stream.ConnectionID
		if owner == "" {
			owner = msg.ConnectionID
		}
		ev := call.StreamCreated{
			ConnectionID: owner,
			Data:         msg.Data,
			StreamID:     msg.Stream.StreamID,
			ScreenShare:  msg.Stream.ScreenShare,
		}
		if rs := c.remoteStream(owner, msg.Stream.StreamID); rs != nil {
			ev.Handle = rs
		}
		c.emit(ev)

	case signal.TypeStreamDestroyed:
		if msg.Stream == nil {
			return
		}
		c.forgetRemoteStream(msg.ConnectionID, msg.Stream.StreamID)
		c.emit(call.StreamDestroyed{StreamID: msg.Stream.StreamID})

	case signal.TypeChat, signal.TypeFile:
		c.emit(call.SignalReceived{Type: msg.Type, From: msg.ConnectionID, Data: msg.Data, Payload: msg.Payload})

	case signal.TypeError:
		c.logger.Warn().Str("code", msg.Code).Str("error", msg.Error).Msg("signal server error")
	}
}

// ensurePeer returns the connection to id, creating it with every local
// stream attached
func (c *PeerClient) ensurePeer(id, data string) (*peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.peers[id]; ok {
		if data != "" {
			p.data = data
		}
		return p, nil
	}

	pc, err := webrtc.NewPeerConnection(c.rtc)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	p := &peer{
		id:      id,
		data:    data,
		pc:      pc,
		senders: make(map[string][]*webrtc.RTPSender),
		streams: make(map[string]*remoteStream),
	}
	for _, s := range c.streams {
		if err := p.addStream(s); err != nil {
			c.logger.Warn().Err(err).Str(plog.FieldStreamID, s.id).Msg("attach stream to new peer")
		}
	}

	logger := c.logger.With().Str("peer", id).Logger()
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rs := p.remoteStream(track.StreamID())
		first := rs.tracks.Add(1) == 1
		logger.Info().
			Str(plog.FieldStreamID, track.StreamID()).
			Str(plog.FieldKind, track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Msg("remote track")
		if first {
			c.emit(call.StreamReady{StreamID: rs.id, Handle: rs})
		}
		var rec *recording.Recorder
		if track.Kind() == webrtc.RTPCodecTypeAudio && strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
			rec = c.recorder
		}
		c.mu.Lock()
		data := p.data
		c.mu.Unlock()
		go drain(track, rs, rec, signal.LabelFor(data, id))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Info().Str(plog.FieldState, state.String()).Msg("peer connection state")
		if state == webrtc.PeerConnectionStateConnected {
			logger.Info().Str("type", detectConnectionType(pc)).Msg("peer connected")
		}
		if !c.isCurrentPeer(p) {
			return
		}
		if ev := p.mediaEvent(state); ev != nil {
			c.emit(ev)
		}
	})

	c.peers[id] = p
	return p, nil
}

func (c *PeerClient) removePeer(id string) {
	c.mu.Lock()
	p, ok := c.peers[id]
	delete(c.peers, id)
	c.mu.Unlock()
	if ok {
		p.pc.Close()
	}
}

// isCurrentPeer reports whether p is still the live connection to its
// participant, not one dropped by a reconnect or a leave
func (c *PeerClient) isCurrentPeer(p *peer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[p.id] == p
}

func (c *PeerClient) peer(id string) (*peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[id]
	return p, ok
}

func (c *PeerClient) remoteStream(owner, streamID string) *remoteStream {
	p, ok := c.peer(owner)
	if !ok {
		return nil
	}
	p.streamsMu.Lock()
	defer p.streamsMu.Unlock()
	return p.streams[streamID]
}

func (c *PeerClient) forgetRemoteStream(owner, streamID string) {
	if p, ok := c.peer(owner); ok {
		p.streamsMu.Lock()
		delete(p.streams, streamID)
		p.streamsMu.Unlock()
	}
}

func (p *peer) remoteStream(id string) *remoteStream {
	p.streamsMu.Lock()
	defer p.streamsMu.Unlock()
	rs, ok := p.streams[id]
	if !ok {
		rs = &remoteStream{id: id, owner: p.id}
		p.streams[id] = rs
	}
	return rs
}

// addStream attaches the tracks of s. The caller renegotiates.
func (p *peer) addStream(s *localStream) error {
	if _, ok := p.senders[s.id]; ok {
		return nil
	}
	for _, track := range s.tracks {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add track %s: %w", track.ID(), err)
		}
		p.senders[s.id] = append(p.senders[s.id], sender)
		go drainRTCP(sender)
	}
	p.dirty.Store(true)
	return nil
}

// removeStream detaches the tracks of stream id. The caller renegotiates.
func (p *peer) removeStream(id string) {
	senders, ok := p.senders[id]
	if !ok {
		return
	}
	for _, sender := range senders {
		// fails only once the connection is closed
		p.pc.RemoveTrack(sender)
	}
	delete(p.senders, id)
	p.dirty.Store(true)
}

// drain reads a remote track so its buffers do not fill. There is no
// renderer; the counters feed the stats view. With rec set, packets are
// recorded under source while a take runs.
func drain(track *webrtc.TrackRemote, rs *remoteStream, rec *recording.Recorder, source string) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		rs.packets.Add(1)
		rs.bytes.Add(uint64(n))

		if rec != nil && rec.Active() {
			pkt := &rtp.Packet{}
			if err := pkt.Unmarshal(buf[:n]); err == nil {
				rec.WriteRTP(source, pkt)
			}
		}
	}
}

// drainRTCP reads RTCP for a sender so interceptors such as NACK work
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// negotiate sends a fresh offer to p. If an exchange is already under way
// the offer is sent once it completes.
func (c *PeerClient) negotiate(p *peer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	if p.pc.SignalingState() != webrtc.SignalingStateStable {
		p.dirty.Store(true)
		return
	}
	p.dirty.Store(false)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		c.logger.Error().Err(err).Str("peer", p.id).Msg("failed to create offer")
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		c.logger.Error().Err(err).Str("peer", p.id).Msg("failed to set local description")
		return
	}
	<-gatherComplete

	c.send(signal.Message{Type: signal.TypeOffer, To: p.id, SDP: p.pc.LocalDescription().SDP})
}

// onOffer answers an offer. On a collision the peer with the larger
// connection ID yields and rolls back its own offer.
func (c *PeerClient) onOffer(from, sdp string) {
	p, err := c.ensurePeer(from, "")
	if err != nil {
		c.logger.Error().Err(err).Msg("create peer connection")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.SignalingState() != webrtc.SignalingStateStable {
		if c.ConnectionID() < from {
			c.logger.Debug().Str("peer", from).Msg("offer collision, keeping ours")
			return
		}
		if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			c.logger.Error().Err(err).Str("peer", from).Msg("rollback failed")
			return
		}
		p.dirty.Store(true)
	}

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		c.logger.Error().Err(err).Str("peer", from).Msg("failed to set remote offer")
		return
	}
	p.flushICE(c.logger)

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		c.logger.Error().Err(err).Str("peer", from).Msg("failed to create answer")
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		c.logger.Error().Err(err).Str("peer", from).Msg("failed to set local description")
		return
	}
	<-gatherComplete

	c.send(signal.Message{Type: signal.TypeAnswer, To: from, SDP: p.pc.LocalDescription().SDP})
	if p.dirty.Load() {
		go c.negotiate(p)
	}
}

func (c *PeerClient) onAnswer(from, sdp string) {
	p, ok := c.peer(from)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		c.logger.Debug().Str("peer", from).Msg("unexpected answer ignored")
		return
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.logger.Error().Err(err).Str("peer", from).Msg("failed to set remote answer")
		return
	}
	p.flushICE(c.logger)
	if p.dirty.Load() {
		go c.negotiate(p)
	}
}

func (c *PeerClient) onICE(from, candidateJSON string) {
	p, ok := c.peer(from)
	if !ok {
		return
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		c.logger.Warn().Err(err).Msg("failed to parse ICE candidate")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pc.RemoteDescription() == nil {
		p.pendingICE = append(p.pendingICE, candidate)
		return
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		c.logger.Warn().Err(err).Str("peer", from).Msg("failed to add ICE candidate")
	}
}

// flushICE applies candidates that arrived before the remote description.
// Callers hold p.mu.
func (p *peer) flushICE(logger zerolog.Logger) {
	for _, candidate := range p.pendingICE {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			logger.Warn().Err(err).Str("peer", p.id).Msg("failed to add ICE candidate")
		}
	}
	p.pendingICE = nil
}

// detectConnectionType checks if connection is direct or relayed
func detectConnectionType(pc *webrtc.PeerConnection) string {
	stats := pc.GetStats()

	for _, stat := range stats {
		candidatePair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || candidatePair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		for _, s := range stats {
			localCandidate, ok := s.(webrtc.ICECandidateStats)
			if !ok || localCandidate.ID != candidatePair.LocalCandidateID {
				continue
			}
			if localCandidate.CandidateType == webrtc.ICECandidateTypeRelay {
				return "relay"
			}
			return "direct"
		}
	}
	return "unknown"
}

func (c *PeerClient) send(msg signal.Message) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Send(msg); err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type).Msg("signal send failed")
	}
}

// Publish creates the tracks for a local source, attaches them to every
// peer and announces the stream to the room
func (c *PeerClient) Publish(ctx context.Context, kind media.Kind) (media.Handle, error) {
	s, err := c.newLocalStream(kind)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.streams[s.id] = s
	connID := c.connID
	peers := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		if err := p.addStream(s); err != nil {
			c.logger.Warn().Err(err).Str("peer", p.id).Msg("attach stream")
			continue
		}
		peers = append(peers, p)
	}
	c.mu.Unlock()

	c.startFeeders(s)
	for _, p := range peers {
		go c.negotiate(p)
	}
	c.send(signal.Message{Type: signal.TypeStreamCreated, Stream: s.info(connID)})

	c.logger.Info().Str(plog.FieldKind, kind.String()).Str(plog.FieldStreamID, s.id).Msg("published")
	return s, nil
}

func (c *PeerClient) newLocalStream(kind media.Kind) (*localStream, error) {
	id := uuid.NewString()
	s := &localStream{id: id, kind: kind}

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: c.codec.MimeType},
		"video-"+kind.String(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	s.tracks = append(s.tracks, video)

	path := c.publisher.CameraFile
	loop := c.publisher.Loop
	if kind == media.LocalScreen {
		path = c.publisher.ScreenFile
	}
	if path != "" {
		s.video = newVideoFeeder(path, c.codec, c.publisher.FPS, loop, video)
		if kind == media.LocalScreen {
			s.video.onEnd = func() { c.emit(call.StreamEnded{StreamID: id}) }
		}
	}

	if kind == media.LocalCamera && c.publisher.MicFile != "" {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio",
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		s.tracks = append(s.tracks, audio)
		var w sampleWriter = audio
		if c.recorder != nil {
			w = micTap{track: audio, rec: c.recorder}
		}
		s.audio = newAudioFeeder(c.publisher.MicFile, true, w)
	}

	c.mu.Lock()
	if s.video != nil && kind == media.LocalCamera {
		s.video.SetEnabled(c.cameraOn)
	}
	if s.audio != nil {
		s.audio.SetEnabled(c.micOn)
	}
	c.mu.Unlock()
	return s, nil
}

func (c *PeerClient) startFeeders(s *localStream) {
	ctx, cancel := context.WithCancel(c.ctx)
	s.cancel = cancel
	for _, f := range []*feeder{s.video, s.audio} {
		if f == nil {
			continue
		}
		go func(f *feeder) {
			if err := f.Run(ctx); err != nil {
				c.logger.Error().Err(err).Str(plog.FieldStreamID, s.id).Msg("media feeder stopped")
			}
		}(f)
	}
}

// Unpublish detaches a local source from every peer and tells the room
func (c *PeerClient) Unpublish(ctx context.Context, h media.Handle) error {
	if h == nil {
		return nil
	}
	c.mu.Lock()
	s, ok := c.streams[h.StreamID()]
	delete(c.streams, h.StreamID())
	connID := c.connID
	peers := make([]*peer, 0, len(c.peers))
	for _, p := range c.peers {
		p.removeStream(h.StreamID())
		peers = append(peers, p)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, p := range peers {
		go c.negotiate(p)
	}
	c.send(signal.Message{Type: signal.TypeStreamDestroyed, Stream: s.info(connID)})
	c.logger.Info().Str(plog.FieldKind, s.kind.String()).Str(plog.FieldStreamID, s.id).Msg("unpublished")
	return nil
}

// SetTrackEnabled pauses or resumes the camera or microphone feeder. The
// setting also applies to sources published later.
func (c *PeerClient) SetTrackEnabled(track call.Track, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch track {
	case call.Camera:
		c.cameraOn = enabled
	case call.Microphone:
		c.micOn = enabled
	}
	for _, s := range c.streams {
		if s.kind != media.LocalCamera {
			continue
		}
		if track == call.Camera && s.video != nil {
			s.video.SetEnabled(enabled)
		}
		if track == call.Microphone && s.audio != nil {
			s.audio.SetEnabled(enabled)
		}
	}
	return nil
}

// Reconnect drops the current connection and every peer, then joins again
// in place of the old connection ID. Local sources are kept and announced
// again.
func (c *PeerClient) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old := c.transport
	previous := c.connID
	peers := c.peers
	c.transport = nil
	c.peers = make(map[string]*peer)
	c.mu.Unlock()

	if old != nil {
		old.SetDisconnectHandler(nil)
		old.Close()
	}
	for _, p := range peers {
		p.pc.Close()
	}

	t, err := c.dial(ctx, previous)
	if err != nil {
		return err
	}
	c.attach(t)
	return nil
}

// Send delivers an application message to the room
func (c *PeerClient) Send(_ context.Context, typ string, payload json.RawMessage) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return signal.ErrTransportClosed
	}
	return t.Send(signal.Message{Type: typ, Payload: payload})
}

// Close leaves the room and releases every connection
func (c *PeerClient) Close() error {
	c.cancel()

	c.mu.Lock()
	t := c.transport
	peers := c.peers
	c.transport = nil
	c.peers = make(map[string]*peer)
	c.mu.Unlock()

	for _, p := range peers {
		p.pc.Close()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}
