package audiodev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	opus "gopkg.in/hraban/opus.v2"
)

// opusRate is the decode rate of the robot's Opus stream.
const opusRate = 48000

// maxOpusFrame is the largest decoded Opus frame (120ms at 48kHz).
const maxOpusFrame = 5760

// WebRTCSource pulls the robot's microphone over WebRTC. It speaks the
// GStreamer signalling protocol on the robot: welcome, producer list,
// session, then SDP/ICE exchange until the audio track arrives.
type WebRTCSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	gate    *frameGate
	stopCh  chan struct{}

	ws      *websocket.Conn
	wsMutex sync.Mutex
	pc      *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  string

	// Pending PCM at the configured rate, sliced into frames as it
	// fills.
	pending []int16

	// Stats
	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
	packets     atomic.Int64
	decodeErrs  atomic.Int64

	trackReady chan struct{}
}

// newWebRTCSource creates a WebRTC audio source. The connection is
// established by Start.
func newWebRTCSource(cfg Config, logger *slog.Logger) (*WebRTCSource, error) {
	if cfg.SignalURL == "" {
		return nil, fmt.Errorf("webrtc source requires signal_url")
	}
	return &WebRTCSource{
		cfg:        cfg,
		logger:     logger,
		gate:       newFrameGate(32),
		stopCh:     make(chan struct{}),
		trackReady: make(chan struct{}),
	}, nil
}

// Start connects to the signalling server and negotiates the audio
// session. It returns once RTP is flowing or the attempt times out.
func (s *WebRTCSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.gate = newFrameGate(32)
	s.trackReady = make(chan struct{})
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.Stop()
		return err
	}

	select {
	case <-s.trackReady:
		s.logger.Info("webrtc audio connected", "producer", s.cfg.Producer)
		return nil
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	case <-time.After(15 * time.Second):
		s.Stop()
		return fmt.Errorf("timeout waiting for audio track")
	}
}

func (s *WebRTCSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, s.cfg.SignalURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}
	s.ws = ws

	if err := s.waitForWelcome(); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	if err := s.findProducer(); err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	if err := s.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	if err := s.startSession(); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	go s.handleSignalling()
	return nil
}

func (s *WebRTCSource) waitForWelcome() error {
	s.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := s.ws.ReadMessage()
	s.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	s.myPeerID = welcome.PeerID
	return nil
}

func (s *WebRTCSource) findProducer() error {
	s.writeSignal(map[string]string{"type": "list"})

	s.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := s.ws.ReadMessage()
	s.ws.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}

	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &listResp); err != nil {
		return err
	}

	for _, p := range listResp.Producers {
		if name, ok := p.Meta["name"]; ok && name == s.cfg.Producer {
			s.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found among %d producers", s.cfg.Producer, len(listResp.Producers))
}

func (s *WebRTCSource) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	s.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Info("audio track attached", "codec", track.Codec().MimeType)
		go s.decodeLoop(track)
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || s.sessionID == "" {
			return
		}
		init := candidate.ToJSON()
		s.writeSignal(map[string]any{
			"type":      "peer",
			"sessionId": s.sessionID,
			"ice": map[string]any{
				"candidate":     init.Candidate,
				"sdpMid":        init.SDPMid,
				"sdpMLineIndex": init.SDPMLineIndex,
			},
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("webrtc connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.Stop()
		}
	})
	return nil
}

func (s *WebRTCSource) startSession() error {
	return s.writeSignal(map[string]string{
		"type":   "startSession",
		"peerId": s.producerID,
	})
}

func (s *WebRTCSource) handleSignalling() {
	for {
		var msg map[string]any
		if err := s.ws.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			stopping := !s.running
			s.mu.Unlock()
			if !stopping {
				s.logger.Warn("signalling connection lost", "error", err)
			}
			return
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "sessionStarted":
			s.sessionID, _ = msg["sessionId"].(string)

		case "peer":
			if sdpData, ok := msg["sdp"].(map[string]any); ok {
				s.handleSDP(sdpData)
			}
			if iceData, ok := msg["ice"].(map[string]any); ok {
				s.handleICE(iceData)
			}
		}
	}
}

func (s *WebRTCSource) handleSDP(sdpData map[string]any) {
	sdpType, _ := sdpData["type"].(string)
	sdpStr, _ := sdpData["sdp"].(string)
	if sdpType != "offer" {
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpStr}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		s.logger.Error("set remote description failed", "error", err)
		return
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.logger.Error("create answer failed", "error", err)
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.logger.Error("set local description failed", "error", err)
		return
	}

	s.writeSignal(map[string]any{
		"type":      "peer",
		"sessionId": s.sessionID,
		"sdp": map[string]string{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

func (s *WebRTCSource) handleICE(iceData map[string]any) {
	candidate, _ := iceData["candidate"].(string)
	var sdpMid string
	if mid, ok := iceData["sdpMid"]; ok && mid != nil {
		sdpMid, _ = mid.(string)
	}
	var sdpMLineIndex uint16
	if idx, ok := iceData["sdpMLineIndex"]; ok && idx != nil {
		if f, ok := idx.(float64); ok {
			sdpMLineIndex = uint16(f)
		}
	}

	if err := s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}); err != nil {
		s.logger.Debug("add ICE candidate failed", "error", err)
	}
}

func (s *WebRTCSource) writeSignal(msg any) error {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return s.ws.WriteJSON(msg)
}

// decodeLoop reads RTP, decodes Opus, and slices PCM into frames at
// the configured rate.
func (s *WebRTCSource) decodeLoop(track *webrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		s.logger.Error("opus decoder init failed", "error", err)
		return
	}
	decodeBuf := make([]int16, maxOpusFrame)

	first := true
	for {
		var pkt *rtp.Packet
		pkt, _, err = track.ReadRTP()
		if err != nil {
			s.mu.Lock()
			stopping := !s.running
			s.mu.Unlock()
			if !stopping {
				s.logger.Warn("rtp read failed", "error", err)
				s.Stop()
			}
			return
		}
		s.packets.Add(1)

		n, err := decoder.Decode(pkt.Payload, decodeBuf)
		if err != nil {
			s.decodeErrs.Add(1)
			continue
		}
		if first {
			close(s.trackReady)
			first = false
		}

		s.push(Resample(decodeBuf[:n], opusRate, s.cfg.SampleRate))
	}
}

// push appends PCM to the pending buffer and emits full frames.
func (s *WebRTCSource) push(samples []int16) {
	s.mu.Lock()
	s.pending = append(s.pending, samples...)
	frameSize := s.cfg.FrameSize() * s.cfg.Channels

	var frames []Frame
	for len(s.pending) >= frameSize {
		buf := make([]int16, frameSize)
		copy(buf, s.pending[:frameSize])
		s.pending = s.pending[frameSize:]
		frames = append(frames, Frame{
			Samples:    buf,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Captured:   time.Now(),
		})
	}
	gate := s.gate
	s.mu.Unlock()

	for _, frame := range frames {
		s.framesRead.Add(1)
		if gate.emit(frame) {
			s.samplesRead.Add(int64(len(frame.Samples)))
		} else {
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and tears down the connection.
func (s *WebRTCSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.gate.close()
	ws := s.ws
	pc := s.pc
	s.ws = nil
	s.pc = nil
	s.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	if ws != nil {
		ws.Close()
	}
	s.logger.Info("webrtc audio source stopped")
	return nil
}

// Read reads the next frame.
func (s *WebRTCSource) Read(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame, ok := <-s.streamCh:
		if !ok {
			return Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Stream returns the frame channel.
func (s *WebRTCSource) Stream() <-chan Frame {
	return s.streamCh
}

// Config returns the audio configuration.
func (s *WebRTCSource) Config() Config {
	return s.cfg
}

// Name returns "webrtc".
func (s *WebRTCSource) Name() string {
	return "webrtc"
}

// Close releases resources.
func (s *WebRTCSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return nil
}

// Stats returns source statistics.
func (s *WebRTCSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "webrtc",
	}
}

// Probe reports connection liveness.
func (s *WebRTCSource) Probe(ctx context.Context) error {
	s.mu.Lock()
	pc := s.pc
	running := s.running
	s.mu.Unlock()

	if !running || pc == nil {
		return fmt.Errorf("webrtc source not running")
	}
	switch pc.ConnectionState() {
	case webrtc.PeerConnectionStateConnected, webrtc.PeerConnectionStateConnecting, webrtc.PeerConnectionStateNew:
		return nil
	default:
		return fmt.Errorf("webrtc connection state %s", pc.ConnectionState())
	}
}

var _ SourceWithStats = (*WebRTCSource)(nil)
