package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

// WebRTC is a Device that receives H.264 video from a remote camera
// published through a GStreamer webrtcsink signalling server.
type WebRTC struct {
	*latest
	cfg     Config
	logger  *slog.Logger
	decoder *H264Decoder

	// DecodeInterval is how often the assembled chunk is decoded.
	DecodeInterval time.Duration

	wsMu sync.Mutex
	ws   *websocket.Conn
	pc   *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  atomic.Value // string

	gotTrack chan struct{}
	closed   atomic.Bool
	cancel   context.CancelFunc
}

// NewWebRTC creates a WebRTC device for cfg.SignallingURL.
func NewWebRTC(cfg Config, logger *slog.Logger) *WebRTC {
	if logger == nil {
		logger = slog.Default()
	}
	interval := 100 * time.Millisecond
	if cfg.Framerate > 0 && time.Second/time.Duration(cfg.Framerate) > interval {
		interval = time.Second / time.Duration(cfg.Framerate)
	}
	return &WebRTC{
		latest:         newLatest(cfg.MaxAge),
		cfg:            cfg,
		logger:         logger.With("component", "camera.webrtc"),
		decoder:        NewH264Decoder(),
		DecodeInterval: interval,
	}
}

// Name returns "webrtc".
func (c *WebRTC) Name() string { return KindWebRTC }

// Open connects to the signalling server, negotiates a receive-only session
// and waits for the video track.
func (c *WebRTC) Open(ctx context.Context) error {
	c.closed.Store(false)
	c.gotTrack = make(chan struct{}, 1)
	c.sessionID.Store("")
	c.reset()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("%w: signalling connect: %v", ErrDeviceUnavailable, err)
	}
	c.ws = ws

	fail := func(step string, err error) error {
		c.Close()
		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, step, err)
	}

	if err := c.waitForWelcome(); err != nil {
		return fail("welcome", err)
	}
	if err := c.findProducer(); err != nil {
		return fail("find producer", err)
	}
	if err := c.createPeerConnection(); err != nil {
		return fail("peer connection", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if err := c.send(map[string]string{"type": "startSession", "peerId": c.producerID}); err != nil {
		return fail("start session", err)
	}
	go c.handleSignalling(runCtx)

	wait, stop := context.WithTimeout(ctx, 15*time.Second)
	defer stop()
	select {
	case <-c.gotTrack:
		c.logger.Info("video track connected", "producer", c.producerID)
		return nil
	case <-wait.Done():
		return fail("waiting for video", wait.Err())
	}
}

func (c *WebRTC) readJSON(timeout time.Duration, v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	defer c.ws.SetReadDeadline(time.Time{})
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(msg, v)
}

func (c *WebRTC) waitForWelcome() error {
	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := c.readJSON(10*time.Second, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	c.myPeerID = welcome.PeerID
	return nil
}

type producerList struct {
	Type      string `json:"type"`
	Producers []struct {
		ID   string            `json:"id"`
		Meta map[string]string `json:"meta"`
	} `json:"producers"`
}

// pick returns the producer whose meta name matches, or the first one
// when name is empty.
func (l producerList) pick(name string) (string, error) {
	for _, p := range l.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	if name == "" {
		return "", fmt.Errorf("no producers")
	}
	return "", fmt.Errorf("producer %q not found in %d producers", name, len(l.Producers))
}

func (c *WebRTC) findProducer() error {
	if err := c.send(map[string]string{"type": "list"}); err != nil {
		return err
	}
	var list producerList
	if err := c.readJSON(5*time.Second, &list); err != nil {
		return err
	}
	id, err := list.pick(c.cfg.Producer)
	if err != nil {
		return err
	}
	c.producerID = id
	return nil
}

func (c *WebRTC) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Debug("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
	})
	return nil
}

func (c *WebRTC) send(v interface{}) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *WebRTC) handleSignalling(ctx context.Context) {
	for ctx.Err() == nil {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		var base struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "sessionStarted":
			c.sessionID.Store(base.SessionID)
		case "peer":
			if err := c.handlePeerMessage(msg); err != nil {
				c.logger.Warn("peer message", "error", err)
			}
		case "endSession":
			c.logger.Info("session ended by producer")
			return
		}
	}
}

// peerMessage is the payload of a "peer" signalling message.
type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func parsePeerMessage(msg []byte) (*webrtc.SessionDescription, *webrtc.ICECandidateInit, error) {
	var pm peerMessage
	if err := json.Unmarshal(msg, &pm); err != nil {
		return nil, nil, err
	}

	var offer *webrtc.SessionDescription
	if pm.SDP != nil && pm.SDP.Type == "offer" {
		offer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: pm.SDP.SDP}
	}

	var ice *webrtc.ICECandidateInit
	if pm.ICE != nil && pm.ICE.Candidate != "" {
		ice = &webrtc.ICECandidateInit{
			Candidate:     pm.ICE.Candidate,
			SDPMid:        pm.ICE.SDPMid,
			SDPMLineIndex: pm.ICE.SDPMLineIndex,
		}
	}
	return offer, ice, nil
}

func (c *WebRTC) handlePeerMessage(msg []byte) error {
	offer, ice, err := parsePeerMessage(msg)
	if err != nil {
		return err
	}

	if offer != nil {
		if err := c.pc.SetRemoteDescription(*offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		if err := c.send(map[string]interface{}{
			"type":      "peer",
			"sessionId": c.session(),
			"sdp":       map[string]string{"type": answer.Type.String(), "sdp": answer.SDP},
		}); err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
	}

	if ice != nil {
		if err := c.pc.AddICECandidate(*ice); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
	}
	return nil
}

func (c *WebRTC) session() string {
	s, _ := c.sessionID.Load().(string)
	return s
}

func (c *WebRTC) sendICECandidate(candidate *webrtc.ICECandidate) {
	session := c.session()
	if session == "" {
		return
	}
	init := candidate.ToJSON()
	err := c.send(map[string]interface{}{
		"type":      "peer",
		"sessionId": session,
		"ice": map[string]interface{}{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
	if err != nil {
		c.logger.Debug("send ice candidate", "error", err)
	}
}

func (c *WebRTC) handleVideoTrack(track *webrtc.TrackRemote) {
	select {
	case c.gotTrack <- struct{}{}:
	default:
	}

	var depacketizer codecs.H264Packet
	asm := &Assembler{MaxBytes: 4 << 20}
	lastDecode := time.Now()

	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		nals, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil || len(nals) == 0 {
			continue
		}
		if err := asm.Write(nals); err != nil {
			c.logger.Debug("dropping chunk", "error", err)
		}

		if !pkt.Marker || time.Since(lastDecode) < c.DecodeInterval {
			continue
		}
		lastDecode = time.Now()

		chunk := asm.Chunk()
		if chunk == nil {
			continue
		}
		jpegData, err := c.decoder.Decode(context.Background(), chunk)
		if err != nil {
			continue
		}
		w, h := jpegSize(jpegData)
		c.store(jpegData, w, h)
	}
}

// Close tears down the peer connection and signalling socket.
func (c *WebRTC) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		c.pc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
	c.reset()
	return nil
}

var _ Device = (*WebRTC)(nil)
