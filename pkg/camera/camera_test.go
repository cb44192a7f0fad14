package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestPushLifecycle(t *testing.T) {
	p := NewPush(DefaultConfig())
	data := testJPEG(t, 64, 48)

	_, err := p.Publish(data, 0, 0)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.False(t, p.Ready())

	require.NoError(t, p.Open(context.Background()))
	_, err = p.Frame()
	assert.ErrorIs(t, err, ErrNoFrame)

	f, err := p.Publish(data, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 48, f.Height)
	assert.Equal(t, uint64(1), f.Seq)
	assert.True(t, p.Ready())

	got, err := p.Frame()
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)

	require.NoError(t, p.Close())
	assert.False(t, p.Ready())
	assert.False(t, p.IsOpen())
}

func TestPushRejectsGarbage(t *testing.T) {
	p := NewPush(DefaultConfig())
	require.NoError(t, p.Open(context.Background()))

	_, err := p.Publish(nil, 0, 0)
	assert.Error(t, err)
	_, err = p.Publish([]byte("not a jpeg"), 0, 0)
	assert.Error(t, err)

	// Explicit dimensions skip header parsing.
	_, err = p.Publish([]byte("opaque"), 10, 10)
	assert.NoError(t, err)
}

func TestFrameCopyIsIndependent(t *testing.T) {
	p := NewPush(DefaultConfig())
	require.NoError(t, p.Open(context.Background()))
	_, err := p.Publish([]byte{1, 2, 3}, 1, 1)
	require.NoError(t, err)

	f, _ := p.Frame()
	f.Data[0] = 9
	again, _ := p.Frame()
	assert.Equal(t, byte(1), again.Data[0])
}

func TestStaleFrameIsNotReady(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAge = time.Second
	p := NewPush(cfg)
	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Open(context.Background()))
	_, err := p.Publish([]byte{1}, 1, 1)
	require.NoError(t, err)
	assert.True(t, p.Ready())

	now = now.Add(1500 * time.Millisecond)
	assert.False(t, p.Ready())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errs   int
	}{
		{"default", func(c *Config) {}, 0},
		{"push", func(c *Config) { c.Kind = KindPush }, 0},
		{"webrtc without url", func(c *Config) { c.Kind = KindWebRTC }, 1},
		{"webrtc with url", func(c *Config) { c.Kind = KindWebRTC; c.SignallingURL = "ws://cam:8443" }, 0},
		{"unknown source", func(c *Config) { c.Kind = "ipcam" }, 1},
		{"tiny", func(c *Config) { c.Width = 10; c.Height = 10 }, 2},
		{"bad quality", func(c *Config) { c.Quality = 0 }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Len(t, cfg.Validate(), tt.errs)
		})
	}
}

func TestNewSelectsDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindPush
	d, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, KindPush, d.Name())

	cfg.Kind = KindWebRTC
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.Kind = "ipcam"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestManagerUpdateConfig(t *testing.T) {
	start := DefaultConfig()
	start.Kind = KindPush
	m := NewManager(start)

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	require.NoError(t, m.UpdateConfig(map[string]interface{}{"preset": Preset720p, "quality": float64(60)}))
	got := m.GetConfig()
	assert.Equal(t, 1280, got.Width)
	assert.Equal(t, 60, got.Quality)
	assert.Equal(t, KindPush, got.Kind, "presets keep the device")
	assert.Equal(t, got, applied)

	assert.Error(t, m.UpdateConfig(map[string]interface{}{"preset": "imax"}))
	assert.Error(t, m.UpdateConfig(map[string]interface{}{"width": 5}))
	assert.Equal(t, 1280, m.GetConfig().Width, "invalid update is not stored")
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.Empty(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("missing"))
}

func TestSplitNALs(t *testing.T) {
	stream := []byte{0, 0, 0, 1, 0x67, 0xAA, 0, 0, 1, 0x68, 0xBB, 0, 0, 0, 1, 0x65, 0xCC, 0xDD}
	nals := splitNALs(stream)
	require.Len(t, nals, 3)
	assert.Equal(t, []byte{0x67, 0xAA}, nals[0])
	assert.Equal(t, []byte{0x68, 0xBB}, nals[1])
	assert.Equal(t, []byte{0x65, 0xCC, 0xDD}, nals[2])
	assert.Empty(t, splitNALs([]byte{1, 2, 3}))
}

func TestAssemblerStartsAtKeyframe(t *testing.T) {
	var a Assembler

	// A P-slice before any keyframe is dropped.
	require.NoError(t, a.Write([]byte{0, 0, 0, 1, 0x41, 0x01}))
	assert.Nil(t, a.Chunk())

	require.NoError(t, a.Write([]byte{0, 0, 0, 1, 0x67, 0x10, 0, 0, 0, 1, 0x68, 0x20}))
	require.NoError(t, a.Write([]byte{0, 0, 0, 1, 0x65, 0x30}))
	require.NoError(t, a.Write([]byte{0, 0, 0, 1, 0x41, 0x40}))

	want := []byte{
		0, 0, 0, 1, 0x67, 0x10,
		0, 0, 0, 1, 0x68, 0x20,
		0, 0, 0, 1, 0x65, 0x30,
		0, 0, 0, 1, 0x41, 0x40,
	}
	assert.Equal(t, want, a.Chunk())

	// The next keyframe starts a fresh chunk with cached parameter sets.
	require.NoError(t, a.Write([]byte{0, 0, 0, 1, 0x65, 0x50}))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x67, 0x10, 0, 0, 0, 1, 0x68, 0x20, 0, 0, 0, 1, 0x65, 0x50}, a.Chunk())
}

func TestAssemblerMaxBytes(t *testing.T) {
	a := Assembler{MaxBytes: 8}
	err := a.Write([]byte{0, 0, 0, 1, 0x65, 1, 2, 3, 4, 5, 6, 7, 8})
	assert.Error(t, err)
	assert.Nil(t, a.Chunk())
}

func TestLastJPEG(t *testing.T) {
	one := testJPEG(t, 16, 16)
	two := testJPEG(t, 32, 32)
	stream := append(append([]byte{}, one...), two...)

	assert.Equal(t, two, lastJPEG(stream))
	assert.Nil(t, lastJPEG([]byte("nothing here")))
	assert.Nil(t, lastJPEG(two[:len(two)-2]), "truncated frame")
}

func TestIsBlankJPEG(t *testing.T) {
	assert.False(t, isBlankJPEG(testJPEG(t, 64, 64)))

	black := image.NewGray(image.Rect(0, 0, 64, 64))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, black, nil))
	assert.True(t, isBlankJPEG(buf.Bytes()))
	assert.True(t, isBlankJPEG([]byte("junk")))
}

func TestParsePeerMessage(t *testing.T) {
	offer, ice, err := parsePeerMessage([]byte(`{"type":"peer","sdp":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.Equal(t, "v=0", offer.SDP)
	assert.Nil(t, ice)

	offer, ice, err = parsePeerMessage([]byte(`{"type":"peer","ice":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}}`))
	require.NoError(t, err)
	assert.Nil(t, offer)
	require.NotNil(t, ice)
	assert.Equal(t, "candidate:1", ice.Candidate)
	require.NotNil(t, ice.SDPMid)
	assert.Equal(t, "0", *ice.SDPMid)

	_, _, err = parsePeerMessage([]byte(`{`))
	assert.Error(t, err)
}

func TestProducerPick(t *testing.T) {
	var l producerList
	require.NoError(t, jsonUnmarshal(`{"type":"list","producers":[{"id":"a","meta":{"name":"door"}},{"id":"b","meta":{"name":"desk"}}]}`, &l))

	id, err := l.pick("")
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, err = l.pick("desk")
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	_, err = l.pick("garage")
	assert.Error(t, err)
}

func TestWebRTCOpenWithoutProducers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]string{"type": "welcome", "peerId": "peer-1"})
		var req map[string]string
		if err := conn.ReadJSON(&req); err != nil || req["type"] != "list" {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{"type": "list", "producers": []interface{}{}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Kind = KindWebRTC
	cfg.SignallingURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	dev := NewWebRTC(cfg, nil)
	err := dev.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
	assert.Equal(t, "peer-1", dev.myPeerID)
	assert.NoError(t, dev.Close())
}

func TestWebRTCOpenUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindWebRTC
	cfg.SignallingURL = "ws://127.0.0.1:1"

	err := NewWebRTC(cfg, nil).Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func jsonUnmarshal(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
