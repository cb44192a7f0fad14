package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	mu     sync.Mutex
	writes []written
	closed chan struct{}
	once   sync.Once
}

type written struct {
	kind int
	data string
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, written{kind, string(data)})
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) data(kind int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		if w.kind == kind {
			out = append(out, w.data)
		}
	}
	return out
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func connect(t *testing.T, h *Hub) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	before := h.ClientCount()
	go Serve(h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestBroadcastReachesClients(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h)
	b := connect(t, h)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	h.BroadcastBinary([]byte{0xFF, 0xD8})

	for _, c := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool {
			return len(c.data(websocket.TextMessage)) == 1 && len(c.data(websocket.BinaryMessage)) == 1
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, `{"n":1}`, c.data(websocket.TextMessage)[0])
	}
}

func TestRetainedReplayedToLateJoiner(t *testing.T) {
	h, _ := startHub(t)

	require.NoError(t, h.BroadcastRetained("status", map[string]bool{"on": false}))
	require.NoError(t, h.BroadcastRetained("emotion", nil))
	require.NoError(t, h.BroadcastRetained("status", map[string]bool{"on": true}))
	require.NoError(t, h.BroadcastJSON("transient"))

	// Let the hub drain the broadcasts before the client joins.
	time.Sleep(50 * time.Millisecond)

	c := connect(t, h)
	require.Eventually(t, func() bool {
		return len(c.data(websocket.TextMessage)) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{`{"on":true}`, `null`}, c.data(websocket.TextMessage))
}

func TestClientDisconnect(t *testing.T) {
	h, _ := startHub(t)
	c := connect(t, h)

	c.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := connect(t, h)

	cancel()
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(c.data(websocket.CloseMessage)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.ClientCount())

	// A stopped hub refuses new clients without blocking.
	late := newFakeConn()
	done := make(chan struct{})
	go func() {
		Serve(h, late)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve blocked on a stopped hub")
	}
}

func TestBroadcastJSONError(t *testing.T) {
	h := New("test", nil)
	assert.Error(t, h.BroadcastJSON(make(chan int)))
	assert.Error(t, h.BroadcastRetained("k", make(chan int)))
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("test", nil) // not running, nothing drains
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.BroadcastBinary([]byte{1})
	}
	assert.Equal(t, uint64(3), h.Dropped())
}

func TestMessageRetained(t *testing.T) {
	m := NewJSONMessage([]byte("{}"))
	r := m.Retained("k")
	assert.Empty(t, m.Key)
	assert.Equal(t, "k", r.Key)
	assert.Equal(t, JSONMessage, r.Type)
	assert.Equal(t, "test", New("test", nil).Name())
}
