// Package ingest accepts camera frames pushed over a websocket.
//
// A publisher (usually the dashboard relaying the browser webcam) connects to
// /ws/ingest, receives a welcome with its id and the wanted capture format,
// then streams frame messages. Frames land in a camera.Push device; they are
// refused while the camera is stopped.
package ingest

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/protocol"
)

// maxFrameBytes bounds a single websocket message (base64 JPEG).
const maxFrameBytes = 4 << 20

// Publisher stores frames. *camera.Push satisfies it.
type Publisher interface {
	Publish(data []byte, width, height int) (camera.Frame, error)
}

// Counter observes frame results ("ok" or "rejected").
type Counter interface {
	Frame(result string)
}

// writer is the part of a websocket connection used to reply.
type writer interface {
	WriteMessage(messageType int, data []byte) error
}

// Connection represents a connected publisher
type Connection struct {
	ID        string
	Name      string
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	conn writer
	mu   sync.Mutex
}

// Send sends a message to the publisher
func (c *Connection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Endpoint manages publisher connections
type Endpoint struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	target Publisher
	config func() camera.Config
	count  Counter
	logger *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the endpoint logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithConfig sets where the advertised capture format comes from.
func WithConfig(fn func() camera.Config) Option {
	return func(e *Endpoint) {
		e.config = fn
	}
}

// WithCounter sets the frame counter.
func WithCounter(c Counter) Option {
	return func(e *Endpoint) {
		e.count = c
	}
}

// New creates an endpoint feeding target.
func New(target Publisher, opts ...Option) *Endpoint {
	e := &Endpoint{
		conns:  make(map[string]*Connection),
		target: target,
		config: camera.DefaultConfig,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "ingest")
	return e
}

// RegisterRoutes registers the websocket route on a Fiber router
func (e *Endpoint) RegisterRoutes(r fiber.Router) {
	r.Use("/ws/ingest", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws/ingest", websocket.New(e.handleConn, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 4 * 1024,
	}))
}

// RegisterAPIRoutes registers publisher inspection routes
func (e *Endpoint) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/ingest", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"publishers": e.Infos(),
			"stats":      e.Stats(),
		})
	})
}

// handleConn serves one publisher until it disconnects
func (e *Endpoint) handleConn(c *websocket.Conn) {
	c.SetReadLimit(maxFrameBytes)
	conn := e.add(c)
	defer e.remove(conn.ID)

	cfg := e.config()
	welcome, err := protocol.NewWelcomeMessage(protocol.WelcomeData{
		ID:        conn.ID,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Framerate: cfg.Framerate,
		Quality:   cfg.Quality,
	})
	if err == nil {
		if err := conn.Send(welcome); err != nil {
			return
		}
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			e.logger.Debug("publisher read ended", "publisher", conn.ID, "error", err)
			return
		}
		e.handleMessage(conn, data)
	}
}

func (e *Endpoint) add(w writer) *Connection {
	now := time.Now()
	conn := &Connection{
		ID:        uuid.NewString(),
		Connected: now,
		LastSeen:  now,
		conn:      w,
	}

	e.mu.Lock()
	e.conns[conn.ID] = conn
	n := len(e.conns)
	e.mu.Unlock()

	e.logger.Info("publisher connected", "publisher", conn.ID, "total", n)
	return conn
}

func (e *Endpoint) remove(id string) {
	e.mu.Lock()
	delete(e.conns, id)
	n := len(e.conns)
	e.mu.Unlock()

	e.logger.Info("publisher disconnected", "publisher", id, "total", n)
}

// handleMessage processes one message from a publisher
func (e *Endpoint) handleMessage(conn *Connection, data []byte) {
	e.messagesReceived.Add(1)

	conn.mu.Lock()
	conn.LastSeen = time.Now()
	conn.mu.Unlock()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		e.logger.Debug("parse error", "publisher", conn.ID, "error", err)
		e.reply(conn, "malformed message")
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		e.handleFrame(conn, msg)

	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			e.reply(conn, "malformed hello")
			return
		}
		conn.mu.Lock()
		conn.Name = hello.Name
		conn.mu.Unlock()
		e.logger.Info("publisher hello", "publisher", conn.ID, "name", hello.Name,
			"width", hello.Width, "height", hello.Height)

	case protocol.TypePing:
		var pingID string
		if ping, err := msg.GetPingData(); err == nil {
			pingID = ping.ID
		}
		pong, err := protocol.NewPongMessage(pingID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			conn.Send(pong)
		}

	default:
		e.reply(conn, "unexpected message type "+string(msg.Type))
	}
}

func (e *Endpoint) handleFrame(conn *Connection, msg *protocol.Message) {
	e.framesReceived.Add(1)

	frame, err := msg.GetFrameData()
	if err != nil {
		e.reject(conn, "malformed frame", err)
		return
	}
	jpeg, err := frame.DecodeFrameData()
	if err != nil {
		e.reject(conn, "undecodable frame", err)
		return
	}
	if _, err := e.target.Publish(jpeg, frame.Width, frame.Height); err != nil {
		if errors.Is(err, camera.ErrNotOpen) {
			e.reject(conn, "camera not started", err)
			return
		}
		e.reject(conn, "frame rejected", err)
		return
	}

	conn.mu.Lock()
	conn.Frames++
	conn.mu.Unlock()
	if e.count != nil {
		e.count.Frame("ok")
	}
}

func (e *Endpoint) reject(conn *Connection, text string, err error) {
	e.framesRejected.Add(1)
	if e.count != nil {
		e.count.Frame("rejected")
	}
	e.logger.Debug("frame rejected", "publisher", conn.ID, "reason", text, "error", err)
	e.reply(conn, text)
}

func (e *Endpoint) reply(conn *Connection, text string) {
	msg, err := protocol.NewErrorMessage(text)
	if err != nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		e.logger.Debug("reply failed", "publisher", conn.ID, "error", err)
	}
}

// Count returns the number of connected publishers
func (e *Endpoint) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// Stats contains endpoint statistics
type Stats struct {
	Publishers       int    `json:"publishers"`
	MessagesReceived uint64 `json:"messages_received"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// Stats returns endpoint statistics
func (e *Endpoint) Stats() Stats {
	return Stats{
		Publishers:       e.Count(),
		MessagesReceived: e.messagesReceived.Load(),
		FramesReceived:   e.framesReceived.Load(),
		FramesRejected:   e.framesRejected.Load(),
	}
}

// Info describes a connected publisher
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// Infos returns info about all connected publishers
func (e *Endpoint) Infos() []Info {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]Info, 0, len(e.conns))
	for _, c := range e.conns {
		c.mu.Lock()
		infos = append(infos, Info{
			ID:        c.ID,
			Name:      c.Name,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
			Frames:    c.Frames,
		})
		c.mu.Unlock()
	}
	return infos
}
