// Package web serves the moodcam dashboard: a REST API over the latest
// projection, live websocket feeds, camera control and metrics.
//
// Server implements cycle.Sink. The detection cycle publishes into it from the
// scheduler goroutine; handlers read the stored projection under a lock and
// the hubs fan it out to websocket viewers.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/history"
	"github.com/teslashibe/go-moodcam/pkg/hub"
	"github.com/teslashibe/go-moodcam/pkg/protocol"
)

// Control is the camera lifecycle the dashboard drives.
type Control interface {
	// ModelReady reports whether the detector loaded.
	ModelReady() bool

	// StartCamera acquires the configured device. Errors wrap
	// camera.ErrDeviceUnavailable when access is refused.
	StartCamera(ctx context.Context) error

	// StopCamera releases the device.
	StopCamera(ctx context.Context) error

	// Session returns the id of the running camera session, or "".
	Session() string

	// Source returns the device kind of the current configuration.
	Source() string
}

// Config holds server settings.
type Config struct {
	Port      string
	StaticDir string
}

// DefaultConfig returns port 8080 serving ./web.
func DefaultConfig() Config {
	return Config{Port: "8080", StaticDir: "./web"}
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	cfg     Config
	control Control
	logger  *slog.Logger
	palette emotion.Palette
	cameras *camera.Manager
	metrics prometheus.Gatherer

	// Projection, written by the detection cycle
	mu      sync.RWMutex
	current *EmotionView
	history []HistoryEntry
	stats   StatsView
	status  cycle.Status

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub

	mounts []func(fiber.Router)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPalette sets the label presentation.
func WithPalette(p emotion.Palette) Option {
	return func(s *Server) {
		s.palette = p
	}
}

// WithCameraManager exposes camera configuration under /api/camera/config.
func WithCameraManager(m *camera.Manager) Option {
	return func(s *Server) {
		s.cameras = m
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = g
	}
}

// WithRoutes registers extra routes on the app, e.g. the ingest endpoint.
func WithRoutes(fn func(r fiber.Router)) Option {
	return func(s *Server) {
		s.mounts = append(s.mounts, fn)
	}
}

// NewServer creates a new web dashboard server
func NewServer(cfg Config, control Control, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		control: control,
		logger:  slog.Default(),
		palette: emotion.DefaultPalette(),
		history: []HistoryEntry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", s.logger)
	s.cameraHub = hub.New("camera", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "moodcam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for local development
	app.Use(cors.New())

	for _, mount := range s.mounts {
		mount(app)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/emotion", s.handleEmotion)
	api.Get("/history", s.handleHistory)
	api.Get("/stats", s.handleStats)
	api.Get("/labels", s.handleLabels)
	api.Post("/camera/start", s.handleCameraStart)
	api.Post("/camera/stop", s.handleCameraStop)
	if s.cameras != nil {
		api.Get("/camera/config", s.handleGetCameraConfig)
		api.Put("/camera/config", s.handleUpdateCameraConfig)
		api.Get("/camera/presets", s.handleCameraPresets)
	}

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(func(c *websocket.Conn) {
		hub.Serve(s.statusHub, c)
	}))
	app.Get("/ws/camera", websocket.New(func(c *websocket.Conn) {
		hub.Serve(s.cameraHub, c)
	}))

	// Static files
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.statusHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
		errc <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		return nil
	}
}

// PublishCurrentEmotion stores and broadcasts the current emotion.
func (s *Server) PublishCurrentEmotion(obs *emotion.Observation) {
	view := newEmotionView(s.palette, obs)

	s.mu.Lock()
	s.current = view
	s.mu.Unlock()

	if view == nil {
		s.broadcast(protocol.TypeEmotion, nil)
		return
	}
	s.broadcast(protocol.TypeEmotion, view)
}

// PublishHistorySnapshot stores and broadcasts the recent history.
func (s *Server) PublishHistorySnapshot(recent []emotion.Observation) {
	entries := newHistory(s.palette, recent)

	s.mu.Lock()
	s.history = entries
	s.mu.Unlock()

	s.broadcast(protocol.TypeHistory, entries)
}

// PublishStats stores and broadcasts the statistics.
func (s *Server) PublishStats(stats history.Stats) {
	view := newStatsView(s.palette, stats)

	s.mu.Lock()
	s.stats = view
	s.mu.Unlock()

	s.broadcast(protocol.TypeStats, view)
}

// PublishStatus stores and broadcasts the detection status.
func (s *Server) PublishStatus(status cycle.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.broadcast(protocol.TypeStatus, s.statusView())
}

func (s *Server) broadcast(t protocol.MessageType, data interface{}) {
	msg, err := protocol.NewEvent(t, data)
	if err != nil {
		s.logger.Warn("encode event failed", "type", t, "error", err)
		return
	}
	if err := s.statusHub.BroadcastRetained(string(t), msg); err != nil {
		s.logger.Warn("broadcast failed", "type", t, "error", err)
	}
}

func (s *Server) statusView() StatusView {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if s.control != nil {
		status.ModelReady = status.ModelReady || s.control.ModelReady()
	}
	v := StatusView{Status: status, Detection: status.Detection()}
	if s.control != nil {
		v.Source = s.control.Source()
		v.SessionID = s.control.Session()
	}
	return v
}

// SendCameraFrame sends an annotated frame to all camera viewers
func (s *Server) SendCameraFrame(jpegData []byte) {
	s.cameraHub.BroadcastBinary(jpegData)
}

// CameraViewers returns the number of /ws/camera clients.
func (s *Server) CameraViewers() int {
	return s.cameraHub.ClientCount()
}

// StatusViewers returns the number of /ws/status clients.
func (s *Server) StatusViewers() int {
	return s.statusHub.ClientCount()
}

// handleError renders errors as {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

var _ cycle.Sink = (*Server)(nil)
