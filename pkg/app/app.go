// Package app wires moodcam together: it loads the detector, owns the camera
// session, runs the detection cycle on its scheduler and serves the dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/detect"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/ingest"
	"github.com/teslashibe/go-moodcam/pkg/metrics"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
	"github.com/teslashibe/go-moodcam/pkg/overlay"
	"github.com/teslashibe/go-moodcam/pkg/schedule"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

// ErrNotReady is returned by camera control before the detector has loaded.
var ErrNotReady = errors.New("app: detector not loaded")

// DetectorFactory loads a detector.
type DetectorFactory func(cfg detect.Config, logger *slog.Logger) (detect.Detector, error)

// DeviceFactory builds a camera device.
type DeviceFactory func(cfg camera.Config, logger *slog.Logger) (camera.Device, error)

// App is a running moodcam instance.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	loop     *schedule.Loop
	canvas   *overlay.Canvas
	server   *web.Server
	cameras  *camera.Manager
	push     *camera.Push
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	palette  emotion.Palette

	newDetector DetectorFactory
	newDevice   DeviceFactory
	narrator    narrate.Narrator
	closer      io.Closer

	// Set once by Init
	detector   detect.Detector
	controller *cycle.Controller
	ready      atomic.Bool

	// Camera session, guarded by mu. The id is atomic because status
	// publishing reads it from the scheduler while mu is held.
	mu      sync.Mutex
	device  camera.Device
	session atomic.Value // string
	stopPv  context.CancelFunc
	pvDone  chan struct{}
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithDetectorFactory replaces the gocv detector.
func WithDetectorFactory(f DetectorFactory) Option {
	return func(a *App) {
		a.newDetector = f
	}
}

// WithDeviceFactory replaces camera.New for non-push sources.
func WithDeviceFactory(f DeviceFactory) Option {
	return func(a *App) {
		a.newDevice = f
	}
}

// WithNarrator replaces the configured narrator.
func WithNarrator(n narrate.Narrator) Option {
	return func(a *App) {
		a.narrator = n
	}
}

// New builds an App from cfg. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		loop:   schedule.NewLoop(64),
		canvas: overlay.NewCanvas(),
		newDetector: func(c detect.Config, l *slog.Logger) (detect.Detector, error) {
			return detect.NewEngine(c, l)
		},
		newDevice: camera.New,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "app")

	a.palette = emotion.DefaultPalette()
	if cfg.Palette.File != "" {
		p, err := emotion.LoadPalette(cfg.Palette.File)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.palette = p
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	camCfg := cfg.CameraSettings()
	a.cameras = camera.NewManager(camCfg)
	a.push = camera.NewPush(camCfg)
	a.canvas.JPEGQuality = camCfg.Quality

	if a.narrator == nil {
		a.narrator, a.closer = buildNarrator(ctx, cfg, a.logger)
	}

	endpoint := ingest.New(a.push,
		ingest.WithLogger(a.logger),
		ingest.WithConfig(a.cameras.GetConfig),
		ingest.WithCounter(a.metrics),
	)

	a.server = web.NewServer(cfg.WebSettings(), a,
		web.WithLogger(a.logger),
		web.WithPalette(a.palette),
		web.WithCameraManager(a.cameras),
		web.WithMetrics(a.registry),
		web.WithRoutes(func(r fiber.Router) {
			endpoint.RegisterRoutes(r)
			endpoint.RegisterAPIRoutes(r.Group("/api"))
		}),
	)
	return a, nil
}

// Server returns the dashboard server.
func (a *App) Server() *web.Server {
	return a.server
}

// Run serves the dashboard, loads the detector and blocks until ctx is
// cancelled. A detector that fails to load is fatal: Run returns an error
// wrapping detect.ErrModelUnavailable.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The loop outlives ctx so shutdown can still release the camera.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(loopCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Run(ctx)
	}()

	err := a.Init(ctx)
	if err == nil {
		select {
		case <-ctx.Done():
		case err = <-serverErr:
			if err != nil {
				err = fmt.Errorf("app: dashboard: %w", err)
			}
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	a.shutdown(stopCtx)
	cancel()
	stopLoop()
	<-loopDone
	return err
}

// Init loads the detector and marks the model ready.
func (a *App) Init(ctx context.Context) error {
	start := time.Now()
	det, err := a.newDetector(a.cfg.DetectSettings(), a.logger)
	if err != nil {
		a.logger.Error("detector failed to load", "error", err)
		if !errors.Is(err, detect.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %v", detect.ErrModelUnavailable, err)
		}
		return fmt.Errorf("app: init: %w", err)
	}

	ctrl := cycle.New(a.cfg.CycleSettings(), a.loop, det, a.canvas, a.server,
		cycle.WithLogger(a.logger),
		cycle.WithNarrator(a.narrator),
		cycle.WithRecorder(a.metrics),
	)
	if err := a.loop.Sync(ctx, ctrl.MarkModelReady); err != nil {
		det.Close()
		return fmt.Errorf("app: init: %w", err)
	}

	a.detector = det
	a.controller = ctrl
	a.ready.Store(true)
	a.logger.Info("detector loaded", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// ModelReady reports whether Init succeeded.
func (a *App) ModelReady() bool {
	return a.ready.Load()
}

// StartCamera opens the configured device and starts detection. Starting a
// running camera is a no-op.
func (a *App) StartCamera(ctx context.Context) error {
	if !a.ModelReady() {
		return ErrNotReady
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		return nil
	}

	cfg := a.cameras.GetConfig()
	var dev camera.Device
	if cfg.Kind == camera.KindPush {
		dev = a.push
	} else {
		d, err := a.newDevice(cfg, a.logger)
		if err != nil {
			return fmt.Errorf("app: camera: %w", err)
		}
		dev = d
	}

	if err := dev.Open(ctx); err != nil {
		dev.Close()
		return fmt.Errorf("app: start camera: %w", err)
	}

	session := uuid.NewString()
	a.session.Store(session)
	if err := a.loop.Sync(ctx, func() { a.controller.CameraAcquired(dev) }); err != nil {
		a.session.Store("")
		dev.Close()
		return fmt.Errorf("app: start camera: %w", err)
	}

	a.device = dev
	a.startPreview(dev, cfg.Framerate)
	a.logger.Info("camera started", "session", session, "source", dev.Name(),
		"width", cfg.Width, "height", cfg.Height)
	return nil
}

// StopCamera stops detection and releases the device. Stopping a stopped
// camera is a no-op.
func (a *App) StopCamera(ctx context.Context) error {
	if !a.ModelReady() {
		return ErrNotReady
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked(ctx)
}

func (a *App) stopLocked(ctx context.Context) error {
	if a.device == nil {
		return nil
	}

	a.stopPreview()
	session := a.Session()
	a.session.Store("")
	syncErr := a.loop.Sync(ctx, a.controller.CameraReleased)
	closeErr := a.device.Close()
	a.device = nil
	a.logger.Info("camera stopped", "session", session)

	if syncErr != nil {
		return fmt.Errorf("app: stop camera: %w", syncErr)
	}
	return closeErr
}

// Session returns the running camera session id, or "".
func (a *App) Session() string {
	s, _ := a.session.Load().(string)
	return s
}

// Source returns the configured device kind.
func (a *App) Source() string {
	return a.cameras.GetConfig().Kind
}

// Snapshot returns the controller state, read on the scheduler.
func (a *App) Snapshot(ctx context.Context) (cycle.State, error) {
	if !a.ModelReady() {
		return cycle.State{}, ErrNotReady
	}
	var st cycle.State
	err := a.loop.Sync(ctx, func() { st = a.controller.State() })
	return st, err
}

func (a *App) shutdown(ctx context.Context) {
	if a.ModelReady() {
		a.mu.Lock()
		if err := a.stopLocked(ctx); err != nil {
			a.logger.Warn("camera stop on shutdown failed", "error", err)
		}
		a.mu.Unlock()
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("detector close failed", "error", err)
		}
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warn("narrator close failed", "error", err)
		}
	}
}

var _ web.Control = (*App)(nil)
