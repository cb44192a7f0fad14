package cycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/detect"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/history"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
	"github.com/teslashibe/go-moodcam/pkg/schedule"
)

// Controller is the detection cycle state machine.
type Controller struct {
	cfg      Config
	sched    schedule.Scheduler
	detector detect.Detector
	renderer Renderer
	sink     Sink
	narrator narrate.Narrator
	rec      Recorder
	logger   *slog.Logger

	source    camera.Source
	state     State
	debouncer narrate.Debouncer
	history   *history.Buffer
	current   *emotion.Observation
	lastTime  time.Time

	poll  schedule.Task
	grace schedule.Task

	// inFlight is set while a detection runs; gen invalidates detections
	// that complete after Stop.
	inFlight bool
	gen      uint64
}

// New creates a controller. Nothing runs until the camera is acquired and
// the model marked ready.
func New(cfg Config, sched schedule.Scheduler, detector detect.Detector, renderer Renderer, sink Sink, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = def.GraceDelay
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = def.DetectTimeout
	}
	if cfg.DisplayCount <= 0 {
		cfg.DisplayCount = def.DisplayCount
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}

	c := &Controller{
		cfg:      cfg,
		sched:    sched,
		detector: detector,
		renderer: renderer,
		sink:     sink,
		rec:      nopRecorder{},
		logger:   slog.Default(),
		history:  history.NewBuffer(cfg.HistoryLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cycle")
	return c
}

// MarkModelReady records that the detector is loaded. It never resets.
func (c *Controller) MarkModelReady() {
	if c.state.ModelReady {
		return
	}
	c.state.ModelReady = true
	c.publishStatus()
	c.Start()
}

// CameraAcquired records an open video source and starts detecting.
func (c *Controller) CameraAcquired(src camera.Source) {
	c.source = src
	c.state.CameraOn = true
	c.publishStatus()
	c.Start()
}

// CameraReleased stops detecting and forgets the source and the last
// announced label.
func (c *Controller) CameraReleased() {
	c.Stop()
	c.source = nil
	c.state.CameraOn = false
	c.debouncer.Reset()
	c.state.LastAccepted = c.debouncer.Last()
	c.publishStatus()
}

// Start begins polling. It is a no-op unless the camera is on and the model
// ready, and while already detecting.
func (c *Controller) Start() {
	if !c.state.CameraOn || !c.state.ModelReady || c.state.Detecting {
		return
	}
	c.state.Detecting = true
	c.poll = c.sched.Every(c.cfg.PollInterval, c.tick)
	c.logger.Info("detection started", "interval", c.cfg.PollInterval)
	c.publishStatus()
}

// Stop cancels polling and clears the projection. Safe to call at any time.
func (c *Controller) Stop() {
	wasDetecting := c.state.Detecting
	if c.poll != nil {
		c.poll.Cancel()
		c.poll = nil
	}
	c.cancelGrace()
	c.gen++
	c.inFlight = false

	c.state.Detecting = false
	c.state.FacePresent = false
	c.renderer.ClearOverlay()
	c.current = nil
	c.sink.PublishCurrentEmotion(nil)

	if wasDetecting {
		c.logger.Info("detection stopped")
	}
	c.publishStatus()
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	return c.state
}

// Status returns the published flags.
func (c *Controller) Status() Status {
	return Status{
		CameraOn:    c.state.CameraOn,
		ModelReady:  c.state.ModelReady,
		Detecting:   c.state.Detecting,
		FacePresent: c.state.FacePresent,
	}
}

// Current returns the current emotion, or nil.
func (c *Controller) Current() *emotion.Observation {
	if c.current == nil {
		return nil
	}
	obs := *c.current
	return &obs
}

// History returns the buffered observations, oldest first.
func (c *Controller) History() []emotion.Observation {
	return c.history.All()
}

func (c *Controller) tick() {
	if c.inFlight {
		c.rec.Skipped(SkipInFlight)
		return
	}
	if !c.state.CameraOn || !c.state.ModelReady || c.source == nil || !c.source.Ready() {
		c.rec.Skipped(SkipNotReady)
		return
	}
	frame, err := c.source.Frame()
	if err != nil {
		c.rec.Skipped(SkipNotReady)
		return
	}

	c.inFlight = true
	gen := c.gen
	detector, timeout := c.detector, c.cfg.DetectTimeout

	c.sched.Async(func() func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		res, err := detector.Detect(ctx, frame)
		cancel()
		latency := time.Since(start)
		return func() { c.complete(gen, res, err, latency) }
	})
}

func (c *Controller) complete(gen uint64, res *detect.Result, err error, latency time.Duration) {
	if gen != c.gen {
		c.rec.Skipped(SkipStale)
		return
	}
	c.inFlight = false

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Debug("detection timed out", "latency", latency)
		c.rec.Completed(OutcomeTimeout, latency)
		c.rec.Skipped(SkipTimeout)
	case err != nil:
		c.logger.Warn("detection failed", "error", err)
		c.rec.Completed(OutcomeError, latency)
		c.rec.Skipped(SkipError)
	case res == nil:
		c.rec.Completed(OutcomeNoFace, latency)
		c.noFace()
	default:
		c.face(res, latency)
	}
}

func (c *Controller) face(res *detect.Result, latency time.Duration) {
	c.cancelGrace()
	c.setFacePresent(true)

	c.renderer.ClearOverlay()
	c.renderer.DrawBox(res.Region)
	c.renderer.DrawPoints(res.Landmarks)

	cls, ok := emotion.Classify(res.Distribution, c.cfg.Threshold)
	if !ok {
		c.rec.Completed(OutcomeRejected, latency)
		return
	}
	c.rec.Completed(OutcomeAccepted, latency)

	obs := emotion.Observation{
		Label:      cls.Label,
		Confidence: cls.Confidence,
		Timestamp:  c.timestamp(),
	}
	c.current = &obs
	c.sink.PublishCurrentEmotion(c.Current())

	c.history.Append(obs)
	c.sink.PublishHistorySnapshot(c.history.Recent(c.cfg.DisplayCount))
	c.sink.PublishStats(c.history.Stats(c.cfg.StatsWindow))
	c.rec.Accepted(obs)

	if c.debouncer.Offer(obs.Label) {
		c.state.LastAccepted = obs.Label
		c.announce(obs.Label)
	}
}

func (c *Controller) noFace() {
	c.setFacePresent(false)
	c.renderer.ClearOverlay()

	if c.current == nil || c.grace != nil {
		return
	}
	c.grace = c.sched.After(c.cfg.GraceDelay, func() {
		c.grace = nil
		// Presence is checked now, not when the delay was scheduled.
		if c.state.FacePresent || c.current == nil {
			return
		}
		c.current = nil
		c.sink.PublishCurrentEmotion(nil)
	})
}

func (c *Controller) announce(l emotion.Label) {
	if c.narrator == nil {
		return
	}
	text := narrate.Phrase(c.cfg.Phrase, l)
	narrator, logger := c.narrator, c.logger
	c.sched.Async(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := narrator.Speak(ctx, text); err != nil {
			logger.Warn("narration failed", "error", err, "text", text)
		}
		return nil
	})
}

func (c *Controller) cancelGrace() {
	if c.grace != nil {
		c.grace.Cancel()
		c.grace = nil
	}
}

func (c *Controller) setFacePresent(present bool) {
	if c.state.FacePresent == present {
		return
	}
	c.state.FacePresent = present
	c.publishStatus()
}

// timestamp returns the timeline clock, never earlier than the last one.
func (c *Controller) timestamp() time.Time {
	now := c.sched.Now()
	if now.Before(c.lastTime) {
		now = c.lastTime
	}
	c.lastTime = now
	return now
}

func (c *Controller) publishStatus() {
	c.sink.PublishStatus(c.Status())
}
