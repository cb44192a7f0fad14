// Package cycle runs the detection loop: it polls the detector at a fixed
// cadence while the camera is on, classifies each result, and pushes the
// accepted emotion, history and statistics to a projection sink.
//
// A Controller is driven entirely by a schedule.Scheduler. Every exported
// method must be called on the scheduler's timeline (Loop.Sync or Post), and
// so must every callback it schedules; the controller therefore holds no
// locks.
package cycle

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/detect"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/history"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
)

// Renderer draws the detection overlay. Calls are best-effort.
type Renderer interface {
	ClearOverlay()
	DrawBox(r detect.Region)
	DrawPoints(points []detect.Point)
}

// Sink receives projection updates.
type Sink interface {
	// PublishCurrentEmotion publishes the current emotion; nil means none.
	PublishCurrentEmotion(obs *emotion.Observation)

	// PublishHistorySnapshot publishes recent observations, newest first.
	PublishHistorySnapshot(recent []emotion.Observation)

	// PublishStats publishes aggregate statistics.
	PublishStats(stats history.Stats)

	// PublishStatus publishes the detection status flags.
	PublishStatus(status Status)
}

// Recorder observes poll outcomes, typically for metrics.
type Recorder interface {
	Skipped(reason string)
	Completed(outcome string, latency time.Duration)
	Accepted(obs emotion.Observation)
}

// Skip reasons.
const (
	SkipInFlight = "in_flight"
	SkipNotReady = "not_ready"
	SkipTimeout  = "timeout"
	SkipError    = "error"
	SkipStale    = "stale"
)

// Poll outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeNoFace   = "no_face"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

// State is the controller's own state.
type State struct {
	CameraOn     bool
	ModelReady   bool
	Detecting    bool
	FacePresent  bool
	LastAccepted emotion.Label
}

// Status is the published subset of State.
type Status struct {
	CameraOn    bool `json:"camera_on"`
	ModelReady  bool `json:"model_ready"`
	Detecting   bool `json:"detecting"`
	FacePresent bool `json:"face_present"`
}

// Detection returns "active" or "inactive".
func (s Status) Detection() string {
	if s.Detecting {
		return "active"
	}
	return "inactive"
}

// Config holds controller tuning.
type Config struct {
	PollInterval  time.Duration
	GraceDelay    time.Duration
	DetectTimeout time.Duration
	Threshold     float64
	HistoryLimit  int
	DisplayCount  int
	StatsWindow   int
	Phrase        string
}

// DefaultConfig returns the standard cadence: poll every 200ms, clear the
// current emotion 1s after the face is lost.
func DefaultConfig() Config {
	return Config{
		PollInterval:  200 * time.Millisecond,
		GraceDelay:    time.Second,
		DetectTimeout: 2 * time.Second,
		Threshold:     emotion.DefaultThreshold,
		HistoryLimit:  history.DefaultLimit,
		DisplayCount:  history.DefaultDisplayCount,
		StatsWindow:   history.DefaultStatsWindow,
		Phrase:        narrate.DefaultPhrase,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithNarrator sets who announces newly accepted labels.
func WithNarrator(n narrate.Narrator) Option {
	return func(c *Controller) {
		c.narrator = n
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.rec = r
	}
}

type nopRecorder struct{}

func (nopRecorder) Skipped(string)                  {}
func (nopRecorder) Completed(string, time.Duration) {}
func (nopRecorder) Accepted(emotion.Observation)    {}
