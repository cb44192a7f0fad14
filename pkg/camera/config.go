package camera

import (
	"fmt"
	"time"
)

// Source kinds.
const (
	KindWebcam = "webcam"
	KindPush   = "push"
	KindWebRTC = "webrtc"
)

// Config holds camera configuration parameters.
// These can be modified via the camera API while the camera is stopped;
// changes apply on the next start.
type Config struct {
	// Kind selects the device: webcam, push or webrtc.
	Kind string `json:"source"`

	// Device is the webcam index ("0") or a capture URL/file.
	Device string `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`
	Quality   int `json:"quality"` // JPEG quality 1-100

	// SignallingURL is the WebRTC signalling server, e.g. ws://host:8443.
	SignallingURL string `json:"signalling_url,omitempty"`

	// Producer selects a WebRTC producer by its meta name; empty takes the first.
	Producer string `json:"producer,omitempty"`

	// MaxAge is how old the latest frame may be and still count as current.
	MaxAge time.Duration `json:"max_age"`
}

// DefaultConfig returns the 640x480 webcam configuration the dashboard
// requests when the camera is started.
func DefaultConfig() Config {
	return Config{
		Kind:      KindWebcam,
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
		MaxAge:    2 * time.Second,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Kind {
	case KindWebcam, KindPush:
	case KindWebRTC:
		if c.SignallingURL == "" {
			errors = append(errors, "signalling_url is required for webrtc")
		}
	default:
		errors = append(errors, fmt.Sprintf("source must be webcam, push or webrtc, got %q", c.Kind))
	}

	if c.Width < 160 || c.Width > 3840 {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.MaxAge < 0 {
		errors = append(errors, "max_age must not be negative")
	}

	return errors
}
