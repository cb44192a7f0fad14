// Package camera provides the video sources the detection cycle reads from.
//
// A Device is opened when the user starts the camera and closed when they stop
// it. While open it keeps the most recent frame as JPEG; the detection cycle
// asks Ready before every poll and skips the poll when no current frame is
// available. Three devices exist: a local webcam (gocv), frames pushed over a
// websocket, and a remote WebRTC camera.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrDeviceUnavailable is returned by Open when the device cannot be
	// acquired (missing, busy or access denied).
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrNoFrame is returned by Frame before the first frame arrives.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrNotOpen is returned when a closed device is used.
	ErrNotOpen = errors.New("camera: not open")
)

// Frame is one captured image, JPEG encoded.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Source yields the current frame.
type Source interface {
	// Ready reports whether a current frame is available.
	Ready() bool

	// Frame returns a copy of the most recent frame.
	Frame() (Frame, error)
}

// Device is a Source with a lifecycle.
type Device interface {
	Source

	// Name identifies the device kind in logs and status.
	Name() string

	// Open acquires the device. It returns once the first frame can be
	// expected, or with an error wrapping ErrDeviceUnavailable.
	Open(ctx context.Context) error

	// Close releases the device. Safe to call more than once.
	Close() error
}

// New builds the device selected by cfg.Kind.
func New(cfg Config, logger *slog.Logger) (Device, error) {
	switch cfg.Kind {
	case KindWebcam, "":
		return NewWebcam(cfg, logger), nil
	case KindPush:
		return NewPush(cfg), nil
	case KindWebRTC:
		if cfg.SignallingURL == "" {
			return nil, fmt.Errorf("camera: webrtc source needs a signalling url")
		}
		return NewWebRTC(cfg, logger), nil
	default:
		return nil, fmt.Errorf("camera: unknown source %q", cfg.Kind)
	}
}
