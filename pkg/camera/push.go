package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	"sync/atomic"
)

// Push is a Device fed by frames published from outside the process,
// typically a browser streaming its webcam over /ws/ingest.
type Push struct {
	*latest
	open atomic.Bool
}

// NewPush creates a push device.
func NewPush(cfg Config) *Push {
	return &Push{latest: newLatest(cfg.MaxAge)}
}

// Name returns "push".
func (p *Push) Name() string { return KindPush }

// Open starts accepting frames.
func (p *Push) Open(ctx context.Context) error {
	p.reset()
	p.open.Store(true)
	return nil
}

// Close stops accepting frames and drops the stored one.
func (p *Push) Close() error {
	p.open.Store(false)
	p.reset()
	return nil
}

// IsOpen reports whether frames are being accepted.
func (p *Push) IsOpen() bool {
	return p.open.Load()
}

// Publish stores a JPEG frame. Zero dimensions are read from the JPEG header.
func (p *Push) Publish(data []byte, width, height int) (Frame, error) {
	if !p.open.Load() {
		return Frame{}, ErrNotOpen
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("camera: empty frame")
	}
	if width <= 0 || height <= 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Frame{}, fmt.Errorf("camera: decode frame header: %w", err)
		}
		width, height = cfg.Width, cfg.Height
	}
	return p.store(append([]byte(nil), data...), width, height), nil
}

var _ Device = (*Push)(nil)

// jpegSize reads the dimensions from a JPEG header, or zeros.
func jpegSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
