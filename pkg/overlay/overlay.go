// Package overlay keeps the face box and landmarks of the latest detection
// and draws them over camera frames for the dashboard.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/detect"
)

// DefaultColor is the overlay stroke, #10B981.
var DefaultColor = color.RGBA{R: 0x10, G: 0xB9, B: 0x81, A: 0xFF}

// Shapes is what the canvas currently shows.
type Shapes struct {
	Box    *detect.Region `json:"box,omitempty"`
	Points []detect.Point `json:"points,omitempty"`
}

// Empty reports whether nothing is drawn.
func (s Shapes) Empty() bool {
	return s.Box == nil && len(s.Points) == 0
}

// Canvas records overlay shapes from the detection cycle and composes them
// onto frames on demand. Safe for concurrent use.
type Canvas struct {
	mu     sync.RWMutex
	shapes Shapes

	Color       color.RGBA
	Thickness   int
	PointSize   int
	JPEGQuality int
}

// NewCanvas returns a canvas with the default stroke.
func NewCanvas() *Canvas {
	return &Canvas{
		Color:       DefaultColor,
		Thickness:   2,
		PointSize:   2,
		JPEGQuality: 80,
	}
}

// ClearOverlay removes every shape.
func (c *Canvas) ClearOverlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes = Shapes{}
}

// DrawBox sets the face box.
func (c *Canvas) DrawBox(r detect.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes.Box = &r
}

// DrawPoints sets the landmarks.
func (c *Canvas) DrawPoints(points []detect.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes.Points = append([]detect.Point(nil), points...)
}

// Shapes returns a copy of the current shapes.
func (c *Canvas) Shapes() Shapes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Shapes{Points: append([]detect.Point(nil), c.shapes.Points...)}
	if c.shapes.Box != nil {
		b := *c.shapes.Box
		s.Box = &b
	}
	return s
}

// Compose draws the current shapes over frame and returns a JPEG.
// A frame with nothing to draw is returned unchanged.
func (c *Canvas) Compose(frame camera.Frame) ([]byte, error) {
	shapes := c.Shapes()
	if shapes.Empty() {
		return frame.Data, nil
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("overlay: decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("overlay: empty frame")
	}

	stroke := c.Color

	if b := shapes.Box; b != nil {
		rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
		gocv.Rectangle(&img, rect, stroke, c.Thickness)
	}
	for _, p := range shapes.Points {
		gocv.Circle(&img, image.Pt(int(p.X), int(p.Y)), c.PointSize, stroke, -1)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, c.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("overlay: encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
