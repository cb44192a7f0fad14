// Package detect finds a face in a frame and scores its expression.
//
// The production Engine runs two ONNX models through OpenCV: YuNet for the
// face box and landmarks, FER+ for the expression distribution. The cycle
// controller only sees the Detector interface.
package detect

import (
	"context"
	"errors"
	"math"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

var (
	// ErrModelUnavailable is returned when a model cannot be loaded.
	ErrModelUnavailable = errors.New("detect: model unavailable")

	// ErrInvalidFrame is returned for frames that do not decode.
	ErrInvalidFrame = errors.New("detect: invalid frame")
)

// Point is a 2D position in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is a bounding box in frame pixels.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area.
func (r Region) Area() float64 {
	return r.Width * r.Height
}

// Center returns the center point of the box.
func (r Region) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Result is the detection for the single selected face.
type Result struct {
	Region       Region               `json:"region"`
	Landmarks    []Point              `json:"landmarks"`
	Score        float64              `json:"score"`
	Distribution emotion.Distribution `json:"distribution"`
}

// Detector finds at most one face per frame.
type Detector interface {
	// Detect returns nil, nil when the frame holds no face.
	Detect(ctx context.Context, frame camera.Frame) (*Result, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	FaceModel       string  // YuNet ONNX path
	ExpressionModel string  // FER+ ONNX path
	InputSize       int     // longest side fed to the face detector
	FaceScore       float64 // minimum face confidence
	NMSThreshold    float64
	TopK            int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FaceModel:       "models/face_detection_yunet_2023mar.onnx",
		ExpressionModel: "models/emotion-ferplus-8.onnx",
		InputSize:       416,
		FaceScore:       0.3,
		NMSThreshold:    0.3,
		TopK:            5000,
	}
}

// Candidate is one face proposed by the face detector.
type Candidate struct {
	Region    Region
	Landmarks []Point
	Score     float64
}

// SelectBest picks the best face from multiple candidates.
// Priority: score * 0.7 + relative area * 0.3.
func SelectBest(cands []Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	if len(cands) == 1 {
		return &cands[0]
	}

	maxArea := 0.0
	for _, c := range cands {
		if c.Region.Area() > maxArea {
			maxArea = c.Region.Area()
		}
	}

	bestScore := -1.0
	var best *Candidate
	for i := range cands {
		rel := 0.0
		if maxArea > 0 {
			rel = cands[i].Region.Area() / maxArea
		}
		score := cands[i].Score*0.7 + rel*0.3
		if score > bestScore {
			bestScore = score
			best = &cands[i]
		}
	}
	return best
}

// ferPlusLabels is the FER+ output order. Contempt has no label here.
var ferPlusLabels = []emotion.Label{
	emotion.Neutral,
	emotion.Happy,
	emotion.Surprised,
	emotion.Sad,
	emotion.Angry,
	emotion.Disgusted,
	emotion.Fearful,
	emotion.None, // contempt
}

// FERPlusDistribution converts the eight FER+ logits into a distribution
// over the seven labels. Contempt is dropped and the rest renormalized.
func FERPlusDistribution(logits []float32) emotion.Distribution {
	n := len(logits)
	if n > len(ferPlusLabels) {
		n = len(ferPlusLabels)
	}

	probs := softmax(logits[:n])
	dist := make(emotion.Distribution, len(emotion.All))
	var sum float64
	for i, p := range probs {
		if l := ferPlusLabels[i]; l != emotion.None {
			dist[l] = p
			sum += p
		}
	}
	for _, l := range emotion.All {
		if sum > 0 {
			dist[l] /= sum
		} else {
			dist[l] = 0
		}
	}
	return dist
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > max {
			max = float64(v)
		}
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// inputScale is the factor that brings the longest side down to size.
func inputScale(width, height, size int) float64 {
	longest := width
	if height > longest {
		longest = height
	}
	if size <= 0 || longest <= size {
		return 1
	}
	return float64(size) / float64(longest)
}

// clampRegion limits r to the frame and returns integer bounds.
func clampRegion(r Region, width, height int) (x0, y0, x1, y1 int) {
	x0 = int(math.Max(0, math.Floor(r.X)))
	y0 = int(math.Max(0, math.Floor(r.Y)))
	x1 = int(math.Min(float64(width), math.Ceil(r.X+r.Width)))
	y1 = int(math.Min(float64(height), math.Ceil(r.Y+r.Height)))
	return
}
