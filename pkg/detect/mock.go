package detect

import (
	"context"
	"sync"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	// If nil, the queued results are returned in order, then nil.
	DetectFunc func(ctx context.Context, frame camera.Frame) (*Result, error)

	mu     sync.Mutex
	queue  []mockReply
	frames []camera.Frame
	closed bool
}

type mockReply struct {
	result *Result
	err    error
}

// NewMock creates a mock that reports no face until results are queued.
func NewMock() *Mock {
	return &Mock{}
}

// Queue appends a result to be returned by a later Detect.
func (m *Mock) Queue(result *Result, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{result: result, err: err})
	return m
}

// Detect records the frame and returns the next reply.
func (m *Mock) Detect(ctx context.Context, frame camera.Frame) (*Result, error) {
	m.mu.Lock()
	m.frames = append(m.frames, frame)
	fn := m.DetectFunc
	var reply mockReply
	if len(m.queue) > 0 {
		reply = m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return reply.result, reply.err
}

// Calls returns the number of Detect calls.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// Frames returns the frames passed to Detect.
func (m *Mock) Frames() []camera.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]camera.Frame(nil), m.frames...)
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Face builds a result whose distribution puts score on label and spreads
// the remainder evenly over the other labels.
func Face(label emotion.Label, score float64) *Result {
	dist := make(emotion.Distribution, len(emotion.All))
	rest := (1 - score) / float64(len(emotion.All)-1)
	for _, l := range emotion.All {
		dist[l] = rest
	}
	dist[label] = score
	return &Result{
		Region: Region{X: 200, Y: 120, Width: 180, Height: 220},
		Landmarks: []Point{
			{X: 250, Y: 200}, {X: 330, Y: 200}, {X: 290, Y: 250},
			{X: 260, Y: 290}, {X: 320, Y: 290},
		},
		Score:        0.9,
		Distribution: dist,
	}
}

var _ Detector = (*Mock)(nil)
