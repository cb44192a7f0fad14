// Package history keeps a bounded, time-ordered record of accepted emotion
// observations and derives rolling statistics from it.
//
// Buffer is not safe for concurrent use. It is owned by the detection cycle
// controller and only touched from the controller's timeline.
package history

import (
	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

// Defaults matching the dashboard.
const (
	DefaultLimit        = 20
	DefaultDisplayCount = 6
	DefaultStatsWindow  = 10
)

// Buffer is a fixed-capacity ring of observations. Appending past the limit
// evicts the oldest entry.
type Buffer struct {
	items []emotion.Observation
	start int // index of the oldest entry
	size  int
}

// NewBuffer creates a buffer that keeps the most recent limit observations.
// A non-positive limit falls back to DefaultLimit.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{items: make([]emotion.Observation, limit)}
}

// Append records an observation in O(1).
func (b *Buffer) Append(obs emotion.Observation) {
	limit := len(b.items)
	if b.size < limit {
		b.items[(b.start+b.size)%limit] = obs
		b.size++
		return
	}
	b.items[b.start] = obs
	b.start = (b.start + 1) % limit
}

// Len returns the number of buffered observations.
func (b *Buffer) Len() int {
	return b.size
}

// Cap returns the buffer limit.
func (b *Buffer) Cap() int {
	return len(b.items)
}

// at returns the i-th oldest observation.
func (b *Buffer) at(i int) emotion.Observation {
	return b.items[(b.start+i)%len(b.items)]
}

// All returns every observation, oldest first.
func (b *Buffer) All() []emotion.Observation {
	out := make([]emotion.Observation, b.size)
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// Recent returns up to k observations, newest first.
func (b *Buffer) Recent(k int) []emotion.Observation {
	if k > b.size {
		k = b.size
	}
	if k <= 0 {
		return []emotion.Observation{}
	}
	out := make([]emotion.Observation, k)
	for i := 0; i < k; i++ {
		out[i] = b.at(b.size - 1 - i)
	}
	return out
}
