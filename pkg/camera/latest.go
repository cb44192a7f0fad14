package camera

import (
	"sync"
	"time"
)

// latest holds the newest frame of a device. Every device embeds one.
type latest struct {
	mu     sync.RWMutex
	frame  Frame
	seq    uint64
	maxAge time.Duration
	now    func() time.Time
}

func newLatest(maxAge time.Duration) *latest {
	return &latest{maxAge: maxAge, now: time.Now}
}

// store records data as the newest frame.
func (l *latest) store(data []byte, width, height int) Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.frame = Frame{
		Data:     data,
		Width:    width,
		Height:   height,
		Seq:      l.seq,
		Captured: l.now(),
	}
	return l.frame
}

// reset forgets the stored frame.
func (l *latest) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = Frame{}
}

// Ready reports whether the stored frame is present and not stale.
func (l *latest) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame.Empty() {
		return false
	}
	if l.maxAge > 0 && l.now().Sub(l.frame.Captured) > l.maxAge {
		return false
	}
	return true
}

// Frame returns a copy of the stored frame.
func (l *latest) Frame() (Frame, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame.Empty() {
		return Frame{}, ErrNoFrame
	}
	f := l.frame
	f.Data = append([]byte(nil), l.frame.Data...)
	return f, nil
}
