package schedule

import (
	"sort"
	"time"
)

// Manual is a virtual-time Scheduler for tests. Nothing runs until the test
// calls Advance or Flush, and everything runs on the calling goroutine.
// It is not safe for concurrent use.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTimer
	queue  []func()

	// HoldAsync parks async work until CompleteAsync is called, which lets
	// tests observe a poll that is still in flight.
	HoldAsync bool
	pending   []func() func()
}

type manualTimer struct {
	*handle
	due    time.Time
	period time.Duration // zero for one-shot
	seq    uint64
	fn     func()
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Time {
	return m.now
}

// Every schedules fn at now+d, now+2d, ...
func (m *Manual) Every(d time.Duration, fn func()) Task {
	return m.add(d, d, fn)
}

// After schedules fn once at now+d.
func (m *Manual) After(d time.Duration, fn func()) Task {
	return m.add(d, 0, fn)
}

func (m *Manual) add(delay, period time.Duration, fn func()) Task {
	m.seq++
	t := &manualTimer{
		handle: &handle{},
		due:    m.now.Add(delay),
		period: period,
		seq:    m.seq,
		fn:     fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// Post queues fn; it runs on the next Flush or Advance.
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// Async runs work immediately and queues its completion, unless HoldAsync
// is set.
func (m *Manual) Async(work func() func()) {
	if m.HoldAsync {
		m.pending = append(m.pending, work)
		return
	}
	if done := work(); done != nil {
		m.queue = append(m.queue, done)
	}
}

// PendingAsync returns the number of parked async jobs.
func (m *Manual) PendingAsync() int {
	return len(m.pending)
}

// CompleteAsync runs all parked async work and flushes the completions.
func (m *Manual) CompleteAsync() {
	pending := m.pending
	m.pending = nil
	for _, work := range pending {
		if done := work(); done != nil {
			m.queue = append(m.queue, done)
		}
	}
	m.Flush()
}

// Flush runs queued callbacks, including ones queued while flushing.
func (m *Manual) Flush() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in time order.
// Queued callbacks are flushed after every timer.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.Flush()
	for {
		t := m.next(target)
		if t == nil {
			break
		}
		m.now = t.due
		if t.period > 0 {
			t.due = t.due.Add(t.period)
		} else {
			t.Cancel()
		}
		t.fn()
		m.Flush()
	}
	m.now = target
}

// next returns the earliest active timer due at or before target.
func (m *Manual) next(target time.Time) *manualTimer {
	active := m.timers[:0]
	for _, t := range m.timers {
		if t.active() {
			active = append(active, t)
		}
	}
	m.timers = active

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	if len(m.timers) == 0 || m.timers[0].due.After(target) {
		return nil
	}
	return m.timers[0]
}

// ActiveTimers returns the number of timers that can still fire.
func (m *Manual) ActiveTimers() int {
	n := 0
	for _, t := range m.timers {
		if t.active() {
			n++
		}
	}
	return n
}

var _ Scheduler = (*Manual)(nil)
