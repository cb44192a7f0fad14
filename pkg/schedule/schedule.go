// Package schedule runs callbacks on a single logical timeline.
//
// Every callback handed to a Scheduler (repeating ticks, one-shot delays,
// posted functions and async completions) runs on the same timeline, one at
// a time, so code driven by a Scheduler needs no locks for its own state.
// Loop is the production implementation; Manual advances virtual time for
// deterministic tests.
package schedule

import (
	"sync/atomic"
	"time"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel prevents any further runs of the callback. It is idempotent.
	Cancel()
}

// Scheduler owns a timeline.
type Scheduler interface {
	// Every runs fn every d until the returned task is cancelled.
	Every(d time.Duration, fn func()) Task

	// After runs fn once after d unless the task is cancelled first.
	After(d time.Duration, fn func()) Task

	// Post queues fn to run on the timeline.
	Post(fn func())

	// Async runs work off the timeline. If work returns a non-nil
	// completion, the completion runs on the timeline.
	Async(work func() func())

	// Now returns the timeline clock.
	Now() time.Time
}

// handle is the cancellation flag shared by Loop and Manual tasks.
type handle struct {
	cancelled atomic.Bool
	stop      func()
}

func (h *handle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) && h.stop != nil {
		h.stop()
	}
}

func (h *handle) active() bool {
	return !h.cancelled.Load()
}
