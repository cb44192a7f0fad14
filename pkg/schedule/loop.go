package schedule

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Sync once the loop has exited.
var ErrStopped = errors.New("schedule: loop stopped")

// Loop is a Scheduler backed by one goroutine draining a task queue.
// Timers live on their own goroutines and only post into the queue, so
// callbacks never run concurrently with each other.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// NewLoop creates a loop with the given queue depth.
func NewLoop(queue int) *Loop {
	if queue <= 0 {
		queue = 64
	}
	return &Loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
}

// Run executes queued callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn. It blocks while the queue is full and drops fn once the
// loop has exited.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Sync runs fn on the timeline and waits for it to finish.
func (l *Loop) Sync(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case l.tasks <- func() { fn(); close(finished) }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Every starts a ticker whose ticks are posted to the timeline.
func (l *Loop) Every(d time.Duration, fn func()) Task {
	ticker := time.NewTicker(d)
	quit := make(chan struct{})
	h := &handle{stop: func() { ticker.Stop(); close(quit) }}

	go func() {
		for {
			select {
			case <-quit:
				return
			case <-l.done:
				ticker.Stop()
				return
			case <-ticker.C:
				l.Post(func() {
					// A tick may already be queued when Cancel runs.
					if h.active() {
						fn()
					}
				})
			}
		}
	}()
	return h
}

// After posts fn to the timeline once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Task {
	h := &handle{}
	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if h.active() {
				fn()
			}
		})
	})
	h.stop = func() { timer.Stop() }
	return h
}

// Async runs work on a new goroutine and posts its completion.
func (l *Loop) Async(work func() func()) {
	go func() {
		if done := work(); done != nil {
			l.Post(done)
		}
	}()
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

var _ Scheduler = (*Loop)(nil)
