package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-moodcam/pkg/schedule"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_Every(t *testing.T) {
	m := schedule.NewManual(t0)
	var ticks []time.Duration
	task := m.Every(200*time.Millisecond, func() {
		ticks = append(ticks, m.Now().Sub(t0))
	})

	m.Advance(199 * time.Millisecond)
	assert.Empty(t, ticks)

	m.Advance(401 * time.Millisecond)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond}, ticks)

	task.Cancel()
	m.Advance(time.Second)
	assert.Len(t, ticks, 3)
	assert.Equal(t, 0, m.ActiveTimers())
}

func TestManual_AfterRunsOnce(t *testing.T) {
	m := schedule.NewManual(t0)
	runs := 0
	task := m.After(time.Second, func() { runs++ })

	m.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, runs)
	m.Advance(time.Millisecond)
	assert.Equal(t, 1, runs)
	m.Advance(5 * time.Second)
	assert.Equal(t, 1, runs)

	// Cancelling a fired task is harmless.
	task.Cancel()
}

func TestManual_CancelBeforeFire(t *testing.T) {
	m := schedule.NewManual(t0)
	fired := false
	task := m.After(time.Second, func() { fired = true })
	task.Cancel()
	task.Cancel()
	m.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManual_TimersFireInOrder(t *testing.T) {
	m := schedule.NewManual(t0)
	var order []string
	m.After(300*time.Millisecond, func() { order = append(order, "late") })
	m.After(100*time.Millisecond, func() { order = append(order, "early") })
	m.Every(200*time.Millisecond, func() { order = append(order, "tick") })

	m.Advance(400 * time.Millisecond)
	assert.Equal(t, []string{"early", "tick", "late", "tick"}, order)
}

func TestManual_TimerScheduledDuringAdvance(t *testing.T) {
	m := schedule.NewManual(t0)
	var at []time.Duration
	m.After(100*time.Millisecond, func() {
		m.After(100*time.Millisecond, func() { at = append(at, m.Now().Sub(t0)) })
	})
	m.Advance(time.Second)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, at)
}

func TestManual_Async(t *testing.T) {
	m := schedule.NewManual(t0)
	var steps []string

	m.Async(func() func() {
		steps = append(steps, "work")
		return func() { steps = append(steps, "done") }
	})
	assert.Equal(t, []string{"work"}, steps)
	m.Flush()
	assert.Equal(t, []string{"work", "done"}, steps)

	m.HoldAsync = true
	m.Async(func() func() {
		steps = append(steps, "held")
		return nil
	})
	assert.Equal(t, 1, m.PendingAsync())
	m.CompleteAsync()
	assert.Equal(t, []string{"work", "done", "held"}, steps)
	assert.Equal(t, 0, m.PendingAsync())
}
