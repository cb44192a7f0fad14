// Package narrate announces accepted emotions out loud.
//
// The Debouncer decides whether a label is worth announcing; a Narrator turns
// the announcement text into speech. Narration is fire-and-forget for the
// detection cycle: failures are logged here and never surface to callers.
package narrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-moodcam/pkg/emotion"
)

// DefaultPhrase is the announcement template. %s is the label name.
const DefaultPhrase = "You look %s"

var (
	// ErrQueueFull is returned when a Speaker cannot accept more text.
	ErrQueueFull = errors.New("narrate: queue full")

	// ErrClosed is returned after a Speaker has been closed.
	ErrClosed = errors.New("narrate: speaker closed")
)

// Narrator speaks a line of text.
type Narrator interface {
	Speak(ctx context.Context, text string) error
}

// NarratorFunc adapts a function to the Narrator interface.
type NarratorFunc func(ctx context.Context, text string) error

// Speak calls f.
func (f NarratorFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Phrase renders the announcement for a label using template.
// A template without a verb gets the label appended.
func Phrase(template string, l emotion.Label) string {
	if template == "" {
		template = DefaultPhrase
	}
	if !strings.Contains(template, "%s") {
		return template + " " + string(l)
	}
	return fmt.Sprintf(template, l)
}

// Debouncer suppresses an announcement that repeats the previous one.
// Only accepted labels are offered, so a rejected reading in between does
// not reset it. Not safe for concurrent use.
type Debouncer struct {
	last emotion.Label
}

// Offer reports whether l should be announced and records it if so.
func (d *Debouncer) Offer(l emotion.Label) bool {
	if l == d.last {
		return false
	}
	d.last = l
	return true
}

// Last returns the most recently announced label.
func (d *Debouncer) Last() emotion.Label {
	return d.last
}

// Reset forgets the last label.
func (d *Debouncer) Reset() {
	d.last = emotion.None
}
