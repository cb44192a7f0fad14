// Package emotion defines the facial-expression vocabulary used by moodcam.
//
// A detector produces a Distribution over the seven labels for every face it
// sees. Classify reduces that distribution to a single Observation when the
// winning score clears the acceptance threshold. Each label also carries a
// presentation Descriptor (color, glyph) looked up from a Palette.
package emotion

import (
	"fmt"
	"strings"
	"time"
)

// Label is one of the seven expressions the detector can report.
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Fearful   Label = "fearful"
	Disgusted Label = "disgusted"
	Surprised Label = "surprised"

	// None marks the absence of a label (no observation, empty stats).
	None Label = ""
)

// All lists the vocabulary in detector output order.
// Classify and the aggregators scan labels in this order to break ties.
var All = []Label{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

// Valid reports whether l is part of the vocabulary.
func (l Label) Valid() bool {
	for _, v := range All {
		if l == v {
			return true
		}
	}
	return false
}

// String returns the label name, or "none" for None.
func (l Label) String() string {
	if l == None {
		return "none"
	}
	return string(l)
}

// Parse converts a case-insensitive name to a Label.
func Parse(name string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(name)))
	if !l.Valid() {
		return None, fmt.Errorf("%w: %q", ErrUnknownLabel, name)
	}
	return l, nil
}

// Distribution maps each label to a confidence score in [0,1].
// Scores approximate a probability distribution but need not sum to 1.
type Distribution map[Label]float64

// Observation is one accepted expression reading.
type Observation struct {
	Label      Label     `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Percent formats the confidence as a percentage with the given precision.
func (o Observation) Percent(decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, o.Confidence*100)
}
