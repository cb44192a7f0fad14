package emotion

import "math"

// DefaultThreshold is the minimum winning score for an accepted reading.
// The comparison is strict: a score equal to the threshold is rejected.
const DefaultThreshold = 0.1

// Classification is the arg-max of a Distribution.
type Classification struct {
	Label      Label
	Confidence float64
}

// Top returns the highest-scoring label of d. Labels are scanned in All
// order and the first one holding the maximum wins, so ties are stable.
// Labels outside the vocabulary and NaN scores are ignored. ok is false
// when d has no usable entry.
func Top(d Distribution) (c Classification, ok bool) {
	for _, l := range All {
		score, present := d[l]
		if !present || math.IsNaN(score) {
			continue
		}
		if !ok || score > c.Confidence {
			c = Classification{Label: l, Confidence: score}
			ok = true
		}
	}
	return c, ok
}

// Classify picks the top label of d and applies the acceptance gate.
// It returns false when the winning score is not strictly greater than
// threshold.
func Classify(d Distribution, threshold float64) (Classification, bool) {
	c, ok := Top(d)
	if !ok || c.Confidence <= threshold {
		return Classification{}, false
	}
	return c, true
}
