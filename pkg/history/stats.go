package history

import "github.com/teslashibe/go-moodcam/pkg/emotion"

// Stats is the aggregate view published alongside the history.
type Stats struct {
	MostFrequent emotion.Label `json:"most_frequent"`
	Total        int           `json:"total"`
}

// MostFrequent counts labels over the trailing window of observations and
// returns the label with the highest count. On a tie the label that first
// appears in the window (scanning oldest to newest) wins. It returns
// emotion.None for an empty buffer.
func (b *Buffer) MostFrequent(window int) emotion.Label {
	if window <= 0 || window > b.size {
		window = b.size
	}
	if window == 0 {
		return emotion.None
	}

	// Keep counts in first-seen order so ties resolve deterministically.
	order := make([]emotion.Label, 0, len(emotion.All))
	counts := make(map[emotion.Label]int, len(emotion.All))
	for i := b.size - window; i < b.size; i++ {
		l := b.at(i).Label
		if _, seen := counts[l]; !seen {
			order = append(order, l)
		}
		counts[l]++
	}

	best := order[0]
	for _, l := range order[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}

// Stats computes the aggregate view over the trailing window.
func (b *Buffer) Stats(window int) Stats {
	return Stats{
		MostFrequent: b.MostFrequent(window),
		Total:        b.Len(),
	}
}
