package web

import (
	"time"

	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/history"
)

// EmotionView is the current emotion card.
type EmotionView struct {
	Label      emotion.Label `json:"label"`
	Confidence float64       `json:"confidence"`
	Percent    string        `json:"percent"` // one decimal, e.g. "87.3%"
	Color      string        `json:"color"`
	Glyph      string        `json:"glyph"`
	Timestamp  time.Time     `json:"timestamp"`
}

// HistoryEntry is one row of the history list.
type HistoryEntry struct {
	Label   emotion.Label `json:"label"`
	Percent string        `json:"percent"` // whole percent, e.g. "87%"
	Color   string        `json:"color"`
	Glyph   string        `json:"glyph"`
	Time    string        `json:"time"` // 15:04:05
}

// StatsView is the aggregate panel. MostFrequent is empty when there is no
// history yet.
type StatsView struct {
	MostFrequent emotion.Label `json:"most_frequent"`
	Glyph        string        `json:"glyph,omitempty"`
	Total        int           `json:"total"`
}

// StatusView is the detection status panel.
type StatusView struct {
	cycle.Status
	Detection string `json:"detection"` // active or inactive
	Source    string `json:"source"`
	SessionID string `json:"session_id,omitempty"`
}

// LabelView lists a label with its presentation.
type LabelView struct {
	Label emotion.Label `json:"label"`
	Color string        `json:"color"`
	Glyph string        `json:"glyph"`
}

func newEmotionView(p emotion.Palette, obs *emotion.Observation) *EmotionView {
	if obs == nil {
		return nil
	}
	d := p.Lookup(obs.Label)
	return &EmotionView{
		Label:      obs.Label,
		Confidence: obs.Confidence,
		Percent:    obs.Percent(1),
		Color:      d.Color,
		Glyph:      d.Glyph,
		Timestamp:  obs.Timestamp,
	}
}

func newHistory(p emotion.Palette, recent []emotion.Observation) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(recent))
	for _, obs := range recent {
		d := p.Lookup(obs.Label)
		out = append(out, HistoryEntry{
			Label:   obs.Label,
			Percent: obs.Percent(0),
			Color:   d.Color,
			Glyph:   d.Glyph,
			Time:    obs.Timestamp.Format("15:04:05"),
		})
	}
	return out
}

func newStatsView(p emotion.Palette, s history.Stats) StatsView {
	v := StatsView{MostFrequent: s.MostFrequent, Total: s.Total}
	if s.MostFrequent.Valid() {
		v.Glyph = p.Lookup(s.MostFrequent).Glyph
	}
	return v
}

func labelViews(p emotion.Palette) []LabelView {
	out := make([]LabelView, 0, len(emotion.All))
	for _, l := range emotion.All {
		d := p.Lookup(l)
		out = append(out, LabelView{Label: l, Color: d.Color, Glyph: d.Glyph})
	}
	return out
}
