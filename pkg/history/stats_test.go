package history_test

import (
	"testing"

	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/history"
)

func TestMostFrequent(t *testing.T) {
	tests := []struct {
		name    string
		appends []emotion.Label
		window  int
		want    emotion.Label
	}{
		{
			name:   "empty buffer",
			window: 10,
			want:   emotion.None,
		},
		{
			name:    "simple majority",
			appends: []emotion.Label{emotion.Happy, emotion.Happy, emotion.Sad},
			window:  10,
			want:    emotion.Happy,
		},
		{
			name:    "tie goes to first seen in window",
			appends: []emotion.Label{emotion.Sad, emotion.Happy, emotion.Happy, emotion.Sad},
			window:  10,
			want:    emotion.Sad,
		},
		{
			name: "only trailing window counts",
			appends: []emotion.Label{
				emotion.Angry, emotion.Angry, emotion.Angry, emotion.Angry,
				emotion.Happy, emotion.Sad, emotion.Happy,
			},
			window: 3,
			want:   emotion.Happy,
		},
		{
			name:    "window larger than buffer uses everything",
			appends: []emotion.Label{emotion.Neutral},
			window:  10,
			want:    emotion.Neutral,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := history.NewBuffer(20)
			for i, l := range tc.appends {
				b.Append(obs(i, l))
			}
			if got := b.MostFrequent(tc.window); got != tc.want {
				t.Errorf("MostFrequent(%d) = %q, want %q", tc.window, got, tc.want)
			}
		})
	}
}

func TestStats_TotalIsBufferLength(t *testing.T) {
	b := history.NewBuffer(20)
	for i := 0; i < 25; i++ {
		b.Append(obs(i, emotion.Happy))
	}
	s := b.Stats(history.DefaultStatsWindow)
	if s.Total != 20 {
		t.Errorf("Total = %d, want 20", s.Total)
	}
	if s.MostFrequent != emotion.Happy {
		t.Errorf("MostFrequent = %q, want happy", s.MostFrequent)
	}
}
