package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/protocol"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatStatus(st web.StatusView) string {
	model := "loading"
	if st.ModelReady {
		model = "ready"
	}
	parts := []string{
		"camera " + onOff(st.CameraOn),
		"model " + model,
		"detection " + st.Detection,
	}
	if st.FacePresent {
		parts = append(parts, "face in view")
	}
	if st.Source != "" {
		parts = append(parts, "source "+st.Source)
	}
	if st.SessionID != "" {
		parts = append(parts, "session "+st.SessionID)
	}
	return strings.Join(parts, ", ")
}

// formatEvent renders one status feed event, or "" for events not shown.
func formatEvent(msg *protocol.Message) string {
	stamp := time.UnixMilli(msg.Timestamp).Format("15:04:05")

	switch msg.Type {
	case protocol.TypeEmotion:
		var view *web.EmotionView
		if err := msg.ParseData(&view); err != nil {
			return ""
		}
		if view == nil {
			return stamp + " emotion  (none)"
		}
		return fmt.Sprintf("%s emotion  %s %s %s", stamp, view.Glyph, view.Label, view.Percent)

	case protocol.TypeStats:
		var stats web.StatsView
		if err := msg.ParseData(&stats); err != nil {
			return ""
		}
		if stats.MostFrequent == "" {
			return stamp + " stats    no history"
		}
		return fmt.Sprintf("%s stats    most frequent %s %s over %d", stamp, stats.Glyph, stats.MostFrequent, stats.Total)

	case protocol.TypeStatus:
		var st web.StatusView
		if err := msg.ParseData(&st); err != nil {
			return ""
		}
		return stamp + " status   " + formatStatus(st)

	case protocol.TypeHistory:
		var entries []web.HistoryEntry
		if err := msg.ParseData(&entries); err != nil {
			return ""
		}
		return fmt.Sprintf("%s history  %d entries", stamp, len(entries))
	}
	return ""
}
