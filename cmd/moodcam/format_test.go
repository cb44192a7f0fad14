package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-moodcam/pkg/cycle"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/protocol"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

func event(t *testing.T, typ protocol.MessageType, data interface{}) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewEvent(typ, data)
	require.NoError(t, err)
	raw, err := msg.Bytes()
	require.NoError(t, err)
	parsed, err := protocol.ParseMessage(raw)
	require.NoError(t, err)
	return parsed
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		typ  protocol.MessageType
		data interface{}
		want string
	}{
		{
			name: "emotion",
			typ:  protocol.TypeEmotion,
			data: web.EmotionView{Label: emotion.Happy, Percent: "87.3%", Glyph: "H"},
			want: "emotion  H happy 87.3%",
		},
		{
			name: "cleared emotion",
			typ:  protocol.TypeEmotion,
			data: nil,
			want: "emotion  (none)",
		},
		{
			name: "stats",
			typ:  protocol.TypeStats,
			data: web.StatsView{MostFrequent: emotion.Sad, Glyph: "S", Total: 4},
			want: "stats    most frequent S sad over 4",
		},
		{
			name: "empty stats",
			typ:  protocol.TypeStats,
			data: web.StatsView{},
			want: "stats    no history",
		},
		{
			name: "history",
			typ:  protocol.TypeHistory,
			data: []web.HistoryEntry{{Label: emotion.Happy}, {Label: emotion.Sad}},
			want: "history  2 entries",
		},
		{
			name: "status",
			typ:  protocol.TypeStatus,
			data: web.StatusView{
				Status:    cycle.Status{CameraOn: true, ModelReady: true, Detecting: true, FacePresent: true},
				Detection: "active",
				Source:    "push",
			},
			want: "status   camera on, model ready, detection active, face in view, source push",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := formatEvent(event(t, tt.typ, tt.data))
			// Lines start with the local time of the event.
			require.Greater(t, len(line), 9)
			assert.Equal(t, tt.want, line[9:])
		})
	}
}

func TestFormatEventIgnoresOthers(t *testing.T) {
	assert.Empty(t, formatEvent(event(t, protocol.TypePing, protocol.PingData{ID: "x"})))
	assert.Empty(t, formatEvent(event(t, protocol.TypeStats, "not an object")))
}

func TestFormatStatusStopped(t *testing.T) {
	got := formatStatus(web.StatusView{Detection: "inactive"})
	assert.Equal(t, "camera off, model loading, detection inactive", got)
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/status", false},
		{"https://cam.example.com/", "wss://cam.example.com/ws/status", false},
		{"ws://10.0.0.2:9000", "ws://10.0.0.2:9000/ws/status", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.addr, "/ws/status")
		if tt.wantErr {
			assert.Error(t, err, tt.addr)
			continue
		}
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.want, got)
	}
}

func TestLabelsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"labels"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(emotion.All))
	assert.True(t, strings.HasPrefix(lines[0], "neutral"))
	assert.Contains(t, lines[1], emotion.DefaultPalette()[emotion.Happy].Color)
}

func TestCameraCommandArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"camera", "pause"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}
