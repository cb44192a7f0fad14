package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/detect"
	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
	"github.com/teslashibe/go-moodcam/pkg/web"
)

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	body := `
web:
  port: "0"
  static_dir: ""
camera:
  source: push
cycle:
  poll_interval: 20ms
  grace_delay: 100ms
narrate:
  provider: log
` + extra
	path := filepath.Join(t.TempDir(), "moodcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func happyDetector(m *detect.Mock) DetectorFactory {
	m.DetectFunc = func(ctx context.Context, frame camera.Frame) (*detect.Result, error) {
		return detect.Face(emotion.Happy, 0.9), nil
	}
	return func(detect.Config, *slog.Logger) (detect.Detector, error) {
		return m, nil
	}
}

type recordingNarrator struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingNarrator) Speak(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	return nil
}

func (r *recordingNarrator) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// runApp starts a in the background and stops it at cleanup.
func runApp(t *testing.T, a *App) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errc:
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})
	return errc
}

func TestInitFailureIsFatal(t *testing.T) {
	a, err := New(t.Context(), testConfig(t, ""),
		WithLogger(quietLogger()),
		WithDetectorFactory(func(detect.Config, *slog.Logger) (detect.Detector, error) {
			return nil, fmt.Errorf("read net: %w", detect.ErrModelUnavailable)
		}),
	)
	require.NoError(t, err)

	err = a.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, detect.ErrModelUnavailable)
	assert.False(t, a.ModelReady())
	assert.ErrorIs(t, a.StartCamera(t.Context()), ErrNotReady)
	assert.ErrorIs(t, a.StopCamera(t.Context()), ErrNotReady)
}

func TestInitWrapsUnknownFailure(t *testing.T) {
	a, err := New(t.Context(), testConfig(t, ""),
		WithLogger(quietLogger()),
		WithDetectorFactory(func(detect.Config, *slog.Logger) (detect.Detector, error) {
			return nil, errors.New("cuda exploded")
		}),
	)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Run(t.Context()), detect.ErrModelUnavailable)
}

func TestCameraLifecycle(t *testing.T) {
	det := detect.NewMock()
	narrator := &recordingNarrator{}
	a, err := New(t.Context(), testConfig(t, ""),
		WithLogger(quietLogger()),
		WithDetectorFactory(happyDetector(det)),
		WithNarrator(narrator),
	)
	require.NoError(t, err)
	runApp(t, a)
	require.Eventually(t, a.ModelReady, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.StartCamera(t.Context()))
	session := a.Session()
	require.NotEmpty(t, session)

	// A second start keeps the running session.
	require.NoError(t, a.StartCamera(t.Context()))
	assert.Equal(t, session, a.Session())

	_, err = a.push.Publish([]byte{0xFF, 0xD8, 0xFF, 0xD9}, 640, 480)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := a.Snapshot(t.Context())
		return err == nil && st.LastAccepted == emotion.Happy
	}, 2*time.Second, 10*time.Millisecond)

	st, err := a.Snapshot(t.Context())
	require.NoError(t, err)
	assert.True(t, st.CameraOn)
	assert.True(t, st.Detecting)
	assert.True(t, st.FacePresent)

	resp, err := a.Server().App().Test(httptest.NewRequest("GET", "/api/emotion", nil))
	require.NoError(t, err)
	var view web.EmotionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, emotion.Happy, view.Label)
	assert.Equal(t, "90.0%", view.Percent)

	require.Eventually(t, func() bool { return len(narrator.Lines()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "You look happy", narrator.Lines()[0])

	require.NoError(t, a.StopCamera(t.Context()))
	assert.Empty(t, a.Session())
	assert.False(t, a.push.IsOpen())

	st, err = a.Snapshot(t.Context())
	require.NoError(t, err)
	assert.False(t, st.CameraOn)
	assert.False(t, st.Detecting)
	assert.Equal(t, emotion.None, st.LastAccepted)

	resp, err = a.Server().App().Test(httptest.NewRequest("GET", "/api/emotion", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "null", string(body))

	// Stopping twice is harmless.
	require.NoError(t, a.StopCamera(t.Context()))
}

type deniedDevice struct {
	*camera.Push
}

func (deniedDevice) Name() string { return "webcam" }

func (deniedDevice) Open(ctx context.Context) error {
	return fmt.Errorf("open webcam 0: %w", camera.ErrDeviceUnavailable)
}

func TestCameraAccessDenied(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Camera.Source = camera.KindWebcam
	a, err := New(t.Context(), cfg,
		WithLogger(quietLogger()),
		WithDetectorFactory(happyDetector(detect.NewMock())),
		WithDeviceFactory(func(c camera.Config, _ *slog.Logger) (camera.Device, error) {
			return deniedDevice{camera.NewPush(c)}, nil
		}),
	)
	require.NoError(t, err)
	runApp(t, a)
	require.Eventually(t, a.ModelReady, 2*time.Second, 10*time.Millisecond)

	err = a.StartCamera(t.Context())
	assert.ErrorIs(t, err, camera.ErrDeviceUnavailable)
	assert.Empty(t, a.Session())

	resp, err := a.Server().App().Test(httptest.NewRequest("POST", "/api/camera/start", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	// Detection state is untouched.
	st, err := a.Snapshot(t.Context())
	require.NoError(t, err)
	assert.False(t, st.CameraOn)
	assert.True(t, st.ModelReady)
}

func TestShutdownReleasesCamera(t *testing.T) {
	det := detect.NewMock()
	a, err := New(t.Context(), testConfig(t, ""),
		WithLogger(quietLogger()),
		WithDetectorFactory(happyDetector(det)),
		WithNarrator(narrate.Log{Logger: quietLogger()}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	require.Eventually(t, a.ModelReady, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, a.StartCamera(t.Context()))

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, a.push.IsOpen())
	assert.True(t, det.Closed())
}

func TestPaletteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.yaml")
	require.NoError(t, os.WriteFile(path, []byte("happy: { color: \"#000000\", glyph: \"H\" }\n"), 0o644))

	a, err := New(t.Context(), testConfig(t, "palette:\n  file: "+path+"\n"), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "H", a.palette.Lookup(emotion.Happy).Glyph)

	_, err = New(t.Context(), testConfig(t, "palette:\n  file: /nonexistent/palette.yaml\n"), WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestNarratorSelection(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := testConfig(t, "")
	n, closer := buildNarrator(t.Context(), cfg, quietLogger())
	assert.IsType(t, narrate.Log{}, n)
	assert.Nil(t, closer)

	// A provider without credentials degrades to logging.
	cfg.Narrate.Provider = config.ProviderOpenAI
	n, closer = buildNarrator(t.Context(), cfg, quietLogger())
	assert.IsType(t, narrate.Log{}, n)
	assert.Nil(t, closer)

	// With a key the speaker is used.
	t.Setenv("OPENAI_API_KEY", "sk-test")
	n, closer = buildNarrator(t.Context(), cfg, quietLogger())
	assert.IsType(t, &narrate.Speaker{}, n)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
}

func TestBuildProviderChain(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg := testConfig(t, "")
	cfg.Narrate.Provider = config.ProviderChain
	p, err := buildProvider(t.Context(), cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "openai>google", p.Name())
	assert.NoError(t, p.Close())

	cfg.Narrate.Provider = "espeak"
	_, err = buildProvider(t.Context(), cfg, quietLogger())
	assert.Error(t, err)
}

type closeRecorder struct {
	name  string
	err   error
	order *[]string
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestClosers(t *testing.T) {
	var order []string
	first := errors.New("first")
	err := closers{
		closeRecorder{"a", nil, &order},
		closeRecorder{"b", first, &order},
		closeRecorder{"c", errors.New("second"), &order},
	}.Close()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, first, err)
}
