package app

import (
	"context"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/camera"
)

// maxPreviewFPS caps the annotated stream sent to /ws/camera.
const maxPreviewFPS = 15

// frameSender receives annotated frames. *web.Server satisfies it.
type frameSender interface {
	SendCameraFrame(jpeg []byte)
	CameraViewers() int
}

// composer draws the overlay onto a frame. *overlay.Canvas satisfies it.
type composer interface {
	Compose(frame camera.Frame) ([]byte, error)
}

// previewInterval converts a capture framerate to the preview tick.
func previewInterval(fps int) time.Duration {
	if fps <= 0 || fps > maxPreviewFPS {
		fps = maxPreviewFPS
	}
	return time.Second / time.Duration(fps)
}

// startPreview streams annotated frames while viewers are connected.
// Caller holds a.mu.
func (a *App) startPreview(src camera.Source, fps int) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.stopPv, a.pvDone = cancel, done

	go func() {
		defer close(done)
		runPreview(ctx, src, a.canvas, a.server, previewInterval(fps), a.logger.Debug)
	}()
}

// stopPreview stops the stream and waits for it. Caller holds a.mu.
func (a *App) stopPreview() {
	if a.stopPv == nil {
		return
	}
	a.stopPv()
	<-a.pvDone
	a.stopPv, a.pvDone = nil, nil
}

// runPreview sends each new frame once, skipping work when nobody watches.
func runPreview(ctx context.Context, src camera.Source, c composer, out frameSender, every time.Duration, debug func(string, ...any)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if out.CameraViewers() == 0 || !src.Ready() {
			continue
		}
		frame, err := src.Frame()
		if err != nil || frame.Seq == lastSeq {
			continue
		}
		lastSeq = frame.Seq

		data, err := c.Compose(frame)
		if err != nil {
			debug("preview compose failed", "error", err)
			continue
		}
		out.SendCameraFrame(data)
	}
}
