package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Webcam is a Device backed by an OpenCV VideoCapture.
// A reader goroutine keeps the newest frame encoded as JPEG.
type Webcam struct {
	*latest
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebcam creates a webcam device. Nothing is opened until Open.
func NewWebcam(cfg Config, logger *slog.Logger) *Webcam {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webcam{
		latest: newLatest(cfg.MaxAge),
		cfg:    cfg,
		logger: logger.With("component", "camera.webcam"),
	}
}

// Name returns "webcam".
func (w *Webcam) Name() string { return KindWebcam }

// Open acquires the capture device and starts reading frames.
func (w *Webcam) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(w.cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, w.cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: %q not opened", ErrDeviceUnavailable, w.cfg.Device)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(w.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(w.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(w.cfg.Framerate))

	w.reset()
	w.cap = capture
	readCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.read(readCtx, capture)

	w.logger.Info("webcam opened",
		"device", w.cfg.Device,
		"width", int(capture.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(capture.Get(gocv.VideoCaptureFrameHeight)),
	)
	return nil
}

func (w *Webcam) read(ctx context.Context, capture *gocv.VideoCapture) {
	defer w.wg.Done()

	img := gocv.NewMat()
	defer img.Close()

	params := []int{gocv.IMWriteJpegQuality, w.cfg.Quality}
	misses := 0

	for ctx.Err() == nil {
		if ok := capture.Read(&img); !ok || img.Empty() {
			misses++
			if misses == 30 {
				w.logger.Warn("webcam returned no frames", "device", w.cfg.Device)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			w.logger.Debug("jpeg encode failed", "error", err)
			continue
		}
		data := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		w.store(data, img.Cols(), img.Rows())
	}
}

// Close stops the reader and releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cap == nil {
		return nil
	}
	w.cancel()
	w.wg.Wait()

	err := w.cap.Close()
	w.cap = nil
	w.reset()
	w.logger.Info("webcam closed", "device", w.cfg.Device)
	return err
}

var _ Device = (*Webcam)(nil)
