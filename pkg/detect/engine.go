package detect

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodcam/pkg/camera"
)

// ferPlusInput is the FER+ input edge in pixels.
const ferPlusInput = 64

// Engine runs YuNet face detection and FER+ expression recognition.
type Engine struct {
	face   gocv.FaceDetectorYN
	expr   gocv.Net
	config Config
	logger *slog.Logger
	mu     sync.Mutex // Protects inference
}

// NewEngine loads both models. Failures wrap ErrModelUnavailable.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, path := range []string{cfg.FaceModel, cfg.ExpressionModel} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, path, err)
		}
	}

	expr := gocv.ReadNetFromONNX(cfg.ExpressionModel)
	if expr.Empty() {
		return nil, fmt.Errorf("%w: cannot load %s", ErrModelUnavailable, cfg.ExpressionModel)
	}
	expr.SetPreferableBackend(gocv.NetBackendDefault)
	expr.SetPreferableTarget(gocv.NetTargetCPU)

	size := cfg.InputSize
	if size <= 0 {
		size = DefaultConfig().InputSize
	}
	face := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModel,
		"",
		image.Pt(size, size),
		float32(cfg.FaceScore),
		float32(cfg.NMSThreshold),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	logger.Info("models loaded", "face", cfg.FaceModel, "expression", cfg.ExpressionModel)
	return &Engine{
		face:   face,
		expr:   expr,
		config: cfg,
		logger: logger.With("component", "detect"),
	}, nil
}

// Detect finds the best face in frame and scores its expression.
func (e *Engine) Detect(ctx context.Context, frame camera.Frame) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrInvalidFrame
	}

	cand := e.findFace(img)
	if cand == nil {
		return nil, nil
	}

	// The face pass can be slow on large frames; honour a deadline that
	// expired meanwhile before running the second model.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logits, err := e.scoreExpression(img, cand.Region)
	if err != nil {
		return nil, err
	}

	return &Result{
		Region:       cand.Region,
		Landmarks:    cand.Landmarks,
		Score:        cand.Score,
		Distribution: FERPlusDistribution(logits),
	}, nil
}

func (e *Engine) findFace(img gocv.Mat) *Candidate {
	scale := inputScale(img.Cols(), img.Rows(), e.config.InputSize)

	input := img
	if scale < 1 {
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(img, &small, image.Pt(int(float64(img.Cols())*scale), int(float64(img.Rows())*scale)), 0, 0, gocv.InterpolationLinear)
		input = small
	}

	e.face.SetInputSize(image.Pt(input.Cols(), input.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	e.face.Detect(input, &faces)

	// YuNet rows: x, y, w, h, five landmark (x, y) pairs, score.
	cands := make([]Candidate, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		at := func(c int) float64 { return float64(faces.GetFloatAt(r, c)) / scale }
		landmarks := make([]Point, 5)
		for i := range landmarks {
			landmarks[i] = Point{X: at(4 + 2*i), Y: at(5 + 2*i)}
		}
		cands = append(cands, Candidate{
			Region:    Region{X: at(0), Y: at(1), Width: at(2), Height: at(3)},
			Landmarks: landmarks,
			Score:     float64(faces.GetFloatAt(r, 14)),
		})
	}

	if len(cands) > 1 {
		e.logger.Debug("multiple faces", "count", len(cands))
	}
	best := SelectBest(cands)
	if best == nil {
		return nil
	}
	c := *best
	return &c
}

func (e *Engine) scoreExpression(img gocv.Mat, r Region) ([]float32, error) {
	x0, y0, x1, y1 := clampRegion(r, img.Cols(), img.Rows())
	if x1-x0 < 2 || y1-y0 < 2 {
		return nil, fmt.Errorf("detect: face region out of frame")
	}

	roi := img.Region(image.Rect(x0, y0, x1, y1))
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(ferPlusInput, ferPlusInput), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.expr.SetInput(blob, "")
	out := e.expr.Forward("")
	defer out.Close()

	n := out.Total()
	if n < len(ferPlusLabels)-1 {
		return nil, fmt.Errorf("detect: unexpected expression output size %d", n)
	}
	logits := make([]float32, n)
	for i := 0; i < n; i++ {
		logits[i] = out.GetFloatAt(0, i)
	}
	return logits, nil
}

// Close releases the models.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.face.Close()
	return e.expr.Close()
}

var _ Detector = (*Engine)(nil)
