package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os/exec"
	"time"
)

// H.264 NAL unit types used when assembling decodable chunks.
const (
	nalIDR   = 5
	nalSPS   = 7
	nalPPS   = 8
)

var annexBStart = []byte{0, 0, 0, 1}

// H264Decoder turns an Annex-B H.264 chunk into the JPEG of its last frame
// by piping it through ffmpeg.
type H264Decoder struct {
	// Program is the ffmpeg binary.
	Program string

	// Quality is the mjpeg q:v value (2-31, lower is better).
	Quality int

	// Timeout bounds one decode.
	Timeout time.Duration
}

// NewH264Decoder returns a decoder using ffmpeg from PATH.
func NewH264Decoder() *H264Decoder {
	return &H264Decoder{Program: "ffmpeg", Quality: 3, Timeout: 500 * time.Millisecond}
}

// Decode returns the last frame of chunk as JPEG.
func (d *H264Decoder) Decode(ctx context.Context, chunk []byte) ([]byte, error) {
	if len(chunk) < 100 {
		return nil, ErrNoFrame
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Program,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(chunk)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero on a truncated trailing frame; keep what it wrote.
	runErr := cmd.Run()
	frame := lastJPEG(stdout.Bytes())
	if frame == nil {
		if runErr != nil {
			return nil, fmt.Errorf("camera: ffmpeg: %w: %s", runErr, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, ErrNoFrame
	}
	if isBlankJPEG(frame) {
		return nil, ErrNoFrame
	}
	return frame, nil
}

// lastJPEG returns the final complete JPEG in an mjpeg stream.
func lastJPEG(stream []byte) []byte {
	start := bytes.LastIndex(stream, []byte{0xFF, 0xD8, 0xFF})
	if start < 0 {
		return nil
	}
	end := bytes.LastIndex(stream, []byte{0xFF, 0xD9})
	if end < start {
		return nil
	}
	return append([]byte(nil), stream[start:end+2]...)
}

// isBlankJPEG reports frames that decode to near-black or the flat gray an
// H.264 decoder emits before its first keyframe.
func isBlankJPEG(data []byte) bool {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}

	bounds := img.Bounds()
	if bounds.Dx() < 10 || bounds.Dy() < 10 {
		return true
	}

	var rSum, gSum, bSum, samples int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += bounds.Dy() / 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += bounds.Dx() / 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(b >> 8)
			samples++
		}
	}
	avgR, avgG, avgB := rSum/samples, gSum/samples, bSum/samples

	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}
	colorDiff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return colorDiff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Assembler collects Annex-B NAL units into chunks that start at a keyframe,
// so every chunk handed to the decoder is self-contained.
type Assembler struct {
	sps, pps []byte
	buf      bytes.Buffer
	started  bool

	// MaxBytes caps a chunk; the assembler waits for the next keyframe
	// once it is exceeded.
	MaxBytes int
}

var errChunkTooLarge = errors.New("camera: h264 chunk too large")

// Write appends Annex-B data holding one or more NAL units.
func (a *Assembler) Write(annexB []byte) error {
	for _, nal := range splitNALs(annexB) {
		switch nal[0] & 0x1F {
		case nalSPS:
			a.sps = append(a.sps[:0], nal...)
			continue
		case nalPPS:
			a.pps = append(a.pps[:0], nal...)
			continue
		case nalIDR:
			a.buf.Reset()
			for _, ps := range [][]byte{a.sps, a.pps} {
				if len(ps) > 0 {
					a.buf.Write(annexBStart)
					a.buf.Write(ps)
				}
			}
			a.started = true
		}
		if !a.started {
			continue
		}
		a.buf.Write(annexBStart)
		a.buf.Write(nal)
	}

	if a.MaxBytes > 0 && a.buf.Len() > a.MaxBytes {
		a.buf.Reset()
		a.started = false
		return errChunkTooLarge
	}
	return nil
}

// Chunk returns the data since the last keyframe, or nil before one arrived.
func (a *Assembler) Chunk() []byte {
	if !a.started {
		return nil
	}
	return append([]byte(nil), a.buf.Bytes()...)
}

// splitNALs splits Annex-B data on 3- and 4-byte start codes.
func splitNALs(b []byte) [][]byte {
	var nals [][]byte
	start := -1
	for i := 0; i+2 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 || b[i+2] != 1 {
			continue
		}
		if start >= 0 {
			end := i
			if end > start && b[end-1] == 0 {
				end--
			}
			if end > start {
				nals = append(nals, b[start:end])
			}
		}
		start = i + 3
		i += 2
	}
	if start >= 0 && start < len(b) {
		nals = append(nals, b[start:])
	}
	return nals
}
