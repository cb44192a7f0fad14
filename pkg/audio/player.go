// Package audio plays synthesized speech on the local machine.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/teslashibe/go-moodcam/pkg/tts"
)

// ErrNoAudio is returned when there is nothing to play.
var ErrNoAudio = errors.New("audio: empty result")

// Player plays a complete synthesis result, returning when playback ends.
type Player interface {
	Play(ctx context.Context, result *tts.AudioResult) error
}

// Command plays audio by piping it into an external program such as
// ffplay or aplay. Raw PCM is described to the program with format flags;
// compressed formats are left for the program to probe.
type Command struct {
	// Program is "ffplay" (default) or "aplay".
	Program string

	mu sync.Mutex // one playback at a time
}

// NewCommand creates a command player for program.
func NewCommand(program string) *Command {
	if program == "" {
		program = "ffplay"
	}
	return &Command{Program: program}
}

// Play pipes result.Audio into the player program.
func (c *Command) Play(ctx context.Context, result *tts.AudioResult) error {
	if result == nil || len(result.Audio) == 0 {
		return ErrNoAudio
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	args := c.args(result.Format)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	cmd.Stdin = bytes.NewReader(result.Audio)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("audio: %s: %w (%s)", c.Program, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// args builds the command line for the configured program.
func (c *Command) args(format tts.AudioFormat) []string {
	pcm := format.Encoding.IsPCM()
	rate := format.SampleRate
	if rate == 0 {
		rate = tts.SampleRateFromEncoding(format.Encoding)
	}
	channels := format.Channels
	if channels == 0 {
		channels = 1
	}

	switch c.Program {
	case "aplay":
		if pcm {
			return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", strconv.Itoa(rate), "-c", strconv.Itoa(channels), "-"}
		}
		return []string{"-q", "-"}
	default:
		args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
		if pcm {
			args = append(args, "-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", strconv.Itoa(channels))
		}
		return append(args, "-i", "pipe:0")
	}
}

// Discard is a Player that drops audio. Useful on headless hosts.
type Discard struct{}

// Play returns immediately.
func (Discard) Play(ctx context.Context, result *tts.AudioResult) error {
	return ctx.Err()
}

var (
	_ Player = (*Command)(nil)
	_ Player = Discard{}
)
