package narrate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-moodcam/pkg/audio"
	"github.com/teslashibe/go-moodcam/pkg/tts"
)

// Speaker synthesizes text with a TTS provider and plays it through an
// audio player. Lines are queued and spoken one at a time by a single
// worker, so announcements never overlap.
type Speaker struct {
	provider tts.Provider
	player   audio.Player
	logger   *slog.Logger
	timeout  time.Duration

	queue chan string
	once  sync.Once
	done  chan struct{}
	wg    sync.WaitGroup
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithQueue sets how many lines may wait behind the one being spoken.
func WithQueue(n int) SpeakerOption {
	return func(s *Speaker) {
		if n > 0 {
			s.queue = make(chan string, n)
		}
	}
}

// WithTimeout bounds synthesis plus playback of a single line.
func WithTimeout(d time.Duration) SpeakerOption {
	return func(s *Speaker) {
		s.timeout = d
	}
}

// WithLogger sets the speaker's logger.
func WithLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) {
		s.logger = logger
	}
}

// NewSpeaker starts a speaker worker.
func NewSpeaker(provider tts.Provider, player audio.Player, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: provider,
		player:   player,
		logger:   slog.Default(),
		timeout:  15 * time.Second,
		queue:    make(chan string, 4),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "narrate.speaker")

	s.wg.Add(1)
	go s.run()
	return s
}

// Speak queues text without blocking.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.queue <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *Speaker) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case text := <-s.queue:
			s.say(text)
		}
	}
}

func (s *Speaker) say(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("synthesis failed", "provider", s.provider.Name(), "error", err, "text", text)
		return
	}
	if err := s.player.Play(ctx, result); err != nil {
		s.logger.Warn("playback failed", "error", err)
		return
	}
	s.logger.Debug("spoke", "text", text, "elapsed", time.Since(start))
}

// Close stops the worker. Queued lines are dropped.
func (s *Speaker) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

var _ Narrator = (*Speaker)(nil)
