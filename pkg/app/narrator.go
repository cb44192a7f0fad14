package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/teslashibe/go-moodcam/internal/config"
	"github.com/teslashibe/go-moodcam/pkg/audio"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
	"github.com/teslashibe/go-moodcam/pkg/tts"
)

// buildProvider creates the TTS provider named by cfg.Narrate.Provider.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tts.Provider, error) {
	n := cfg.Narrate
	opts := []tts.Option{
		tts.WithLanguage(n.Language),
		tts.WithRate(n.Rate),
		tts.WithLogger(logger),
	}
	if n.Voice != "" {
		opts = append(opts, tts.WithVoice(n.Voice))
	}
	if n.Model != "" {
		opts = append(opts, tts.WithModel(n.Model))
	}

	openai := func() (tts.Provider, error) {
		return tts.NewOpenAI(append(opts, tts.WithAPIKey(config.OpenAIKey()))...)
	}
	google := func() (tts.Provider, error) {
		return tts.NewGoogle(ctx, append(opts,
			tts.WithAPIKey(config.GoogleAPIKey()),
			tts.WithCredentialsFile(config.GoogleCredentialsFile()),
		)...)
	}

	switch n.Provider {
	case config.ProviderOpenAI:
		return openai()
	case config.ProviderGoogle:
		return google()
	case config.ProviderChain:
		var members []tts.Provider
		var errs []error
		for _, build := range []func() (tts.Provider, error){openai, google} {
			p, err := build()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			members = append(members, p)
		}
		if len(members) == 0 {
			return nil, &tts.ChainError{Errors: errs}
		}
		return tts.NewChainWithLogger(logger, members...)
	default:
		return nil, fmt.Errorf("app: unknown narration provider %q", n.Provider)
	}
}

// buildNarrator returns the narrator for cfg and whatever must be closed on
// shutdown. A provider that cannot be built degrades to logging the phrases.
func buildNarrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (narrate.Narrator, io.Closer) {
	if cfg.Narrate.Provider == config.ProviderLog {
		return narrate.Log{Logger: logger}, nil
	}

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		logger.Warn("narration provider unavailable, logging phrases instead",
			"provider", cfg.Narrate.Provider, "error", err)
		return narrate.Log{Logger: logger}, nil
	}

	opts := []narrate.SpeakerOption{
		narrate.WithQueue(cfg.Narrate.Queue),
		narrate.WithLogger(logger),
	}
	if cfg.Narrate.Timeout > 0 {
		opts = append(opts, narrate.WithTimeout(cfg.Narrate.Timeout))
	}
	speaker := narrate.NewSpeaker(provider, audio.NewCommand(cfg.Audio.Player), opts...)
	logger.Info("narration enabled", "provider", provider.Name())
	return speaker, closers{speaker, provider}
}

// closers closes each member in order and returns the first error.
type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
