package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Text-to-Speech.
//
// Credentials come from, in order: an API key, a service account file,
// then application default credentials.
type Google struct {
	config *Config
	svc    *texttospeech.Service
	logger *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "en-US-Standard-C"
	cfg.Apply(opts...)

	clientOpts := []option.ClientOption{}
	switch {
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		ts, err := google.DefaultTokenSource(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("%w: %v", ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string { return providerGoogle }

// Synthesize converts text to LINEAR16 audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.svc.Text.Synthesize(g.request(text)).Context(ctx).Do()
	if err != nil {
		return nil, g.wrap(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	audio = stripWAVHeader(audio)

	latency := time.Since(start)
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency.Milliseconds(),
		"voice", g.config.VoiceID,
	)

	rate := SampleRateFromEncoding(g.config.OutputFormat)
	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: pcmEncoding(rate), SampleRate: rate, Channels: 1},
		CharCount: len(text),
		Latency:   latency,
	}, nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	_, err := g.svc.Voices.List().LanguageCode(g.config.Language).Context(ctx).Do()
	if err != nil {
		return g.wrap(err)
	}
	return nil
}

// Close is a no-op; the service holds no long-lived connections.
func (g *Google) Close() error { return nil }

func (g *Google) request(text string) *texttospeech.SynthesizeSpeechRequest {
	return &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.Language,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(SampleRateFromEncoding(g.config.OutputFormat)),
			SpeakingRate:    g.config.Rate,
		},
	}
}

func (g *Google) wrap(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGoogle,
		}
	}
	return WrapError(providerGoogle, err)
}

func pcmEncoding(rate int) Encoding {
	switch rate {
	case 16000:
		return EncodingPCM16
	case 22050:
		return EncodingPCM22
	default:
		return EncodingPCM24
	}
}

// stripWAVHeader drops the 44-byte RIFF header LINEAR16 responses carry.
func stripWAVHeader(b []byte) []byte {
	if len(b) >= 44 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE" {
		return b[44:]
	}
	return b
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
