// Package tts turns announcement text into audio.
//
// Providers are interchangeable behind the Provider interface: OpenAI speech,
// Google Cloud Text-to-Speech, or a Chain that falls back from one to the
// next. Narration lines are short, so every provider returns a complete
// buffer rather than a stream.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer provider.Close()
//	result, _ := provider.Synthesize(ctx, "You look happy")
package tts

import (
	"context"
	"strings"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// CharCount is the number of characters synthesized.
	CharCount int

	// Latency is the time until the provider answered.
	Latency time.Duration
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingMP3   Encoding = "mp3_44100_128"
	EncodingOgg   Encoding = "ogg_opus"
)

// IsPCM reports whether the encoding is raw 16-bit PCM.
func (e Encoding) IsPCM() bool {
	return strings.HasPrefix(string(e), "pcm_")
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingMP3:
		return 44100
	case EncodingOgg:
		return 48000
	default:
		return 24000
	}
}
