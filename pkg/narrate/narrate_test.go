package narrate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-moodcam/pkg/emotion"
	"github.com/teslashibe/go-moodcam/pkg/narrate"
	"github.com/teslashibe/go-moodcam/pkg/tts"
)

func TestDebouncerSuppressesRepeats(t *testing.T) {
	var d narrate.Debouncer
	seq := []emotion.Label{emotion.Happy, emotion.Happy, emotion.Sad, emotion.Sad, emotion.Happy}

	var spoken []emotion.Label
	for _, l := range seq {
		if d.Offer(l) {
			spoken = append(spoken, l)
		}
	}

	assert.Equal(t, []emotion.Label{emotion.Happy, emotion.Sad, emotion.Happy}, spoken)
	assert.Equal(t, emotion.Happy, d.Last())
}

func TestDebouncerReset(t *testing.T) {
	var d narrate.Debouncer
	require.True(t, d.Offer(emotion.Angry))
	require.False(t, d.Offer(emotion.Angry))

	d.Reset()
	assert.Equal(t, emotion.None, d.Last())
	assert.True(t, d.Offer(emotion.Angry))
}

func TestPhrase(t *testing.T) {
	tests := []struct {
		template string
		label    emotion.Label
		want     string
	}{
		{"", emotion.Happy, "You look happy"},
		{narrate.DefaultPhrase, emotion.Surprised, "You look surprised"},
		{"Feeling %s?", emotion.Sad, "Feeling sad?"},
		{"Detected", emotion.Fearful, "Detected fearful"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, narrate.Phrase(tt.template, tt.label))
		})
	}
}

func TestNarratorFunc(t *testing.T) {
	var got string
	n := narrate.NarratorFunc(func(ctx context.Context, text string) error {
		got = text
		return nil
	})
	require.NoError(t, n.Speak(context.Background(), "hi"))
	assert.Equal(t, "hi", got)
	assert.NoError(t, narrate.Log{}.Speak(context.Background(), "logged"))
}

// recordingPlayer collects every result it is asked to play.
type recordingPlayer struct {
	mu     sync.Mutex
	played []*tts.AudioResult
	err    error
}

func (p *recordingPlayer) Play(ctx context.Context, result *tts.AudioResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, result)
	return p.err
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestSpeakerSynthesizesAndPlays(t *testing.T) {
	provider := tts.NewMock()
	player := &recordingPlayer{}
	s := narrate.NewSpeaker(provider, player)
	defer s.Close()

	require.NoError(t, s.Speak(context.Background(), "You look happy"))
	require.NoError(t, s.Speak(context.Background(), "You look sad"))

	assert.Eventually(t, func() bool { return player.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"You look happy", "You look sad"}, provider.Texts())
}

func TestSpeakerSurvivesFailures(t *testing.T) {
	provider := tts.WithError(errors.New("offline"))
	player := &recordingPlayer{}
	s := narrate.NewSpeaker(provider, player)
	defer s.Close()

	require.NoError(t, s.Speak(context.Background(), "one"))
	require.NoError(t, s.Speak(context.Background(), "two"))

	assert.Eventually(t, func() bool { return provider.CallCount("Synthesize") == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, player.count())
}

func TestSpeakerQueueFull(t *testing.T) {
	release := make(chan struct{})
	provider := tts.NewMock()
	next := provider.SynthesizeFunc
	provider.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		<-release
		return next(ctx, text)
	}
	s := narrate.NewSpeaker(provider, &recordingPlayer{}, narrate.WithQueue(1))
	defer s.Close()
	defer close(release)

	require.NoError(t, s.Speak(context.Background(), "first"))
	// Wait until the worker has taken the first line off the queue.
	require.Eventually(t, func() bool { return provider.CallCount("Synthesize") == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Speak(context.Background(), "second"))
	assert.ErrorIs(t, s.Speak(context.Background(), "third"), narrate.ErrQueueFull)
}

func TestSpeakerClosed(t *testing.T) {
	s := narrate.NewSpeaker(tts.NewMock(), &recordingPlayer{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Speak(context.Background(), "late"), narrate.ErrClosed)
}
