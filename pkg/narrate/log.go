package narrate

import (
	"context"
	"log/slog"
)

// Log is a Narrator that writes announcements to a logger instead of
// speaking them. It is the fallback when no TTS provider is configured.
type Log struct {
	Logger *slog.Logger
}

// Speak logs text at info level.
func (l Log) Speak(ctx context.Context, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "narration", "text", text)
	return nil
}
