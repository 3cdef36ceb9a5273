package obs

import (
	"log/slog"
	"os"
)

// SetupLogging configures the process-wide slog default. Structured mode
// emits JSON lines; otherwise a human-readable text handler is used.
func SetupLogging(structured bool) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
