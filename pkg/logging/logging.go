package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Settings struct {
	Level string
	// File, when set, receives the same JSON lines as Writer, opened in append mode.
	File string
	// Writer defaults to stderr.
	Writer io.Writer
}

// NewLogger builds the process logger. The returned closer releases the log file and is
// safe to call when no file was opened.
func NewLogger(settings Settings) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if settings.Level != "" {
		parsed, err := zerolog.ParseLevel(settings.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", settings.Level, err)
		}
		level = parsed
	}

	out := settings.Writer
	if out == nil {
		out = os.Stderr
	}

	closer := func() error { return nil }
	if settings.File != "" {
		f, err := os.OpenFile(settings.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}
