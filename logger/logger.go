package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func InitLogger(level string) *zerolog.Logger {
	return InitLoggerWithWriter(level, os.Stderr)
}

func InitLoggerWithWriter(level string, w io.Writer) *zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}

	logger := zerolog.New(consoleWriter).
		With().
		Timestamp().
		Logger()
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.DefaultContextLogger = &logger
	return &logger
}

// ParseLevel maps a level name to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func Logger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithComponent returns a context whose logger carries a component field.
func WithComponent(ctx context.Context, component string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("component", component).Logger()
	return l.WithContext(ctx)
}
