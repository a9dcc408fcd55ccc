package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

type Logger = *slog.Logger

func NewLogger(level slog.Level) Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// Discard returns a logger that drops everything. Used in tests and by
// components constructed without an explicit logger.
func Discard() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
