package utils

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// SetupLogger installs the process-wide slog handler. Level comes from
// LOG_LEVEL (debug, info, warn, error; default info).
func SetupLogger() {
	SetupLoggerWithLevel(ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

// SetupLoggerWithLevel installs a colored handler at the given level
func SetupLoggerWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			AddSource:  level == slog.LevelDebug,
		}),
	))
}

func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
