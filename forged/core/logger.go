package core

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/Oudwins/taskforge/internals/conf"
)

// InitLogger logs to stdout and {data_dir}/log.txt. The caller closes the
// returned file.
func InitLogger(config *conf.Config) (*slog.Logger, *os.File, error) {
	logPath := filepath.Join(config.Server.DataDir, "log.txt")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, err
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := NewLogger(io.MultiWriter(os.Stdout, logFile), config.Server.LogLevel, !isatty.IsTerminal(os.Stdout.Fd()))
	slog.SetDefault(logger)
	return logger, logFile, nil
}

func NewLogger(w io.Writer, level string, noColor bool) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:     ParseLevel(level),
		AddSource: true,
		NoColor:   noColor,
	})
	return slog.New(handler)
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is
// debug.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
