package logging

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// NewLogger returns a slog logger writing JSON through zap, and the flush
// function to call before exit.
func NewLogger(level string) (*slog.Logger, func() error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	z := zap.Must(cfg.Build())
	return slog.New(zapslog.NewHandler(z.Core())), z.Sync
}

// NewCore wraps an existing core, e.g. an observer in tests.
func NewCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}
