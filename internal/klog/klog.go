// Package klog wraps a zap.Logger behind a single package-level
// sync.Once-initialized instance, gated by the KASPEAK_LOG_LEVEL
// environment variable. It replaces the teacher's bare env-var-toggled
// debuglog package now that structured, leveled fields are needed
// throughout ingestion and the session façade.
package klog

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// defaultLevel is warn, per the environment's default threshold.
const defaultLevel = zapcore.WarnLevel

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return defaultLevel, false
	}
}

func build() *zap.Logger {
	level := defaultLevel
	if v, ok := parseLevel(os.Getenv("KASPEAK_LOG_LEVEL")); ok {
		level = v
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panicking; logging
		// must never be the reason the session fails to start.
		return zap.NewNop()
	}
	return l
}

// L returns the process-wide logger, building it on first use.
func L() *zap.Logger {
	once.Do(func() {
		logger = build()
	})
	return logger
}

// Sync flushes any buffered log entries. Call once at process exit;
// errors are intentionally discarded, matching zap's own recommended
// usage for stderr-backed encoders.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// With returns a child logger carrying the given structured fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
