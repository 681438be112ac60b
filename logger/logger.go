// Package logger builds the zap loggers used across the routing node.
package logger

import (
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at debug level, suitable for
// tests and tools. Daemons build theirs from a Config instead.
func New(w io.Writer) *zap.Logger {
	return newLogger(w, zapcore.DebugLevel)
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(newEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	))
}

// newEncoderConfig renders timestamps as RFC3339 UTC and durations the way
// operators write them, so log lines and configuration files agree.
func newEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}
	return config
}

// DurationLiteral returns a field whose value is the given duration formatted
// the way operators write it (e.g. 20s), rather than in nanoseconds.
func DurationLiteral(key string, val time.Duration) zap.Field {
	return zap.String(key, val.String())
}
