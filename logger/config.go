package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level zapcore.Level `toml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{Level: zapcore.InfoLevel}
}

// New constructs a logger from the configuration, writing to w.
func (c Config) New(w io.Writer) *zap.Logger {
	return newLogger(w, c.Level)
}
