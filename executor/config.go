package executor

import (
	"errors"
	"time"

	"github.com/cascadedb/cascade/toml"
)

const (
	// DefaultRequestTimeout bounds one remote command exchange when the
	// request does not carry its own timeout.
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the network executor settings.
type Config struct {
	RequestTimeout toml.Duration `toml:"request-timeout"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		RequestTimeout: toml.Duration(DefaultRequestTimeout),
	}
}

// Validate returns an error if the configuration is invalid.
func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	return nil
}
