// Package toml adds support to marshal and unmarshal types not in the
// official TOML spec.
package toml

import (
	"fmt"
	"time"
)

// Duration is a TOML wrapper type for time.Duration.
type Duration time.Duration

// String returns the string representation of the duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	// Ignore if there is no value set.
	if len(text) == 0 {
		return nil
	}

	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}

	*d = Duration(duration)
	return nil
}

// MarshalText converts a duration to a string for encoding TOML.
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}
