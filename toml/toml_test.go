package toml_test

import (
	"testing"
	"time"

	btoml "github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/toml"
)

func TestDuration_UnmarshalText(t *testing.T) {
	var s struct {
		Timeout toml.Duration `toml:"timeout"`
	}
	_, err := btoml.Decode(`timeout = "1m30s"`, &s)
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, time.Duration(s.Timeout))

	var d toml.Duration
	require.NoError(t, d.UnmarshalText(nil))
	require.Zero(t, time.Duration(d))
	require.Error(t, d.UnmarshalText([]byte("bogus")))
}

func TestDuration_MarshalText(t *testing.T) {
	d := toml.Duration(20 * time.Second)
	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "20s", string(text))
	require.Equal(t, "20s", d.String())
}
