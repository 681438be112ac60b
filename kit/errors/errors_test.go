package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		msg  string
	}{
		{
			name: "nil error",
		},
		{
			name: "simple error",
			err:  &Error{Msg: "simple error"},
			msg:  "simple error",
		},
		{
			name: "embedded error",
			err:  &Error{Err: &Error{Msg: "embedded error"}},
			msg:  "embedded error",
		},
		{
			name: "default error",
			err:  fmt.Errorf("s%s", "omething"),
			msg:  "An internal error has occurred.",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.msg, ErrorMessage(c.err))
		})
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
		},
		{
			name: "code on the error",
			err:  &Error{Code: EShardNotFound},
			want: EShardNotFound,
		},
		{
			name: "code on the wrapped error",
			err:  &Error{Msg: "dispatch failed", Err: &Error{Code: EHostUnreachable}},
			want: EHostUnreachable,
		},
		{
			name: "foreign error",
			err:  fmt.Errorf("boom"),
			want: EInternal,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, ErrorCode(c.err))
		})
	}
}

func TestError_Error(t *testing.T) {
	err := &Error{
		Code: ENoPrimary,
		Msg:  "shard s0 has no primary",
		Err:  &Error{Code: ENetworkTimeout, Msg: "monitor timed out"},
	}
	require.Equal(t, "shard s0 has no primary: monitor timed out", err.Error())
	require.Equal(t, "<no primary available>", (&Error{Code: ENoPrimary}).Error())
}
