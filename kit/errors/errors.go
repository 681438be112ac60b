// Package errors defines the error type shared by the routing layer.
//
// Errors carry a machine-readable code, a human-readable message, and a
// logical stack trace. The Code targets automated handlers (retry
// classification, interrupt promotion) so that recovery can occur; Msg is
// used by the system operator to help diagnose and fix the problem; Op and
// Err chain errors together to further help operators.
package errors

import (
	"fmt"
	"strings"
)

// Error codes recognized by the routing layer. The retry classifier and the
// dispatcher's interrupt handling switch on these, so the set is closed; any
// error arriving without a code is treated as EInternal.
const (
	EInternal = "internal error"
	EInvalid  = "invalid" // validation failed

	// Targeting errors. Shard lookup and the targeter produce these; the
	// dispatcher surfaces them without retrying (the targeter retries
	// internally while it waits for an eligible member).
	EShardNotFound  = "shard not found"
	ENoPrimary      = "no primary available"
	ENoEligibleHost = "no eligible host"

	// Transport errors, observed via executor callback status.
	EHostUnreachable = "host unreachable"
	ENetworkTimeout  = "network timeout"
	EConnectionReset = "connection reset"

	// Command errors, embedded in a shard's reply body.
	ENotPrimary         = "not primary"
	EPrimarySteppedDown = "primary stepped down"
	ECursorNotFound     = "cursor not found"
	EQueryPlanKilled    = "query plan killed"
	EUnauthorized       = "unauthorized"

	// Cancellation and interruption.
	ECallbackCanceled = "callback canceled"
	EInterrupted      = "interrupted"
)

// Error is the error struct of the routing layer.
//
// To create a simple error,
//
//	&Error{Code: EShardNotFound}
//
// To show where the error happens, add Op.
//
//	&Error{Code: EShardNotFound, Op: "cluster.Registry.Shard"}
//
// To show an error with an unpredictable value, add the value in Msg.
//
//	&Error{Code: ENoPrimary, Msg: fmt.Sprintf("shard %s has no primary", id)}
//
// To show an error wrapped with another error.
//
//	&Error{Code: EInterrupted, Err: ctx.Err()}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the root error, if available; otherwise
// returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return EInternal
	}

	if e == nil {
		return ""
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise returns an
// empty string.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return ""
	}

	if e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return "An internal error has occurred."
	}

	if e == nil {
		return ""
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}
