// Package executor schedules remote commands against backend hosts and
// reports their outcomes through callbacks.
package executor

import (
	"time"

	"github.com/google/uuid"

	"github.com/cascadedb/cascade/models"
)

// RemoteRequest is one command addressed to a concrete host.
type RemoteRequest struct {
	ID       uuid.UUID
	Target   string // host:port
	Database string
	Command  models.Document
	Metadata models.Document

	// Timeout bounds the whole exchange. Zero means the executor default.
	Timeout time.Duration
}

// NewRemoteRequest builds a request with a fresh id.
func NewRemoteRequest(target, database string, command, metadata models.Document) RemoteRequest {
	return RemoteRequest{
		ID:       uuid.New(),
		Target:   target,
		Database: database,
		Command:  command,
		Metadata: metadata,
	}
}

// RemoteResponse is the reply to a RemoteRequest.
type RemoteResponse struct {
	Body models.Document
	From string // host:port that answered
	RTT  time.Duration
}

// Callback receives the outcome of a scheduled command: a response body, or
// an error describing a transport failure or cancellation. It is invoked
// exactly once, on an executor-owned goroutine, even after Cancel. Callbacks
// must not assume any particular goroutine and may run concurrently with the
// scheduler's other callbacks.
type Callback func(resp RemoteResponse, err error)

// Handle identifies one scheduled command so it can be canceled. Handles are
// opaque; only the executor that issued a handle can interpret it.
type Handle interface{}

// TaskExecutor schedules remote commands. Schedule either hands the request
// to the transport and returns a handle, or returns an error without ever
// invoking the callback. Cancel is non-blocking: the callback still runs,
// eventually, with a cancellation error.
type TaskExecutor interface {
	Schedule(req RemoteRequest, cb Callback) (Handle, error)
	Cancel(h Handle)
}
