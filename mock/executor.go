// Package mock provides test doubles for the routing node's collaborators.
package mock

import (
	"sync"
	"time"

	"github.com/cascadedb/cascade/executor"
	kiterrors "github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/models"
)

// ScheduledCommand is one command handed to the mock executor. Tests drive
// its outcome through Respond, Fail, or the executor's Cancel; the callback
// fires exactly once, on its own goroutine, whichever comes first.
type ScheduledCommand struct {
	Request executor.RemoteRequest

	cb       executor.Callback
	once     sync.Once
	mu       sync.Mutex
	canceled bool
}

// Respond completes the command with a reply body.
func (c *ScheduledCommand) Respond(body models.Document) {
	c.finish(executor.RemoteResponse{Body: body, From: c.Request.Target}, nil)
}

// Fail completes the command with a transport error.
func (c *ScheduledCommand) Fail(err error) {
	c.finish(executor.RemoteResponse{From: c.Request.Target}, err)
}

// Canceled reports whether Cancel was called for this command.
func (c *ScheduledCommand) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

func (c *ScheduledCommand) finish(resp executor.RemoteResponse, err error) {
	c.once.Do(func() {
		go c.cb(resp, err)
	})
}

// TaskExecutor is a manual-reply executor double. Scheduled commands are
// exposed through Take (or the Scheduled log) and stay pending until the test
// completes them.
type TaskExecutor struct {
	// ScheduleFn overrides Schedule entirely when set.
	ScheduleFn func(req executor.RemoteRequest, cb executor.Callback) (executor.Handle, error)

	// ScheduleErr makes every Schedule call fail without invoking the
	// callback, mimicking an executor that refuses the request.
	ScheduleErr error

	mu        sync.Mutex
	scheduled []*ScheduledCommand
	pending   chan *ScheduledCommand
}

// NewTaskExecutor returns an executor double with room for 128 pending
// commands.
func NewTaskExecutor() *TaskExecutor {
	return &TaskExecutor{pending: make(chan *ScheduledCommand, 128)}
}

// Schedule implements executor.TaskExecutor.
func (e *TaskExecutor) Schedule(req executor.RemoteRequest, cb executor.Callback) (executor.Handle, error) {
	if e.ScheduleFn != nil {
		return e.ScheduleFn(req, cb)
	}
	if e.ScheduleErr != nil {
		return nil, e.ScheduleErr
	}

	c := &ScheduledCommand{Request: req, cb: cb}
	e.mu.Lock()
	e.scheduled = append(e.scheduled, c)
	e.mu.Unlock()
	e.pending <- c
	return c, nil
}

// Cancel implements executor.TaskExecutor. The command's callback fires with
// a callback-canceled error unless it already completed.
func (e *TaskExecutor) Cancel(h executor.Handle) {
	c, ok := h.(*ScheduledCommand)
	if !ok {
		return
	}
	c.mu.Lock()
	c.canceled = true
	c.mu.Unlock()
	c.finish(executor.RemoteResponse{From: c.Request.Target}, &kiterrors.Error{
		Code: kiterrors.ECallbackCanceled,
		Msg:  "command canceled",
	})
}

// Take returns the next pending command, waiting up to timeout.
func (e *TaskExecutor) Take(timeout time.Duration) (*ScheduledCommand, bool) {
	select {
	case c := <-e.pending:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// ScheduleCalls returns how many commands were scheduled overall.
func (e *TaskExecutor) ScheduleCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.scheduled)
}

// Scheduled returns a snapshot of every command scheduled so far.
func (e *TaskExecutor) Scheduled() []*ScheduledCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*ScheduledCommand(nil), e.scheduled...)
}
