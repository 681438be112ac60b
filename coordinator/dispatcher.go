// Package coordinator multicasts commands from the routing node to backend
// shards and reconciles their replies.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/cluster"
	"github.com/cascadedb/cascade/executor"
	kiterrors "github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/models"
)

const (
	// maxRetries bounds per-shard retries of network and not-primary class
	// errors.
	maxRetries = 3

	// resolveTimeout bounds one target resolution. The targeter retries
	// internally while it waits, so the dispatcher never retries
	// resolution failures.
	resolveTimeout = 20 * time.Second
)

// Request is one command addressed to one shard. Immutable after submission.
type Request struct {
	ShardID cluster.ShardID
	Command models.Document
}

// Response is the final outcome for one shard. Either Reply is set and Err is
// nil, or Err carries the shard's failure. Host is the resolved host:port,
// empty when target resolution never succeeded.
type Response struct {
	ShardID cluster.ShardID
	Reply   models.Document
	Err     error
	Host    string
}

// ShardRegistry is the dispatcher's view of the shard topology.
type ShardRegistry interface {
	Shard(id cluster.ShardID) (*cluster.Shard, bool)
}

// remote tracks one shard's request lifecycle. All fields are guarded by the
// dispatcher mutex. A remote holds at most one of an in-flight handle or an
// unobserved outcome; once done is set nothing mutates it again.
type remote struct {
	shardID cluster.ShardID
	command models.Document

	host       string          // set on first successful resolution
	handle     executor.Handle // non-nil iff a send is outstanding
	scheduling bool            // a send is being resolved and handed off

	reply      models.Document
	err        error
	hasResult  bool
	retryCount int
	done       bool
}

// Dispatcher fans one command batch out to its shards, collects replies, and
// reconciles retries, cancellation, and targeting failures. The caller drives
// it by calling Next until Done reports true; each Next emits exactly one
// per-shard Response. Construction schedules every request before returning.
type Dispatcher struct {
	ctx      context.Context
	executor executor.TaskExecutor
	registry ShardRegistry
	db       string
	readPref cluster.ReadPreference
	metadata models.Document
	policy   RetryPolicy
	logger   *zap.Logger
	stats    *engineDispatchMetrics

	mu           sync.Mutex
	remotes      []*remote
	notify       chan struct{} // capacity 1; replaced at the top of every Next cycle
	interruptErr error
	stopRetrying bool
}

// New builds a dispatcher over requests and schedules all of them. The
// context is the caller's execution context: canceling it while a Next call
// waits interrupts the dispatch, cancels in-flight sends, and the remaining
// slots drain with the interrupt status.
func New(
	ctx context.Context,
	e executor.TaskExecutor,
	registry ShardRegistry,
	db string,
	requests []Request,
	readPref cluster.ReadPreference,
	policy RetryPolicy,
	log *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		ctx:      ctx,
		executor: e,
		registry: registry,
		db:       db,
		readPref: readPref,
		metadata: readPref.Document(),
		policy:   policy,
		logger:   log.With(zap.String("service", "dispatch"), zap.String("db", db)),
		stats:    newEngineDispatchMetrics(db),
		notify:   make(chan struct{}, 1),
	}
	for _, req := range requests {
		d.remotes = append(d.remotes, &remote{shardID: req.ShardID, command: req.Command})
	}

	d.scheduleRequests()
	return d
}

// Next blocks until some shard's outcome is ready, then emits it and marks
// that slot terminal. Among simultaneously ready slots, submission order
// decides. Next must not be called once Done reports true.
func (d *Dispatcher) Next() Response {
	if d.Done() {
		panic("coordinator: Next called on a completed dispatch")
	}

	for {
		if resp := d.ready(); resp != nil {
			return *resp
		}

		d.mu.Lock()
		ch := d.notify
		interrupted := d.interruptErr != nil
		d.mu.Unlock()

		if interrupted {
			// Already interrupted: wait out the canceled callbacks
			// without further interrupt checks.
			<-ch
			continue
		}

		select {
		case <-ch:
		case <-d.ctx.Done():
			d.mu.Lock()
			if d.interruptErr == nil {
				d.interruptErr = &kiterrors.Error{
					Code: kiterrors.EInterrupted,
					Msg:  "dispatch interrupted",
					Err:  d.ctx.Err(),
				}
			}
			d.mu.Unlock()
			d.stats.interrupts.Inc()
			d.logger.Debug("Dispatch interrupted, canceling in-flight commands")
			d.cancelPendingRequests()
		}
	}
}

// Done reports whether every shard's outcome has been emitted.
func (d *Dispatcher) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.remotes {
		if !r.done {
			return false
		}
	}
	return true
}

// StopRetrying prevents any further sends; in-flight commands complete
// naturally. Idempotent.
func (d *Dispatcher) StopRetrying() {
	d.mu.Lock()
	d.stopRetrying = true
	d.mu.Unlock()
}

// Close tears the dispatch down: it stops retrying, cancels in-flight sends,
// and drains the remaining responses. This is the only path that discards
// responses; their failure statuses are returned, aggregated, for logging.
// A fully drained dispatcher closes with no error.
func (d *Dispatcher) Close() error {
	d.cancelPendingRequests()

	var result *multierror.Error
	for !d.Done() {
		resp := d.Next()
		if resp.Err != nil {
			result = multierror.Append(result, fmt.Errorf("shard %s: %w", resp.ShardID, resp.Err))
		}
	}
	return result.ErrorOrNil()
}

// ready re-arms the completion signal, schedules any slot that needs a (re)
// send, and emits the first unobserved outcome, if any.
func (d *Dispatcher) ready() *Response {
	// Replace the signal before scanning so a completion arriving after
	// the scan wakes the caller's wait rather than being lost with the old
	// channel.
	d.mu.Lock()
	d.notify = make(chan struct{}, 1)
	stop := d.stopRetrying
	d.mu.Unlock()

	if !stop {
		d.scheduleRequests()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.remotes {
		if !r.hasResult || r.done {
			continue
		}
		r.done = true

		status := r.err
		if status == nil {
			status = models.StatusFromResult(r.reply)
		}
		if status == nil {
			return &Response{ShardID: r.shardID, Reply: r.reply, Host: r.host}
		}

		// Promote executor cancellations to the caller's interrupt
		// status, so callers can tell their own interrupt from
		// executor-side cancellation.
		if d.interruptErr != nil && kiterrors.ErrorCode(status) == kiterrors.ECallbackCanceled {
			status = d.interruptErr
		}
		d.stats.failures.Inc()
		return &Response{ShardID: r.shardID, Err: status, Host: r.host}
	}
	return nil
}

// scheduleRequests clears retriable outcomes and (re)schedules every slot
// with neither an outcome nor an outstanding send. Resolution and executor
// hand-off happen outside the dispatcher mutex.
func (d *Dispatcher) scheduleRequests() {
	d.mu.Lock()
	if d.stopRetrying {
		d.mu.Unlock()
		return
	}
	var pending []int
	for i, r := range d.remotes {
		if r.done {
			continue
		}
		if r.hasResult {
			d.maybeRetryLocked(r)
		}
		if !r.hasResult && r.handle == nil && !r.scheduling {
			r.scheduling = true
			pending = append(pending, i)
		}
	}
	d.mu.Unlock()

	for _, i := range pending {
		if err := d.scheduleRequest(i); err != nil {
			// No send was scheduled, so no callback will run for this
			// slot; store the outcome and signal here instead.
			d.mu.Lock()
			r := d.remotes[i]
			r.scheduling = false
			if !r.hasResult {
				r.err = err
				r.reply = nil
				r.hasResult = true
				d.signalLocked()
			}
			d.mu.Unlock()
		}
	}
}

// maybeRetryLocked inspects a slot's unobserved outcome and clears it for
// another attempt when the error is retriable and budget remains. Callers
// must hold d.mu.
func (d *Dispatcher) maybeRetryLocked(r *remote) {
	status := r.err
	if status == nil {
		status = models.StatusFromResult(r.reply)
	}
	if status == nil {
		return
	}

	shard, ok := d.registry.Shard(r.shardID)
	if !ok {
		r.err = &kiterrors.Error{
			Code: kiterrors.EShardNotFound,
			Msg:  fmt.Sprintf("could not find shard %s", r.shardID),
		}
		r.reply = nil
		return
	}

	if r.host != "" {
		// Feed the failure back so future resolutions re-target.
		shard.MarkHostFailed(r.host, status)
	}

	code := kiterrors.ErrorCode(status)
	if d.policy.retriable(code) && r.retryCount < maxRetries {
		d.logger.Debug("Command failed with retriable error and will be retried",
			zap.String("shard", string(r.shardID)),
			zap.String("host", r.host),
			zap.String("error_code", code),
			zap.Int("retry", r.retryCount+1))
		d.stats.retries.Inc()
		r.retryCount++
		r.reply = nil
		r.err = nil
		r.hasResult = false
	}
}

// scheduleRequest resolves the slot's target and hands the command to the
// executor. Any returned error becomes the slot's outcome.
func (d *Dispatcher) scheduleRequest(i int) error {
	d.mu.Lock()
	r := d.remotes[i]
	shardID, command := r.shardID, r.command
	d.mu.Unlock()

	shard, ok := d.registry.Shard(shardID)
	if !ok {
		return &kiterrors.Error{
			Code: kiterrors.EShardNotFound,
			Msg:  fmt.Sprintf("could not find shard %s", shardID),
		}
	}

	host, err := shard.Targeter().FindHost(d.ctx, d.readPref, resolveTimeout)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.stopRetrying {
		d.mu.Unlock()
		return &kiterrors.Error{
			Code: kiterrors.ECallbackCanceled,
			Msg:  "dispatch stopped before send",
		}
	}
	r.host = host
	d.mu.Unlock()

	req := executor.NewRemoteRequest(host, d.db, command, d.metadata)
	handle, err := d.executor.Schedule(req, func(resp executor.RemoteResponse, cbErr error) {
		d.handleResponse(i, resp, cbErr)
	})
	if err != nil {
		return err
	}
	d.stats.sends.Inc()

	d.mu.Lock()
	if !r.hasResult {
		r.handle = handle
	}
	r.scheduling = false
	stopped := d.stopRetrying
	d.mu.Unlock()

	// The dispatch may have been torn down between the stop check and the
	// hand-off; cancel the stray send so its callback still completes the
	// slot.
	if stopped {
		d.executor.Cancel(handle)
	}
	return nil
}

// handleResponse records the executor's outcome for slot i. It runs on an
// executor-owned goroutine.
func (d *Dispatcher) handleResponse(i int, resp executor.RemoteResponse, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.remotes[i]

	// The send is no longer outstanding.
	r.handle = nil
	r.scheduling = false

	if err != nil {
		r.err = err
		r.reply = nil
	} else {
		r.reply = resp.Body
		r.err = nil
	}
	r.hasResult = true

	d.signalLocked()
}

// cancelPendingRequests stops retrying and cancels every outstanding send.
// Cancel is contractually non-blocking and the callbacks it triggers run
// asynchronously, so holding the mutex here is safe.
func (d *Dispatcher) cancelPendingRequests() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopRetrying = true
	for _, r := range d.remotes {
		if r.handle != nil {
			d.executor.Cancel(r.handle)
		}
	}
}

// signalLocked wakes a waiting Next call, at most once per signal generation.
// Callers must hold d.mu.
func (d *Dispatcher) signalLocked() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}
