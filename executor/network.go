package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/models"
)

// NetworkExecutor runs remote commands over HTTP. Each scheduled command gets
// its own goroutine; cancellation tears down the in-flight exchange through
// the operation's context and the callback still fires with a cancellation
// error.
type NetworkExecutor struct {
	client  *http.Client
	clk     clock.Clock
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewNetworkExecutor returns an executor using the configured timeouts and
// the default HTTP transport.
func NewNetworkExecutor(c Config) *NetworkExecutor {
	return &NetworkExecutor{
		client:  &http.Client{},
		clk:     clock.New(),
		logger:  zap.NewNop(),
		timeout: time.Duration(c.RequestTimeout),
	}
}

// WithLogger sets the logger on the executor.
func (e *NetworkExecutor) WithLogger(log *zap.Logger) {
	e.logger = log.With(zap.String("service", "remote-executor"))
}

// WithHTTPClient replaces the transport, e.g. for tests.
func (e *NetworkExecutor) WithHTTPClient(client *http.Client) {
	e.client = client
}

// operation is one in-flight exchange. finish runs at most once.
type operation struct {
	req    RemoteRequest
	cb     Callback
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (op *operation) finish(resp RemoteResponse, err error) {
	op.once.Do(func() {
		op.cb(resp, err)
	})
}

// Schedule hands the request to the transport. The returned handle is valid
// until the callback has run.
func (e *NetworkExecutor) Schedule(req RemoteRequest, cb Callback) (Handle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "executor is shut down",
			Op:   "executor.NetworkExecutor.Schedule",
		}
	}
	e.wg.Add(1)
	e.mu.Unlock()

	if req.Timeout <= 0 {
		req.Timeout = e.timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{req: req, cb: cb, ctx: ctx, cancel: cancel}

	go e.run(op)
	return op, nil
}

// Cancel aborts the exchange behind h. Unknown handles are ignored.
func (e *NetworkExecutor) Cancel(h Handle) {
	if op, ok := h.(*operation); ok {
		op.cancel()
	}
}

// Close stops accepting work and waits for outstanding callbacks.
func (e *NetworkExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *NetworkExecutor) run(op *operation) {
	defer e.wg.Done()
	defer op.cancel()

	start := e.clk.Now()
	body, err := e.exchange(op)
	rtt := e.clk.Now().Sub(start)

	if err != nil {
		e.logger.Debug("Remote command failed",
			zap.Stringer("request_id", op.req.ID),
			zap.String("target", op.req.Target),
			zap.Error(err))
		op.finish(RemoteResponse{From: op.req.Target, RTT: rtt}, err)
		return
	}

	op.finish(RemoteResponse{Body: body, From: op.req.Target, RTT: rtt}, nil)
}

// commandEnvelope is the wire form of a routed command.
type commandEnvelope struct {
	ID       string          `json:"id"`
	Database string          `json:"database"`
	Command  models.Document `json:"command"`
	Metadata models.Document `json:"metadata,omitempty"`
}

func (e *NetworkExecutor) exchange(op *operation) (models.Document, error) {
	payload, err := json.Marshal(commandEnvelope{
		ID:       op.req.ID.String(),
		Database: op.req.Database,
		Command:  op.req.Command,
		Metadata: op.req.Metadata,
	})
	if err != nil {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "executor.NetworkExecutor.exchange", Err: err}
	}

	ctx, cancel := context.WithTimeout(op.ctx, op.req.Timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/command", op.req.Target)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "executor.NetworkExecutor.exchange", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.Error{
			Code: errors.EHostUnreachable,
			Msg:  fmt.Sprintf("host %s answered %d", op.req.Target, resp.StatusCode),
		}
	}

	var body models.Document
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &errors.Error{
			Code: errors.EConnectionReset,
			Msg:  fmt.Sprintf("malformed reply from %s", op.req.Target),
			Err:  pkgerrors.Wrap(err, "decode reply"),
		}
	}
	return body, nil
}

// transportError classifies a failed exchange. An operation canceled through
// its handle reports ECallbackCanceled; a deadline maps to ENetworkTimeout;
// everything else is an unreachable host.
func (e *NetworkExecutor) transportError(op *operation, err error) error {
	if op.ctx.Err() == context.Canceled {
		return &errors.Error{
			Code: errors.ECallbackCanceled,
			Msg:  fmt.Sprintf("command %s to %s canceled", op.req.ID, op.req.Target),
		}
	}
	if pkgerrors.Is(err, context.DeadlineExceeded) {
		return &errors.Error{
			Code: errors.ENetworkTimeout,
			Msg:  fmt.Sprintf("command %s to %s timed out after %s", op.req.ID, op.req.Target, op.req.Timeout),
		}
	}
	return &errors.Error{
		Code: errors.EHostUnreachable,
		Msg:  fmt.Sprintf("host %s unreachable", op.req.Target),
		Err:  pkgerrors.Wrap(err, "post command"),
	}
}
