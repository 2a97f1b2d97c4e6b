package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"

	"github.com/piperpc/piperpc/internal/domain"
)

const (
	// requestCancelledErrorCode is the error code used when a request is
	// cancelled. StreamJsonRpc-family clients understand this code and
	// surface the failure as a cancellation rather than a generic fault.
	requestCancelledErrorCode jsonrpc2.Code = -32800

	// invalidStateErrorCode reports a protocol ordering violation: a
	// command arrived while the server was outside its expected states.
	invalidStateErrorCode jsonrpc2.Code = -32002
)

// dispatcher routes one session's inbound messages to its resolved
// command targets. Commands execute concurrently up to the configured
// bound, each under its own cancellation scope with a per-request
// timeout. A request timeout fails only that request; an internal
// command failure tears the session down through the fatal hook.
type dispatcher struct {
	targets      map[string]domain.Command
	cancelMethod string
	semaphore    chan struct{}
	timeout      time.Duration
	logger       domain.Logger
	fatal        func(err error)

	cancelersMu sync.Mutex
	cancelers   map[jsonrpc2.ID]context.CancelFunc
}

func newDispatcher(concurrency int, timeout time.Duration, cancelMethod string, logger domain.Logger, fatal func(error)) *dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &dispatcher{
		targets:      make(map[string]domain.Command),
		cancelMethod: cancelMethod,
		semaphore:    make(chan struct{}, concurrency),
		timeout:      timeout,
		logger:       logger,
		fatal:        fatal,
		cancelers:    make(map[jsonrpc2.ID]context.CancelFunc),
	}
}

func (d *dispatcher) register(wireName string, cmd domain.Command) {
	d.targets[wireName] = cmd
}

// handle is the jsonrpc2 handler for the session. It returns quickly,
// running the command itself on a separate goroutine so the message pump
// is never blocked by command execution.
func (d *dispatcher) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() == d.cancelMethod {
		return d.handleCancel(ctx, reply, req)
	}

	cmd, ok := d.targets[req.Method()]
	if !ok {
		return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
	}

	go d.invoke(ctx, reply, req, cmd)
	return nil
}

// handleCancel observes cancellation messages from the client. The
// protocol is a notification carrying the id of the request to cancel;
// the corresponding cancel function is tracked per inflight request.
func (d *dispatcher) handleCancel(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var cancelArgs struct {
		ID *int32 `json:"id"`
	}
	if err := json.Unmarshal(req.Params(), &cancelArgs); err != nil {
		return reply(ctx, nil, jsonrpc2.ErrInvalidParams)
	}
	if cancelArgs.ID == nil {
		return reply(ctx, nil, jsonrpc2.ErrInvalidParams)
	}

	id := jsonrpc2.NewNumberID(*cancelArgs.ID)

	d.cancelersMu.Lock()
	cancel, has := d.cancelers[id]
	d.cancelersMu.Unlock()
	if has {
		cancel()
		// The canceler is removed once the command observes cancellation
		// and invoke returns, no need to remove it eagerly here.
	}
	return reply(ctx, nil, nil)
}

func (d *dispatcher) invoke(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, cmd domain.Command) {
	select {
	case d.semaphore <- struct{}{}:
		defer func() { <-d.semaphore }()
	case <-ctx.Done():
		d.replyError(ctx, reply, req, ctx.Err())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	call, isCall := req.(*jsonrpc2.Call)
	if isCall {
		d.cancelersMu.Lock()
		d.cancelers[call.ID()] = cancel
		d.cancelersMu.Unlock()
		defer func() {
			d.cancelersMu.Lock()
			delete(d.cancelers, call.ID())
			d.cancelersMu.Unlock()
		}()
	}

	start := time.Now()
	result, err := cmd.Handle(reqCtx, req.Params())

	if err != nil {
		d.replyError(ctx, reply, req, err)

		if !domain.IsCancellation(err) && !isInvalidState(err) && !isInvalidParams(err) {
			// An unexpected failure terminates the current session but
			// never the process.
			d.fatal(err)
		}
		return
	}

	d.logger.Trace("command handled", domain.Fields{
		"method":  req.Method(),
		"elapsed": time.Since(start).String(),
	})
	if replyErr := reply(ctx, result, nil); replyErr != nil {
		d.logger.Warn("failed to reply", domain.Fields{
			"method": req.Method(),
			"error":  replyErr.Error(),
		})
	}
}

func (d *dispatcher) replyError(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, err error) {
	if replyErr := reply(ctx, nil, wireError(err)); replyErr != nil {
		d.logger.Warn("failed to reply", domain.Fields{
			"method": req.Method(),
			"error":  replyErr.Error(),
		})
	}
}

func isInvalidState(err error) bool {
	var invalid *domain.InvalidStateError
	return errors.As(err, &invalid)
}

func isInvalidParams(err error) bool {
	var invalid *domain.InvalidParamsError
	return errors.As(err, &invalid)
}

// wireError maps a command failure to the JSON-RPC error reported to the
// remote caller.
func wireError(err error) error {
	var invalid *domain.InvalidStateError
	if errors.As(err, &invalid) {
		expected := make([]string, len(invalid.ExpectedStates))
		for i, s := range invalid.ExpectedStates {
			expected[i] = s.String()
		}
		data, marshalErr := json.Marshal(struct {
			Command        string   `json:"command"`
			ActualState    string   `json:"actualState"`
			ExpectedStates []string `json:"expectedStates"`
		}{
			Command:        invalid.Command,
			ActualState:    invalid.Actual.String(),
			ExpectedStates: expected,
		})
		if marshalErr != nil {
			return jsonrpc2.NewError(invalidStateErrorCode, invalid.Error())
		}
		raw := json.RawMessage(data)
		return &jsonrpc2.Error{
			Code:    invalidStateErrorCode,
			Message: invalid.Error(),
			Data:    &raw,
		}
	}

	if isInvalidParams(err) {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
	}

	if domain.IsCancellation(err) {
		return jsonrpc2.NewError(requestCancelledErrorCode, err.Error())
	}

	return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
}
