// Package usecases implements the command layer of the RPC server
// framework: the generic request/response and notification command
// shapes and the built-in lifecycle commands constructed from them.
package usecases

import (
	"context"
	"encoding/json"

	"github.com/piperpc/piperpc/internal/domain"
)

// RequestHandler is the domain-specific logic of a request/response
// command.
type RequestHandler[P any, R any] func(ctx context.Context, params P) (R, error)

// NotificationHandler is the domain-specific logic of a fire-and-forget
// notification command.
type NotificationHandler[P any] func(ctx context.Context, params P) error

// RequestCommand is the request/response command shape: a generic
// executor wrapping a domain-specific handler under the shared
// precondition/execution/classification envelope.
type RequestCommand[P any, R any] struct {
	desc   domain.CommandDescriptor
	state  domain.StateProvider
	logger domain.Logger
	client domain.Client
	run    RequestHandler[P, R]
}

// NewRequestCommand builds a request/response command from a descriptor
// and a handler.
func NewRequestCommand[P any, R any](
	desc domain.CommandDescriptor,
	state domain.StateProvider,
	logger domain.Logger,
	run RequestHandler[P, R],
) *RequestCommand[P, R] {
	return &RequestCommand[P, R]{desc: desc, state: state, logger: logger, run: run}
}

// NewPeerRequestCommand builds a request/response command whose handler
// calls back into the remote peer through the session's client proxy.
func NewPeerRequestCommand[P any, R any](
	desc domain.CommandDescriptor,
	state domain.StateProvider,
	logger domain.Logger,
	run func(ctx context.Context, client domain.Client, params P) (R, error),
) *RequestCommand[P, R] {
	c := &RequestCommand[P, R]{desc: desc, state: state, logger: logger}
	c.run = func(ctx context.Context, params P) (R, error) {
		return run(ctx, c.client, params)
	}
	return c
}

// Descriptor returns the command's immutable descriptor.
func (c *RequestCommand[P, R]) Descriptor() domain.CommandDescriptor {
	return c.desc
}

// AttachClient hands the command the session's client proxy. The session
// host calls this once per session, before the message pump starts.
func (c *RequestCommand[P, R]) AttachClient(client domain.Client) {
	c.client = client
}

// CanExecute reports whether the command could run right now. It checks
// only the state precondition and has no side effects.
func (c *RequestCommand[P, R]) CanExecute(params P) bool {
	return c.desc.Admits(c.state.Current().Status)
}

// Execute runs the command under the shared envelope and returns the
// computed result.
func (c *RequestCommand[P, R]) Execute(ctx context.Context, params P) (R, error) {
	var zero R
	if err := enterCommand(c.logger, c.state, c.desc); err != nil {
		return zero, err
	}

	result, err := c.run(ctx, params)
	if err != nil {
		return zero, classify(c.logger, c.desc, err)
	}
	return result, nil
}

// Handle decodes raw parameters and executes the command.
func (c *RequestCommand[P, R]) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	decoded, err := decodeParams[P](c.desc, params)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, decoded)
}

// NotificationCommand is the fire-and-forget command shape. It shares the
// request/response envelope but produces no result.
type NotificationCommand[P any] struct {
	desc   domain.CommandDescriptor
	state  domain.StateProvider
	logger domain.Logger
	client domain.Client
	run    NotificationHandler[P]
}

// NewNotificationCommand builds a notification command from a descriptor
// and a handler.
func NewNotificationCommand[P any](
	desc domain.CommandDescriptor,
	state domain.StateProvider,
	logger domain.Logger,
	run NotificationHandler[P],
) *NotificationCommand[P] {
	return &NotificationCommand[P]{desc: desc, state: state, logger: logger, run: run}
}

// Descriptor returns the command's immutable descriptor.
func (c *NotificationCommand[P]) Descriptor() domain.CommandDescriptor {
	return c.desc
}

// AttachClient hands the command the session's client proxy.
func (c *NotificationCommand[P]) AttachClient(client domain.Client) {
	c.client = client
}

// CanExecute reports whether the command could run right now, checking
// only the state precondition.
func (c *NotificationCommand[P]) CanExecute(params P) bool {
	return c.desc.Admits(c.state.Current().Status)
}

// Execute runs the command under the shared envelope. Cancellation is
// cooperative: the handler is expected to observe ctx and fail with a
// cancellation error when it fires.
func (c *NotificationCommand[P]) Execute(ctx context.Context, params P) error {
	if err := enterCommand(c.logger, c.state, c.desc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &domain.OperationCancelledError{Command: c.desc.Name}
	}

	if err := c.run(ctx, params); err != nil {
		return classify(c.logger, c.desc, err)
	}
	return nil
}

// Handle decodes raw parameters and executes the command. The result is
// always nil for notification-shaped commands.
func (c *NotificationCommand[P]) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	decoded, err := decodeParams[P](c.desc, params)
	if err != nil {
		return nil, err
	}
	return nil, c.Execute(ctx, decoded)
}

// enterCommand emits the trace diagnostic and evaluates the state
// precondition shared by both command shapes.
func enterCommand(logger domain.Logger, state domain.StateProvider, desc domain.CommandDescriptor) error {
	logger.Trace("executing command", domain.Fields{
		"command":     desc.Name,
		"description": desc.Description,
	})

	current := state.Current()
	if !desc.Admits(current.Status) {
		err := &domain.InvalidStateError{
			Command:        desc.Name,
			Actual:         current.Status,
			ExpectedStates: desc.ExpectedStates,
		}
		logger.Warn("command rejected by state precondition", domain.Fields{
			"command": desc.Name,
			"state":   current.Status.String(),
		})
		return err
	}
	return nil
}

// classify applies the failure taxonomy to an error raised by command
// logic. Cancellation propagates silently; application-level failures are
// logged and swallowed, so the command completes without re-raising;
// everything else is logged and re-raised, which is fatal to the current
// session.
func classify(logger domain.Logger, desc domain.CommandDescriptor, err error) error {
	switch {
	case domain.IsCancellation(err):
		return err
	case domain.IsApplicationErr(err):
		logger.Error("command failed", domain.Fields{
			"command": desc.Name,
			"error":   err.Error(),
		})
		return nil
	default:
		logger.Error("command failed unexpectedly", domain.Fields{
			"command": desc.Name,
			"error":   err.Error(),
		})
		return err
	}
}

// decodeParams unmarshals raw wire parameters into the command's
// parameter type. Absent parameters decode to the zero value; a decode
// failure fails only the request that carried the parameters.
func decodeParams[P any](desc domain.CommandDescriptor, params json.RawMessage) (P, error) {
	var decoded P
	if len(params) == 0 {
		return decoded, nil
	}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return decoded, &domain.InvalidParamsError{Command: desc.Name, Err: err}
	}
	return decoded, nil
}
