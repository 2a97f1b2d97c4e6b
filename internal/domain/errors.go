package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a command failure at the command-result boundary.
// The execution envelope uses the kind, not the error's dynamic type, to
// decide whether a failure is swallowed or re-raised.
type ErrorKind int

const (
	// KindInternal marks an unexpected failure. The envelope logs it and
	// re-raises, terminating the current session abnormally.
	KindInternal ErrorKind = iota
	// KindApplication marks an expected, recoverable domain failure. The
	// envelope logs it and swallows it; the RPC fault path has already
	// informed the remote caller.
	KindApplication
)

// CommandError tags an underlying error with an explicit kind.
type CommandError struct {
	Kind ErrorKind
	Err  error
}

// Error returns the underlying error message.
func (e *CommandError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ApplicationErr wraps err as an expected, recoverable failure.
func ApplicationErr(err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Kind: KindApplication, Err: err}
}

// IsApplicationErr reports whether err carries the application kind.
func IsApplicationErr(err error) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind == KindApplication
	}
	return false
}

// InvalidStateError reports a protocol ordering violation: a command was
// invoked while the server was outside the command's expected states.
type InvalidStateError struct {
	Command        string
	Actual         Status
	ExpectedStates []Status
}

// Error returns a message naming the command, the actual phase, and the
// allowed phases.
func (e *InvalidStateError) Error() string {
	expected := make([]string, len(e.ExpectedStates))
	for i, s := range e.ExpectedStates {
		expected[i] = s.String()
	}
	return fmt.Sprintf("command %q is not valid in state %s (expected one of: %s)",
		e.Command, e.Actual, strings.Join(expected, ", "))
}

// InvalidParamsError reports that a request's parameters could not be
// decoded into the command's parameter type. The failure is scoped to
// the request that carried the parameters; the session is unaffected.
type InvalidParamsError struct {
	Command string
	Err     error
}

// Error returns a message naming the command whose parameters failed to
// decode.
func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("decoding %s params: %v", e.Command, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *InvalidParamsError) Unwrap() error {
	return e.Err
}

// OperationCancelledError signals cooperative cancellation of a command.
// It is never logged as an error and propagates to unwind the operation
// cleanly.
type OperationCancelledError struct {
	Command string
}

// Error returns the cancellation message.
func (e *OperationCancelledError) Error() string {
	return fmt.Sprintf("command %q was cancelled", e.Command)
}

// ErrCancelled is a sentinel commands may return to signal cooperative
// cancellation without constructing an OperationCancelledError.
var ErrCancelled = errors.New("operation cancelled")

// IsCancellation reports whether err represents cooperative cancellation,
// either through the context package or an explicit cancellation error.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var cancelled *OperationCancelledError
	return errors.Is(err, ErrCancelled) ||
		errors.As(err, &cancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
