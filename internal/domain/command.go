package domain

import (
	"context"
	"encoding/json"

	"github.com/piperpc/piperpc/internal/domain/shared"
)

// CommandDescriptor names a command and declares the server states in
// which it may execute. Descriptors are immutable once constructed.
type CommandDescriptor struct {
	// Name is the internal operation identifier, resolved to a wire name
	// by the naming layer.
	Name string
	// Description is a human-readable summary used in diagnostics.
	Description string
	// ExpectedStates lists the phases in which the command is admissible.
	// An empty set means the command carries no state precondition.
	ExpectedStates []Status
}

// HasPrecondition reports whether the descriptor restricts execution to a
// subset of server states.
func (d CommandDescriptor) HasPrecondition() bool {
	return len(d.ExpectedStates) > 0
}

// Admits reports whether the descriptor allows execution in the given
// status.
func (d CommandDescriptor) Admits(status Status) bool {
	if !d.HasPrecondition() {
		return true
	}
	for _, s := range d.ExpectedStates {
		if s == status {
			return true
		}
	}
	return false
}

// Command is a server-side invocation target registered on a session's
// RPC channel. The session dispatcher feeds it raw parameters; typed
// command shapes decode them before running the execution envelope.
type Command interface {
	// Descriptor returns the command's immutable descriptor.
	Descriptor() CommandDescriptor

	// Handle decodes params, runs the execution envelope, and returns the
	// command result (nil for notification-shaped commands).
	Handle(ctx context.Context, params json.RawMessage) (interface{}, error)
}

// ClientAware is implemented by commands that call back into the remote
// peer. The session host attaches the session's client proxy to every
// such command before registering it on the channel.
type ClientAware interface {
	AttachClient(client Client)
}

// Client is the contract a session exposes to its remote peer: the only
// channel through which server-originated calls reach the client.
type Client interface {
	// Initialize forwards an initialize request to the peer.
	Initialize(ctx context.Context, params shared.InitializeParams) (shared.InitializeResult, error)

	// Initialized signals the peer that initialization completed.
	Initialized(ctx context.Context) error

	// Shutdown requests that the peer shut down.
	Shutdown(ctx context.Context) error

	// Exit requests that the peer exit.
	Exit(ctx context.Context) error
}
