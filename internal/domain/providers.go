package domain

import (
	"context"

	"github.com/piperpc/piperpc/internal/domain/shared"
)

// OptionsProvider supplies the starting server configuration consumed by
// the initialize handshake.
type OptionsProvider interface {
	GetServerOptions(ctx context.Context) (shared.Options, error)
}

// Negotiator is the protocol-specific step of the handshake. It receives
// the client's initialization parameters together with the starting
// server configuration and produces the negotiated configuration
// returned to the client as capabilities.
type Negotiator interface {
	Negotiate(ctx context.Context, params shared.InitializeParams, opts shared.Options) (shared.Options, error)
}

// NegotiatorFunc adapts a plain function to the Negotiator interface.
type NegotiatorFunc func(ctx context.Context, params shared.InitializeParams, opts shared.Options) (shared.Options, error)

// Negotiate calls the wrapped function.
func (f NegotiatorFunc) Negotiate(
	ctx context.Context, params shared.InitializeParams, opts shared.Options,
) (shared.Options, error) {
	return f(ctx, params, opts)
}

// HostControl lets lifecycle commands stop the session host. The clean
// flag records whether a shutdown request preceded the stop, which
// decides the process exit code.
type HostControl interface {
	RequestStop(clean bool)
}
