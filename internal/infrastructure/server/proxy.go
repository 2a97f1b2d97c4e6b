package server

import (
	"context"

	"go.lsp.dev/jsonrpc2"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/shared"
)

// clientProxy is the typed remote-invocation handle a session constructs
// for its peer. It is the only channel through which server-originated
// calls reach the client; the host hands it to every client-aware target
// before the message pump starts.
type clientProxy struct {
	conn     jsonrpc2.Conn
	resolver *shared.NameResolver
}

func newClientProxy(conn jsonrpc2.Conn, resolver *shared.NameResolver) domain.Client {
	return &clientProxy{conn: conn, resolver: resolver}
}

func (p *clientProxy) Initialize(ctx context.Context, params shared.InitializeParams) (shared.InitializeResult, error) {
	var result shared.InitializeResult
	_, err := p.conn.Call(ctx, p.resolver.Resolve(shared.OpInitialize), params, &result)
	return result, err
}

func (p *clientProxy) Initialized(ctx context.Context) error {
	return p.conn.Notify(ctx, p.resolver.Resolve(shared.OpInitialized), nil)
}

func (p *clientProxy) Shutdown(ctx context.Context) error {
	var result interface{}
	_, err := p.conn.Call(ctx, p.resolver.Resolve(shared.OpShutdown), nil, &result)
	return err
}

func (p *clientProxy) Exit(ctx context.Context) error {
	return p.conn.Notify(ctx, p.resolver.Resolve(shared.OpExit), nil)
}
