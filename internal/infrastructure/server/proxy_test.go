package server

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"

	"github.com/piperpc/piperpc/internal/domain/shared"
)

// peerRecorder plays the remote side of the channel, answering initialize
// and shutdown and recording every method it saw.
type peerRecorder struct {
	mu      sync.Mutex
	methods []string
}

func (p *peerRecorder) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	p.mu.Lock()
	p.methods = append(p.methods, req.Method())
	p.mu.Unlock()

	switch req.Method() {
	case shared.MethodInitialize:
		return reply(ctx, shared.InitializeResult{
			ServerInfo: shared.ServerInfo{Name: "peer", Version: "0.0.1"},
		}, nil)
	case shared.MethodShutdown:
		return reply(ctx, json.RawMessage("null"), nil)
	default:
		return reply(ctx, nil, nil)
	}
}

func (p *peerRecorder) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	methods := make([]string, len(p.methods))
	copy(methods, p.methods)
	return methods
}

func TestClientProxyResolvesWireNames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	local, remote := net.Pipe()
	localConn := jsonrpc2.NewConn(jsonrpc2.NewStream(local))
	localConn.Go(ctx, jsonrpc2.MethodNotFoundHandler)
	defer localConn.Close()

	peer := &peerRecorder{}
	remoteConn := jsonrpc2.NewConn(jsonrpc2.NewStream(remote))
	remoteConn.Go(ctx, peer.handle)
	defer remoteConn.Close()

	resolver := shared.NewNameResolver(shared.ComplianceTable(), nil)
	proxy := newClientProxy(localConn, resolver)

	result, err := proxy.Initialize(ctx, shared.InitializeParams{ClientName: "host"})
	require.NoError(t, err)
	assert.Equal(t, "peer", result.ServerInfo.Name)

	require.NoError(t, proxy.Initialized(ctx))
	require.NoError(t, proxy.Shutdown(ctx))
	require.NoError(t, proxy.Exit(ctx))

	// Calls are acknowledged synchronously; notifications may still be in
	// flight, so poll for the full sequence.
	require.Eventually(t, func() bool {
		return len(peer.seen()) == 4
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		shared.MethodInitialize,
		shared.MethodInitialized,
		shared.MethodShutdown,
		shared.MethodExit,
	}, peer.seen())
}
