package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/infrastructure/logging"
	"github.com/piperpc/piperpc/internal/infrastructure/transport"
)

type serverFixture struct {
	server  *Server
	factory *transport.InMemoryStreamFactory

	done     chan struct{}
	serveErr error
}

func newServerFixture(t *testing.T, opts ...Option) *serverFixture {
	t.Helper()

	factory := transport.NewInMemoryStreamFactory()
	opts = append([]Option{
		WithStreamFactory(factory),
		WithLogger(logging.NewNop()),
	}, opts...)

	srv, err := NewServer("piperpc-test", "0.0.1", opts...)
	require.NoError(t, err)

	f := &serverFixture{server: srv, factory: factory, done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		f.serveErr = srv.Serve(ctx)
		close(f.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return f
}

func (f *serverFixture) connect(ctx context.Context, t *testing.T) jsonrpc2.Conn {
	t.Helper()
	rwc, err := f.factory.Dial(ctx)
	require.NoError(t, err)
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(ctx, jsonrpc2.MethodNotFoundHandler)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acknowledged := make(chan struct{})
	f := newServerFixture(t,
		WithServerOptions(func(context.Context) (Options, error) {
			return Options{"supportsProgress": true}, nil
		}),
		WithInitializedHook(func(context.Context) { close(acknowledged) }),
	)
	require.Equal(t, StateStarted, f.server.State())

	conn := f.connect(ctx, t)

	var result struct {
		ServerInfo struct {
			Name      string `json:"name"`
			ProcessID int    `json:"processId"`
			Version   string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	_, err := conn.Call(ctx, "initialize", InitializeParams{ClientName: "test-client"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "piperpc-test", result.ServerInfo.Name)
	assert.Equal(t, "0.0.1", result.ServerInfo.Version)
	assert.Greater(t, result.ServerInfo.ProcessID, 0)
	assert.Equal(t, true, result.Capabilities["supportsProgress"])
	assert.Equal(t, StateInitialized, f.server.State())

	require.NoError(t, conn.Notify(ctx, "initialized", nil))
	select {
	case <-acknowledged:
	case <-time.After(5 * time.Second):
		t.Fatal("initialized hook never ran")
	}

	var shutdownResult interface{}
	_, err = conn.Call(ctx, "shutdown", nil, &shutdownResult)
	require.NoError(t, err)
	assert.Equal(t, StateShuttingDown, f.server.State())

	require.NoError(t, conn.Notify(ctx, "exit", nil))
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after exit")
	}
	require.NoError(t, f.serveErr)
	assert.Equal(t, 0, f.server.ExitCode())
	assert.Equal(t, StateStopped, f.server.State())
}

func TestServerExitWithoutShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f := newServerFixture(t)
	conn := f.connect(ctx, t)

	var result interface{}
	_, err := conn.Call(ctx, "initialize", InitializeParams{ClientName: "test-client"}, &result)
	require.NoError(t, err)

	require.NoError(t, conn.Notify(ctx, "exit", nil))
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after exit")
	}
	assert.Equal(t, 1, f.server.ExitCode())
}

func TestServerCustomCommands(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notified := make(chan string, 1)
	f := newServerFixture(t)
	require.NoError(t, f.server.AddRequestCommand(
		"Reverse", "reverses a string", []State{StateInitialized},
		func(_ context.Context, params json.RawMessage) (interface{}, error) {
			var args struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, err
			}
			runes := []rune(args.Value)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return map[string]string{"value": string(runes)}, nil
		}))
	require.NoError(t, f.server.AddNotificationCommand(
		"Report", "records a progress report", []State{StateInitialized},
		func(_ context.Context, params json.RawMessage) error {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return err
			}
			notified <- args.Message
			return nil
		}))

	conn := f.connect(ctx, t)

	// Commands are gated until the handshake completes; the wire name is
	// derived by convention since neither command is in the table.
	var reversed map[string]string
	_, err := conn.Call(ctx, "reverse", map[string]string{"value": "abc"}, &reversed)
	require.Error(t, err)
	require.IsType(t, (*jsonrpc2.Error)(nil), err)

	var initResult interface{}
	_, err = conn.Call(ctx, "initialize", InitializeParams{ClientName: "test-client"}, &initResult)
	require.NoError(t, err)

	_, err = conn.Call(ctx, "reverse", map[string]string{"value": "abc"}, &reversed)
	require.NoError(t, err)
	assert.Equal(t, "cba", reversed["value"])

	require.NoError(t, conn.Notify(ctx, "report", map[string]string{"message": "halfway"}))
	select {
	case msg := <-notified:
		assert.Equal(t, "halfway", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestServerWireNameOverride(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f := newServerFixture(t, WithWireName("Reverse", "text/reverse"))
	require.NoError(t, f.server.AddRequestCommand(
		"Reverse", "reverses a string", nil,
		func(_ context.Context, params json.RawMessage) (interface{}, error) {
			return "ok", nil
		}))

	conn := f.connect(ctx, t)

	var result string
	_, err := conn.Call(ctx, "text/reverse", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	// The convention-derived name is not served.
	_, err = conn.Call(ctx, "reverse", nil, &result)
	require.Error(t, err)
	require.IsType(t, (*jsonrpc2.Error)(nil), err)
	assert.Equal(t, jsonrpc2.MethodNotFound, err.(*jsonrpc2.Error).Code)
}

func TestServerStop(t *testing.T) {
	f := newServerFixture(t)
	f.server.Stop()

	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, f.serveErr)
	assert.Equal(t, 1, f.server.ExitCode())
	assert.Equal(t, StateStarted, f.server.State())
}

func TestServerApplicationErrorKeepsSessionAlive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f := newServerFixture(t)
	require.NoError(t, f.server.AddRequestCommand(
		"Lookup", "looks a record up", []State{StateInitialized},
		func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, domain.ApplicationErr(assert.AnError)
		}))

	conn := f.connect(ctx, t)
	var initResult interface{}
	_, err := conn.Call(ctx, "initialize", InitializeParams{ClientName: "test-client"}, &initResult)
	require.NoError(t, err)

	// The failure is logged and swallowed: the caller sees an empty
	// result and the session survives.
	var result interface{}
	_, err = conn.Call(ctx, "lookup", nil, &result)
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = conn.Call(ctx, "lookup", nil, &result)
	require.NoError(t, err)
}
