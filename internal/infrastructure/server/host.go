// Package server implements the session host: the background accept loop
// that serves one handshake-gated RPC session at a time over a duplex
// stream, dispatching commands to per-session target instances.
package server

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/shared"
	"github.com/piperpc/piperpc/internal/domain/transport"
	"github.com/piperpc/piperpc/internal/infrastructure/logging"
)

// DefaultRequestTimeout bounds a single command execution unless
// configured otherwise.
const DefaultRequestTimeout = 10 * time.Second

// DefaultConcurrency bounds the number of simultaneously executing
// commands within a session unless configured otherwise.
const DefaultConcurrency = 4

// HostConfig carries the immutable configuration of a session host.
type HostConfig struct {
	// Concurrency is the maximum number of simultaneously executing
	// requests within a session. Zero means DefaultConcurrency.
	Concurrency int
	// RequestTimeout bounds a single command execution. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Host is the connection loop: it repeatedly allocates a fresh stream,
// waits for a peer, serves the session's message pump to completion, and
// re-enters the loop. Sessions are serialized; only one is live at a
// time.
type Host struct {
	factory  transport.StreamFactory
	registry *Registry
	resolver *shared.NameResolver
	logger   *logging.Logger
	config   HostConfig

	stop     chan struct{}
	stopOnce sync.Once
	clean    atomic.Bool
}

// NewHost creates a session host over the given stream factory, command
// registry, and naming layer.
func NewHost(
	factory transport.StreamFactory,
	registry *Registry,
	resolver *shared.NameResolver,
	logger *logging.Logger,
	config HostConfig,
) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	return &Host{
		factory:  factory,
		registry: registry,
		resolver: resolver,
		logger:   logger,
		config:   config,
		stop:     make(chan struct{}),
	}
}

// RequestStop stops the host deliberately. The clean flag records
// whether a shutdown request preceded the stop; it decides the process
// exit code.
func (h *Host) RequestStop(clean bool) {
	h.stopOnce.Do(func() {
		h.clean.Store(clean)
		close(h.stop)
	})
}

// CleanStop reports whether the host was stopped after an orderly
// shutdown sequence.
func (h *Host) CleanStop() bool {
	return h.clean.Load()
}

// Run executes the accept loop until the context is cancelled or
// RequestStop is called. A deliberate stop returns nil; outer
// cancellation is surfaced to the caller.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Every exit path releases the factory's resources (a bound socket
	// factory keeps its accept loop alive otherwise) and emits the
	// terminal diagnostic.
	defer func() {
		if closer, ok := h.factory.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				h.logger.Warn("failed to close stream factory", logging.Fields{"error": err.Error()})
			}
		}
		h.logger.Info("server stopped", logging.Fields{"clean": h.clean.Load()})
	}()

	h.logger.Info("server starting", logging.Fields{
		"commands": h.registry.Names(),
	})

	for ctx.Err() == nil {
		stream, err := h.factory.CreateNew()
		if err != nil {
			h.logger.Error("failed to allocate stream", logging.Fields{"error": err.Error()})
			return err
		}

		waitCtx, waitCancel := context.WithCancel(ctx)
		rwc, err := stream.WaitForConnection(waitCtx)
		waitCancel()
		if err != nil {
			closeErr := stream.Close()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					break
				}
				// A cancellation raised purely by the waiting primitive is
				// a cue to re-check the outer signal, not a stop condition.
				runtime.Gosched()
				continue
			}
			return multierr.Append(err, closeErr)
		}

		if err := h.serveSession(ctx, rwc); err != nil {
			h.logger.Warn("session ended abnormally", logging.Fields{"error": err.Error()})
		}
	}

	select {
	case <-h.stop:
		return nil
	default:
		return ctx.Err()
	}
}

// serveSession establishes the RPC channel on a connected stream,
// registers fresh command targets, attaches the client proxy, and blocks
// until the message pump completes or the host is stopped.
func (h *Host) serveSession(ctx context.Context, rwc io.ReadWriteCloser) error {
	sessionID := uuid.NewString()
	logger := h.logger.With(logging.Fields{"session": sessionID})
	logger.Info("session started", nil)

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))

	targets, err := h.registry.ResolveAll()
	if err != nil {
		return multierr.Append(err, conn.Close())
	}

	proxy := newClientProxy(conn, h.resolver)
	fatal := func(cause error) {
		logger.Error("command failure terminates session", logging.Fields{"error": cause.Error()})
		_ = conn.Close()
	}

	d := newDispatcher(
		h.config.Concurrency,
		h.config.RequestTimeout,
		h.resolver.Resolve(shared.OpCancelRequest),
		logger,
		fatal,
	)
	for _, target := range targets {
		if aware, ok := target.(domain.ClientAware); ok {
			aware.AttachClient(proxy)
		}
		d.register(h.resolver.Resolve(target.Descriptor().Name), target)
	}

	conn.Go(ctx, d.handle)

	select {
	case <-conn.Done():
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
	}

	err = conn.Err()
	if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)) {
		err = nil
	}
	logger.Info("session ended", nil)
	return err
}
