// Package transport implements the duplex-stream factories consumed by
// the session host: a named socket endpoint for production use and an
// in-memory pair for tests.
package transport

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/transport"
)

// EndpointPath returns the filesystem path of the named duplex endpoint.
// The accept side and the connect side derive the same path from the
// same transport name.
func EndpointPath(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}

// SocketStreamFactory produces server-side streams bound to a named Unix
// domain socket. The listener is shared across streams; each stream is a
// single-use accept slot, so every accepted connection rides a brand-new
// stream instance.
type SocketStreamFactory struct {
	name   string
	logger domain.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    chan net.Conn
	pumpErr  atomic.Value
}

// NewSocketStreamFactory creates a factory for the given transport name.
func NewSocketStreamFactory(name string, logger domain.Logger) *SocketStreamFactory {
	if logger == nil {
		logger = domain.NopLogger{}
	}
	return &SocketStreamFactory{
		name:   name,
		logger: logger,
		conns:  make(chan net.Conn),
	}
}

// CreateNew allocates a fresh single-use stream. The underlying listener
// is created lazily on the first call; a stale socket file from a prior
// run is removed before binding.
func (f *SocketStreamFactory) CreateNew() (transport.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listener == nil {
		path := EndpointPath(f.name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "removing stale endpoint %s", path)
		}
		listener, err := net.Listen("unix", path)
		if err != nil {
			return nil, errors.Wrapf(err, "binding endpoint %s", path)
		}
		f.listener = listener
		go f.acceptPump(listener)
		f.logger.Info("endpoint bound", domain.Fields{"path": path})
	}

	return &socketStream{conns: f.conns, pumpErr: &f.pumpErr}, nil
}

// Close shuts the listener down and removes the endpoint.
func (f *SocketStreamFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	err := f.listener.Close()
	f.listener = nil
	return err
}

func (f *SocketStreamFactory) acceptPump(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			f.pumpErr.Store(err)
			close(f.conns)
			return
		}
		f.conns <- conn
	}
}

type socketStream struct {
	conns    chan net.Conn
	pumpErr  *atomic.Value
	consumed atomic.Bool
}

func (s *socketStream) WaitForConnection(ctx context.Context) (io.ReadWriteCloser, error) {
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, transport.ErrStreamConsumed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn, ok := <-s.conns:
		if !ok {
			if err, _ := s.pumpErr.Load().(error); err != nil {
				return nil, errors.Wrap(err, "endpoint closed")
			}
			return nil, errors.New("endpoint closed")
		}
		return conn, nil
	}
}

func (s *socketStream) Close() error {
	s.consumed.Store(true)
	return nil
}

// Dial connects to the named endpoint from the client side.
func Dial(ctx context.Context, name string) (io.ReadWriteCloser, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", EndpointPath(name))
	if err != nil {
		return nil, errors.Wrapf(err, "dialing endpoint %s", name)
	}
	return conn, nil
}
