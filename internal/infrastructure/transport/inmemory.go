package transport

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	"github.com/piperpc/piperpc/internal/domain/transport"
)

// InMemoryStreamFactory produces streams connected through net.Pipe. It
// is the test double for the socket factory: the accept side blocks in
// WaitForConnection until a peer calls Dial.
type InMemoryStreamFactory struct {
	accepts chan net.Conn
	created atomic.Int32
}

// NewInMemoryStreamFactory creates an in-memory factory.
func NewInMemoryStreamFactory() *InMemoryStreamFactory {
	return &InMemoryStreamFactory{
		accepts: make(chan net.Conn),
	}
}

// CreateNew allocates a fresh single-use stream.
func (f *InMemoryStreamFactory) CreateNew() (transport.Stream, error) {
	f.created.Add(1)
	return &inMemoryStream{accepts: f.accepts}, nil
}

// CreatedStreams reports how many streams the factory has produced.
func (f *InMemoryStreamFactory) CreatedStreams() int {
	return int(f.created.Load())
}

// Dial connects the client side, unblocking a stream waiting on the
// accept side, and returns the client half of the pipe.
func (f *InMemoryStreamFactory) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	server, client := net.Pipe()
	select {
	case <-ctx.Done():
		server.Close()
		client.Close()
		return nil, ctx.Err()
	case f.accepts <- server:
		return client, nil
	}
}

type inMemoryStream struct {
	accepts  chan net.Conn
	consumed atomic.Bool
}

func (s *inMemoryStream) WaitForConnection(ctx context.Context) (io.ReadWriteCloser, error) {
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, transport.ErrStreamConsumed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case conn := <-s.accepts:
		return conn, nil
	}
}

func (s *inMemoryStream) Close() error {
	s.consumed.Store(true)
	return nil
}
