package transport

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/piperpc/piperpc/internal/domain/transport"
)

// StdioStreamFactory serves the process's standard input/output as a
// duplex stream. Stdio carries exactly one connection for the process
// lifetime: the first stream connects immediately, every later wait
// blocks until cancelled.
type StdioStreamFactory struct {
	in   io.ReadCloser
	out  io.WriteCloser
	used atomic.Bool
}

// NewStdioStreamFactory creates a factory over os.Stdin and os.Stdout.
func NewStdioStreamFactory() *StdioStreamFactory {
	return &StdioStreamFactory{in: os.Stdin, out: os.Stdout}
}

// NewPipeStreamFactory creates a stdio-shaped factory over arbitrary
// read and write ends.
func NewPipeStreamFactory(in io.ReadCloser, out io.WriteCloser) *StdioStreamFactory {
	return &StdioStreamFactory{in: in, out: out}
}

// CreateNew allocates a fresh single-use stream.
func (f *StdioStreamFactory) CreateNew() (transport.Stream, error) {
	return &stdioStream{factory: f}, nil
}

type stdioStream struct {
	factory  *StdioStreamFactory
	consumed atomic.Bool
}

func (s *stdioStream) WaitForConnection(ctx context.Context) (io.ReadWriteCloser, error) {
	if !s.consumed.CompareAndSwap(false, true) {
		return nil, transport.ErrStreamConsumed
	}
	if !s.factory.used.CompareAndSwap(false, true) {
		// The one stdio connection was already served.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &stdioConn{in: s.factory.in, out: s.factory.out}, nil
}

func (s *stdioStream) Close() error {
	s.consumed.Store(true)
	return nil
}

// stdioConn joins the read and write ends into one duplex connection.
type stdioConn struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (c *stdioConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *stdioConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *stdioConn) Close() error {
	readErr := c.in.Close()
	writeErr := c.out.Close()
	if readErr != nil {
		return readErr
	}
	return writeErr
}
