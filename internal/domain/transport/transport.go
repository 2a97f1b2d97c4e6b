// Package transport defines the duplex-stream contracts the session host
// consumes. Implementations live under internal/infrastructure/transport.
package transport

import (
	"context"
	"errors"
	"io"
)

// ErrStreamConsumed is returned when WaitForConnection is called on a
// stream that has already produced a connection. Streams are single-use:
// the underlying endpoints buffer only a single message in flight, so a
// fresh stream instance is mandatory for every connection attempt.
var ErrStreamConsumed = errors.New("transport: stream already consumed")

// Stream is a server-side duplex stream endpoint, not yet bound to a
// peer.
type Stream interface {
	// WaitForConnection blocks until a peer connects and returns the
	// connected byte stream. A second call returns ErrStreamConsumed.
	WaitForConnection(ctx context.Context) (io.ReadWriteCloser, error)

	// Close releases the endpoint without connecting. Closing an already
	// consumed stream is a no-op.
	Close() error
}

// StreamFactory produces a fresh stream endpoint per connection attempt.
type StreamFactory interface {
	// CreateNew allocates an unbound, single-use stream. It has no side
	// effects beyond allocation.
	CreateNew() (Stream, error)
}
