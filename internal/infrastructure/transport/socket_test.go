package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/transport"
)

func testEndpointName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("piperpc-test-%s", uuid.NewString())
	t.Cleanup(func() { _ = os.Remove(EndpointPath(name)) })
	return name
}

func TestSocketStreamRoundTrip(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	factory := NewSocketStreamFactory(name, domain.NopLogger{})
	defer factory.Close()

	stream, err := factory.CreateNew()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type accepted struct {
		rwc io.ReadWriteCloser
		err error
	}
	acceptedCh := make(chan accepted, 1)
	go func() {
		rwc, err := stream.WaitForConnection(ctx)
		acceptedCh <- accepted{rwc, err}
	}()

	client, err := Dial(ctx, name)
	require.NoError(t, err)
	defer client.Close()

	server := <-acceptedCh
	require.NoError(t, server.err)
	defer server.rwc.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server.rwc, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestSocketStreamSingleUse(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	factory := NewSocketStreamFactory(name, domain.NopLogger{})
	defer factory.Close()

	stream, err := factory.CreateNew()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rwc, err := stream.WaitForConnection(ctx)
		assert.NoError(t, err)
		if rwc != nil {
			rwc.Close()
		}
	}()

	client, err := Dial(ctx, name)
	require.NoError(t, err)
	client.Close()
	<-done

	_, err = stream.WaitForConnection(ctx)
	assert.ErrorIs(t, err, transport.ErrStreamConsumed)
}

func TestSocketSequentialConnections(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	factory := NewSocketStreamFactory(name, domain.NopLogger{})
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Each connection rides a brand-new stream off the shared listener.
	for i := 0; i < 3; i++ {
		stream, err := factory.CreateNew()
		require.NoError(t, err)

		acceptedCh := make(chan io.ReadWriteCloser, 1)
		go func() {
			rwc, err := stream.WaitForConnection(ctx)
			assert.NoError(t, err)
			acceptedCh <- rwc
		}()

		client, err := Dial(ctx, name)
		require.NoError(t, err)

		rwc := <-acceptedCh
		require.NotNil(t, rwc)
		require.NoError(t, rwc.Close())
		require.NoError(t, client.Close())
		require.NoError(t, stream.Close())
	}
}

func TestSocketWaitForConnectionHonorsContext(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	factory := NewSocketStreamFactory(name, domain.NopLogger{})
	defer factory.Close()

	stream, err := factory.CreateNew()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = stream.WaitForConnection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSocketFactoryCloseUnbindsEndpoint(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	factory := NewSocketStreamFactory(name, domain.NopLogger{})

	_, err := factory.CreateNew()
	require.NoError(t, err)
	require.NoError(t, factory.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = Dial(ctx, name)
	assert.Error(t, err)
}

func TestSocketStaleEndpointRemoved(t *testing.T) {
	t.Parallel()

	name := testEndpointName(t)
	path := EndpointPath(name)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	factory := NewSocketStreamFactory(name, domain.NopLogger{})
	defer factory.Close()

	_, err := factory.CreateNew()
	require.NoError(t, err)
}
