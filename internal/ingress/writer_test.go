package ingress

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnWriterEnqueueDeliversBytes(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	w := newConnWriter(server, 1<<20)
	defer w.Close()

	require.NoError(t, client.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, w.Enqueue(context.Background(), []byte("hello world")))

	buf := make([]byte, len("hello world"))
	_, err := readFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf))
}

func TestConnWriterEnqueueSuspendsWhenQueueFull(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	w := newConnWriter(server, 4) // capacity smaller than one frame
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Enqueue(ctx, []byte("way too big for the queue"))
	require.Error(t, err, "Enqueue should block on the undrained parker until ctx expires")
}
