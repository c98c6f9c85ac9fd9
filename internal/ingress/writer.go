package ingress

import (
	"context"
	"net"
	"sync"

	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/logs"
	runtimeutil "github.com/bermi/rheia/internal/runtime"
)

// writerQueueDepth bounds how many distinct frames may sit in a
// connWriter's channel ahead of the byte-capacity parker; it only
// guards against an unbounded number of zero-length frames, since the
// parker is what enforces the byte budget.
const writerQueueDepth = 256

// connWriter serializes writes to one connection behind a bounded,
// byte-capacity queue: Enqueue suspends the caller on a parker once
// queueSize bytes are already buffered, and is released as the
// background writer goroutine drains frames onto the wire, per
// spec.md §5 ("Connection writer queue is bounded ...; readers suspend
// on a queuer parker when full and are released by the writer after
// drain").
type connWriter struct {
	conn  net.Conn
	cap   *runtimeutil.Parker
	queue chan []byte
	wg    sync.WaitGroup
}

func newConnWriter(conn net.Conn, queueSize int) *connWriter {
	w := &connWriter{
		conn:  conn,
		cap:   runtimeutil.NewParker(int64(queueSize)),
		queue: make(chan []byte, writerQueueDepth),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// run drains queued frames onto the wire. A write failure closes the
// connection so Serve's blocked read unblocks with an error and the
// connection tears down promptly, instead of leaving a reader and
// writer goroutine alive against a dead socket.
func (w *connWriter) run() {
	defer w.wg.Done()
	for buf := range w.queue {
		if _, err := w.conn.Write(buf); err != nil {
			logs.Debug("ingress: connection write failed, closing: %v", err)
			w.conn.Close()
		}
		w.cap.ReleaseN(int64(len(buf)))
	}
}

// Enqueue suspends the caller until len(buf) bytes of queue capacity
// are free, or ctx is cancelled, then hands buf to the background
// writer goroutine.
func (w *connWriter) Enqueue(ctx context.Context, buf []byte) error {
	if err := w.cap.AcquireN(ctx, int64(len(buf))); err != nil {
		return err
	}
	select {
	case w.queue <- buf:
		return nil
	case <-ctx.Done():
		w.cap.ReleaseN(int64(len(buf)))
		return chainerr.ErrCancelled
	}
}

// Close drains and stops the writer goroutine. Callers must not Enqueue
// after calling Close.
func (w *connWriter) Close() {
	close(w.queue)
	w.wg.Wait()
}
