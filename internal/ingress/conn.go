// Package ingress adapts raw TCP connections into the node's framed
// protocol: decoding push_transaction commands into the Verifier and
// answering ping requests.
package ingress

import (
	"bufio"
	"context"
	"io"
	"net"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/logs"
	"github.com/bermi/rheia/internal/types"
	"github.com/bermi/rheia/internal/wire"
)

// pusher is the subset of *verifier.Verifier a connection needs; kept as
// an interface so connection handling can be tested without a full
// Verifier.
type pusher interface {
	Push(ctx context.Context, tx *types.Transaction) error
}

// Handler decodes framed packets off one connection at a time, applying
// them against a Verifier and a recently-seen transaction id cache
// shared across all connections.
type Handler struct {
	verifier        pusher
	seen            *lru.Cache
	writerQueueSize int
}

// NewHandler builds a Handler with a recently-seen id cache of the given
// capacity, used to silently drop duplicate push_transaction deliveries
// before they reach the Verifier. writerQueueSize bounds, in bytes, how
// much unwritten response data each connection may buffer before a
// writer suspends the caller (spec.md §5).
func NewHandler(v pusher, seenCacheSize, writerQueueSize int) (*Handler, error) {
	cache, err := lru.New(seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{verifier: v, seen: cache, writerQueueSize: writerQueueSize}, nil
}

// Serve reads framed packets from conn until EOF, a protocol error, or
// ctx cancellation, dispatching each to the appropriate handler.
// Responses are queued through a per-connection bounded writer rather
// than written inline, so a slow reader on the other end backpressures
// this goroutine instead of an unbounded buffer.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	w := newConnWriter(conn, h.writerQueueSize)
	defer w.Close()

	r := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, err := readPacket(r)
		if err != nil {
			if err != io.EOF {
				logs.Debug("ingress: closing connection after frame error: %v", err)
			}
			return
		}

		if err := h.dispatch(ctx, w, pkt); err != nil {
			logs.Debug("ingress: closing connection after dispatch error: %v", err)
			return
		}
	}
}

// readPacket reads exactly one header, then its announced payload, off r.
func readPacket(r *bufio.Reader) (wire.Packet, error) {
	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return wire.Packet{}, err
	}
	payloadLen, err := wire.DecodeHeader(header)
	if err != nil {
		return wire.Packet{}, err
	}

	body := make([]byte, int(payloadLen))
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return wire.Packet{}, err
		}
	}

	frame := append(header, body...)
	pkt, _, err := wire.Decode(frame)
	return pkt, err
}

// dispatch routes one decoded packet to its handler.
func (h *Handler) dispatch(ctx context.Context, w *connWriter, pkt wire.Packet) error {
	switch pkt.Tag {
	case wire.TagPing:
		return h.handlePing(ctx, w, pkt)
	case wire.TagPushTransaction:
		return h.handlePushTransaction(ctx, pkt)
	default:
		return chainerr.ErrUnexpectedTag
	}
}

// handlePing queues the request payload back under the same nonce.
func (h *Handler) handlePing(ctx context.Context, w *connWriter, pkt wire.Packet) error {
	if pkt.Op != wire.OpRequest {
		return nil
	}
	resp := wire.Encode(wire.Packet{
		Nonce:   pkt.Nonce,
		Op:      wire.OpResponse,
		Tag:     wire.TagPing,
		Payload: pkt.Payload,
	})
	return w.Enqueue(ctx, resp)
}

// handlePushTransaction decodes consecutive Transactions from pkt's
// payload until end-of-stream and pushes each into the Verifier, per
// spec.md §4.5. A decode error aborts processing that frame but does
// not close the connection.
func (h *Handler) handlePushTransaction(ctx context.Context, pkt wire.Packet) error {
	body := pkt.Payload
	for len(body) > 0 {
		tx, n, err := types.DecodeTransaction(body)
		if err != nil {
			if err == chainerr.ErrEndOfStream {
				return nil
			}
			logs.Warn("ingress: dropping malformed transaction in frame: %v", err)
			return nil
		}
		body = body[n:]

		if h.seen.Contains(tx.ID) {
			tx.Release()
			continue
		}
		h.seen.Add(tx.ID, struct{}{})

		if err := h.verifier.Push(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}
