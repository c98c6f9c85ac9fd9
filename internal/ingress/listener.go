package ingress

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/logs"
)

// Listen opens the node's TCP listener with SO_REUSEADDR, SO_REUSEPORT
// and TCP_FASTOPEN set on the listening socket, per spec.md §6.
// TCP_NODELAY is set on each accepted connection by Serve.
func Listen(cfg config.ServerConfig) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					setErr = e
					return
				}
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
					setErr = e
					return
				}
				if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_FASTOPEN, cfg.Backlog); e != nil {
					setErr = e
					return
				}
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled, setting
// TCP_NODELAY on each accepted connection and handing it to h.Serve in
// its own goroutine. Serve returns chainerr.ErrCancelled once ctx fires.
func Serve(ctx context.Context, ln net.Listener, h *Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return chainerr.ErrCancelled
			default:
				logs.Warn("ingress: accept error: %v", err)
				return err
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		go h.Serve(ctx, conn)
	}
}
