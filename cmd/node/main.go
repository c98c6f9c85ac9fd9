// Command node runs the rheia consensus node: a TCP listener accepting
// ping and push_transaction frames, a batched Ed25519 verification
// pipeline, and the Chain propose/finalize loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bermi/rheia/internal/chain"
	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/ingress"
	"github.com/bermi/rheia/internal/logs"
	"github.com/bermi/rheia/internal/stats"
	"github.com/bermi/rheia/internal/verifier"
)

// shutdownGrace bounds how long the Verifier is given to drain its
// in-flight tasks once a shutdown signal arrives.
const shutdownGrace = 10 * time.Second

func main() {
	logs.SetLevelFromEnv(os.Getenv("RHEIA_LOG_LEVEL"))

	if err := run(); err != nil {
		logs.Error("node: fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.DefaultConfig()
	st := stats.NewRecorder(cfg.Stats.Capacity)

	c := chain.New(*cfg, st)
	v := verifier.New(*cfg, c.Pending(), st)

	handler, err := ingress.NewHandler(v, cfg.Verifier.SeenCacheSize, cfg.Server.WriterQueueSize)
	if err != nil {
		return fmt.Errorf("node: building ingress handler: %w", err)
	}

	ln, err := ingress.Listen(cfg.Server)
	if err != nil {
		return fmt.Errorf("node: listening on %s: %w", cfg.Server.ListenAddr, err)
	}
	logs.Info("node: listening on %s", cfg.Server.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.Run(gctx) })
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return ingress.Serve(gctx, ln, handler) })
	g.Go(func() error { return st.Run(gctx, cfg.Stats.ReportInterval) })

	<-gctx.Done()
	logs.Info("node: shutting down, draining")

	ln.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := v.Shutdown(shutdownCtx); err != nil {
		logs.Warn("node: verifier shutdown: %v", err)
	}
	c.Shutdown()

	if err := g.Wait(); err != nil && err != chainerr.ErrCancelled {
		logs.Error("node: supervised task exited with: %v", err)
	}

	logs.Info("node: shutdown complete")
	return nil
}
