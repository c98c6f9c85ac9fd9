package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/logs"
	runtimeutil "github.com/bermi/rheia/internal/runtime"
	"github.com/bermi/rheia/internal/sampler"
	"github.com/bermi/rheia/internal/stats"
	"github.com/bermi/rheia/internal/types"
)

// Chain owns the pending mempool, drives the propose/finalize state
// machine, and holds the most recently finalized block.
type Chain struct {
	cfg config.ChainConfig

	pending *Pending
	sampler *sampler.Sampler

	mu              sync.RWMutex
	latest          *types.Block
	lastProposeTime time.Time

	proposeDelay *runtimeutil.AdaptiveDelay
	stats        *stats.Recorder
}

// New builds a Chain from cfg.
func New(cfg config.Config, st *stats.Recorder) *Chain {
	return &Chain{
		cfg:          cfg.Chain,
		pending:      NewPending(cfg.Chain.PendingShards),
		sampler:      sampler.New(cfg.Sampler),
		proposeDelay: runtimeutil.NewLinear(cfg.Chain.ProposeDelayMin, cfg.Chain.ProposeDelayMax, 0.10),
		stats:        st,
	}
}

// Pending exposes the mempool for the Verifier to populate.
func (c *Chain) Pending() *Pending {
	return c.pending
}

// LatestBlock returns the most recently finalized block, or nil.
func (c *Chain) LatestBlock() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Run drives the propose/finalize cycle until ctx is cancelled. Per
// spec.md §5, Sampler state is touched from exactly one goroutine: this
// one. Each iteration picks the propose or finalize phase depending on
// whether the Sampler currently holds a preferred candidate.
func (c *Chain) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return chainerr.ErrCancelled
		default:
		}

		var err error
		if c.sampler.Preferred() == nil {
			err = c.proposeStep(ctx)
		} else {
			err = c.finalizeStep(ctx)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Chain) proposeStep(ctx context.Context) error {
	select {
	case <-time.After(c.proposeDelay.Current()):
	case <-ctx.Done():
		return chainerr.ErrCancelled
	}

	if c.pending.Size() == 0 || time.Since(c.lastProposeTime) < c.cfg.ProposeDelayMin {
		c.proposeDelay.Grow()
		return nil
	}

	ids := c.pending.SnapshotIDs(c.cfg.MaxTransactionIDs)
	height := uint64(1)
	if latest := c.LatestBlock(); latest != nil {
		height = latest.Height + 1
	}

	blk, err := types.NewBlock(height, ids)
	if err != nil {
		return err
	}
	c.sampler.Prefer(blk)
	blk.Release() // sampler holds its own reference now

	c.lastProposeTime = time.Now()
	c.proposeDelay.Reset()
	logs.Info("chain: proposed block height=%d txs=%d", height, len(ids))
	return nil
}

func (c *Chain) finalizeStep(ctx context.Context) error {
	preferred := c.sampler.Preferred()

	votes := []sampler.Vote{{Block: preferred, Tally: decimal.NewFromFloat(1.0)}}
	finalized, ok := c.sampler.Update(votes)
	if !ok {
		return nil
	}

	finalized = finalized.Ref() // take our own share before Reset releases the sampler's

	for _, id := range finalized.TransactionIDs {
		tx, found := c.pending.Delete(id)
		if !found {
			return fmt.Errorf("invariant violation: finalized tx %x missing from pending", id)
		}
		tx.Release()
	}

	c.mu.Lock()
	old := c.latest
	c.latest = finalized
	c.mu.Unlock()
	if old != nil {
		old.Release()
	}

	c.sampler.Reset()
	c.stats.Record("chain.finalize", time.Since(c.lastProposeTime))
	logs.Info("chain: finalized block height=%d id=%x", finalized.Height, finalized.ID)
	return nil
}

// Shutdown releases all pending transactions, the latest block, and any
// in-flight sampler state. Called after the Verifier has been drained.
func (c *Chain) Shutdown() {
	for _, s := range c.pending.shards {
		s.mu.Lock()
		for id, tx := range s.m {
			tx.Release()
			delete(s.m, id)
		}
		s.mu.Unlock()
	}

	c.mu.Lock()
	if c.latest != nil {
		c.latest.Release()
		c.latest = nil
	}
	c.mu.Unlock()

	c.sampler.Reset()
}
