// Package verifier implements the batched, pipelined, cancellation-aware
// cryptographic verification pool described in spec.md §4.2.
package verifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bermi/rheia/internal/chain"
	"github.com/bermi/rheia/internal/chainerr"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/logs"
	runtimeutil "github.com/bermi/rheia/internal/runtime"
	"github.com/bermi/rheia/internal/stats"
	"github.com/bermi/rheia/internal/types"
)

// task is a reusable unit of dispatched work, recycled through a
// sync.Pool free-list once its batch has been committed.
type task struct {
	batch []*types.Transaction
}

// Verifier accumulates pushed transactions into batches, verifies them
// with bounded parallelism, and commits accepted transactions into a
// Chain's pending mempool.
type Verifier struct {
	cfg     config.VerifierConfig
	pending *chain.Pending
	stats   *stats.Recorder

	mu            sync.Mutex
	entries       []*types.Transaction
	lastFlushTime time.Time

	capacity    *runtimeutil.Parker
	activeTasks atomic.Int64
	taskPool    sync.Pool
	wg          sync.WaitGroup

	flushDelay *runtimeutil.AdaptiveDelay
}

// New builds a Verifier that commits into pending.
func New(cfg config.Config, pending *chain.Pending, st *stats.Recorder) *Verifier {
	return &Verifier{
		cfg:        cfg.Verifier,
		pending:    pending,
		stats:      st,
		capacity:   runtimeutil.NewParker(int64(cfg.Verifier.MaxParallelTasks)),
		flushDelay: runtimeutil.NewMultiplicative(cfg.Verifier.FlushDelayMin, cfg.Verifier.FlushDelayMax),
		taskPool:   sync.Pool{New: func() interface{} { return &task{} }},
	}
}

// ActiveTasks returns the current number of in-flight verification
// tasks; used by tests to assert the 256-task bound is never exceeded.
func (v *Verifier) ActiveTasks() int64 {
	return v.activeTasks.Load()
}

// Push enqueues tx for verification. When the accumulating batch reaches
// MaxBatchSize it triggers an immediate flush on the calling goroutine;
// dispatching that flush suspends the caller on the capacity parker if
// all 256 parallel task slots are in use, returning only when capacity
// frees up or ctx is cancelled.
func (v *Verifier) Push(ctx context.Context, tx *types.Transaction) error {
	v.mu.Lock()
	v.entries = append(v.entries, tx)
	var batch []*types.Transaction
	if len(v.entries) >= v.cfg.MaxBatchSize {
		batch = v.entries
		v.entries = nil
	}
	v.mu.Unlock()

	if batch == nil {
		return nil
	}
	return v.dispatch(ctx, batch)
}

// Run is the background loop that sleeps adaptively and flushes partial
// batches. It doubles its delay (100ms up to 500ms) on every idle tick
// and resets to the minimum on a successful flush.
func (v *Verifier) Run(ctx context.Context) error {
	for {
		select {
		case <-time.After(v.flushDelay.Current()):
		case <-ctx.Done():
			return chainerr.ErrCancelled
		}

		v.mu.Lock()
		hasEntries := len(v.entries) > 0
		elapsed := time.Since(v.lastFlushTime) >= v.cfg.FlushDelayMin
		var batch []*types.Transaction
		if hasEntries && elapsed {
			batch = v.entries
			v.entries = nil
		}
		v.mu.Unlock()

		if batch == nil {
			v.flushDelay.Grow()
			continue
		}

		if err := v.dispatch(ctx, batch); err != nil {
			return err
		}
		v.flushDelay.Reset()
	}
}

// dispatch acquires one capacity slot (suspending the caller if
// saturated) and hands batch to a newly-spawned task goroutine,
// returning once the task has been launched rather than once it
// completes.
func (v *Verifier) dispatch(ctx context.Context, batch []*types.Transaction) error {
	if err := v.capacity.Acquire(ctx); err != nil {
		return err
	}

	v.mu.Lock()
	v.lastFlushTime = time.Now()
	v.mu.Unlock()

	t := v.taskPool.Get().(*task)
	t.batch = batch
	v.activeTasks.Add(1)
	v.wg.Add(1)
	go v.runTask(t)
	return nil
}

// runTask owns its batch from dispatch until completion, verifying it
// and committing accepted transactions into pending before returning its
// task struct to the free-list and releasing its capacity slot.
func (v *Verifier) runTask(t *task) {
	defer func() {
		t.batch = nil
		v.taskPool.Put(t)
		v.activeTasks.Add(-1)
		v.capacity.Release()
		v.wg.Done()
	}()

	runtimeutil.MarkCPUBound()
	start := time.Now()

	accepted := verifyBatched(t.batch, v.cfg.MaxBatchSize)
	v.commit(accepted, len(t.batch))

	v.stats.Record("verifier.flush", time.Since(start))
}

// commit reserves capacity in pending for accepted and inserts each
// transaction keyed by its id. A reservation failure drops the whole
// accepted batch, releasing every transaction in it, per spec.md §4.2/§7.
func (v *Verifier) commit(accepted []*types.Transaction, batchSize int) {
	if err := v.pending.Reserve(len(accepted)); err != nil {
		for _, tx := range accepted {
			tx.Release()
		}
		logs.Warn("verifier: pending reservation failed, dropping batch of %d accepted transactions", len(accepted))
		return
	}
	for _, tx := range accepted {
		v.pending.Insert(tx)
	}
	logs.Info("verifier: flushed batch accepted=%d/%d", len(accepted), batchSize)
}

// Shutdown waits for all in-flight tasks to drain, then releases any
// transactions still sitting in the un-flushed accumulating batch.
func (v *Verifier) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return chainerr.ErrCancelled
	}

	v.mu.Lock()
	leftover := v.entries
	v.entries = nil
	v.mu.Unlock()

	for _, tx := range leftover {
		tx.Release()
	}
	return nil
}
