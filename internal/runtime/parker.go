// Package runtime provides the node's cooperative-concurrency primitives:
// a capacity parker, the two adaptive timers used by the Verifier and the
// Chain, and a scheduling-hint facade for CPU-bound task bodies.
package runtime

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/bermi/rheia/internal/chainerr"
)

// Parker is a one-shot suspension primitive with capacity-based notify
// semantics: Acquire suspends the caller when the gate is saturated and
// wakes it as soon as a Release frees a slot, or the context is
// cancelled.
type Parker struct {
	sem *semaphore.Weighted
}

// NewParker creates a Parker admitting up to capacity concurrent holders.
func NewParker(capacity int64) *Parker {
	return &Parker{sem: semaphore.NewWeighted(capacity)}
}

// Acquire suspends until a slot is free or ctx is done.
func (p *Parker) Acquire(ctx context.Context) error {
	return p.AcquireN(ctx, 1)
}

// Release returns one slot to the gate and wakes the next parked caller.
func (p *Parker) Release() {
	p.ReleaseN(1)
}

// AcquireN suspends until n units of capacity are free or ctx is done.
// Used where the gated resource is sized in bytes (the connection
// writer queue) rather than in fixed-weight task slots.
func (p *Parker) AcquireN(ctx context.Context, n int64) error {
	if err := p.sem.Acquire(ctx, n); err != nil {
		return chainerr.ErrCancelled
	}
	return nil
}

// ReleaseN returns n units of capacity to the gate.
func (p *Parker) ReleaseN(n int64) {
	p.sem.Release(n)
}
