// Package chain implements the pending-transaction mempool and the
// propose/finalize state machine driving block production.
package chain

import (
	"sync"

	"github.com/dchest/siphash"

	"github.com/bermi/rheia/internal/types"
)

const (
	pendingSipK0 = 0x5ec1d6c0a4e4a9b3
	pendingSipK1 = 0x1f2e3d4c5b6a7988
)

// pendingShard is one lock-guarded partition of the pending map. The
// mempool is sharded by siphash(id) so that Verifier inserts and
// finalizer deletes on unrelated ids don't contend on one mutex.
type pendingShard struct {
	mu sync.Mutex
	m  map[[32]byte]*types.Transaction
}

// Pending is Chain's pending-transaction mempool: a map from transaction
// id to owned Transaction, sharded for concurrent insert/delete.
type Pending struct {
	shards []*pendingShard
	mask   uint64
}

// NewPending creates a Pending with the given (power-of-two) shard count.
func NewPending(shardCount int) *Pending {
	n := nextPowerOfTwo(shardCount)
	shards := make([]*pendingShard, n)
	for i := range shards {
		shards[i] = &pendingShard{m: make(map[[32]byte]*types.Transaction)}
	}
	return &Pending{shards: shards, mask: uint64(n - 1)}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (p *Pending) shardFor(id [32]byte) *pendingShard {
	h := siphash.Hash(pendingSipK0, pendingSipK1, id[:])
	return p.shards[h&p.mask]
}

// Reserve models the source's capacity-reservation step ahead of a batch
// insert. Go maps grow without a fixed-capacity failure mode, so this
// never fails in practice; the call is kept so the Verifier's commit
// path still has an explicit place to react to SystemResources, per
// spec.md §4.2/§7.
func (p *Pending) Reserve(_ int) error {
	return nil
}

// Insert adds tx keyed by its id, taking ownership. A pre-existing entry
// under the same id is released and overwritten (last-write-wins; see
// DESIGN.md's Open Question resolution).
func (p *Pending) Insert(tx *types.Transaction) {
	s := p.shardFor(tx.ID)
	s.mu.Lock()
	if old, ok := s.m[tx.ID]; ok {
		old.Release()
	}
	s.m[tx.ID] = tx
	s.mu.Unlock()
}

// Delete removes and returns the transaction stored under id, if present.
func (p *Pending) Delete(id [32]byte) (*types.Transaction, bool) {
	s := p.shardFor(id)
	s.mu.Lock()
	tx, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	s.mu.Unlock()
	return tx, ok
}

// Has reports whether id is currently present.
func (p *Pending) Has(id [32]byte) bool {
	s := p.shardFor(id)
	s.mu.Lock()
	_, ok := s.m[id]
	s.mu.Unlock()
	return ok
}

// Size returns the total number of pending transactions across shards.
func (p *Pending) Size() int {
	total := 0
	for _, s := range p.shards {
		s.mu.Lock()
		total += len(s.m)
		s.mu.Unlock()
	}
	return total
}

// SnapshotIDs returns up to max transaction ids in this mempool's
// iteration order. That order follows Go's unspecified map iteration
// within each shard, shards visited in index order; no determinism
// beyond that is implied or required (spec.md §4.3 step 3).
func (p *Pending) SnapshotIDs(max int) [][32]byte {
	ids := make([][32]byte, 0, max)
	for _, s := range p.shards {
		s.mu.Lock()
		for id := range s.m {
			if len(ids) >= max {
				s.mu.Unlock()
				return ids
			}
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	return ids
}
