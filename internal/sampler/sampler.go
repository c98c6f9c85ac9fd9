// Package sampler implements a Snowball-style repeated-sampling
// consensus state machine over Block candidates.
package sampler

import (
	"github.com/shopspring/decimal"

	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/types"
)

// Vote is one observation fed to Update. Block is nil when the voter
// abstained. Tally is the fraction of the electorate (or, in the
// single-voter case this core drives, a fixed weight) backing Block.
type Vote struct {
	Block *types.Block
	Tally decimal.Decimal
}

// Sampler is the Snowball state machine. It is driven exclusively by the
// Chain's finalize loop; Update, Prefer and Reset are not safe to call
// concurrently from multiple goroutines.
type Sampler struct {
	alpha decimal.Decimal
	beta  int

	counts           map[[32]byte]uint
	consecutiveCount int
	stalled          int
	preferred        *types.Block
	last             *types.Block
}

// New builds an empty Sampler from cfg.
func New(cfg config.SamplerConfig) *Sampler {
	return &Sampler{
		alpha:  decimal.NewFromFloat(cfg.Alpha),
		beta:   cfg.Beta,
		counts: make(map[[32]byte]uint),
	}
}

// Preferred returns the current preferred block, or nil.
func (s *Sampler) Preferred() *types.Block {
	return s.preferred
}

// Prefer externally injects block as the preferred candidate, releasing
// whatever was preferred before. Used by the Chain's proposer to offer a
// freshly-built block once no candidate is in flight.
func (s *Sampler) Prefer(block *types.Block) {
	s.setPreferred(block)
}

// Update feeds one round of votes into the state machine. It returns the
// finalized block and true once beta+1 consecutive strong majorities on
// the same block have been observed; otherwise it returns (nil, false).
func (s *Sampler) Update(votes []Vote) (*types.Block, bool) {
	if len(votes) == 0 {
		return nil, false
	}

	majority, ok := pickMajority(votes)
	if !ok {
		s.consecutiveCount = 0
		return nil, false
	}

	if majority.Tally.LessThan(s.alpha) {
		s.stalled++
		if s.stalled >= s.beta {
			s.setPreferred(nil)
			s.stalled = 0
		}
		s.consecutiveCount = 0
		return nil, false
	}

	s.counts[majority.Block.ID]++
	newCount := s.counts[majority.Block.ID]

	switch {
	case s.preferred != nil && newCount > s.counts[s.preferred.ID]:
		s.setPreferred(majority.Block)
	case s.preferred == nil:
		s.setPreferred(majority.Block)
	}

	if s.last == nil || s.last.ID != majority.Block.ID {
		s.setLast(majority.Block)
		s.consecutiveCount = 1
		return nil, false
	}

	s.consecutiveCount++
	if s.consecutiveCount > s.beta {
		return s.preferred, true
	}
	return nil, false
}

// Reset clears the round state (counts, consecutive_count, stalled) and
// releases preferred/last, as called after a finalization.
func (s *Sampler) Reset() {
	s.counts = make(map[[32]byte]uint)
	s.consecutiveCount = 0
	s.stalled = 0
	s.setPreferred(nil)
	s.setLast(nil)
}

func (s *Sampler) setPreferred(block *types.Block) {
	old := s.preferred
	if block != nil {
		block = block.Ref()
	}
	if old != nil {
		old.Release()
	}
	s.preferred = block
}

func (s *Sampler) setLast(block *types.Block) {
	old := s.last
	if block != nil {
		block = block.Ref()
	}
	if old != nil {
		old.Release()
	}
	s.last = block
}

// pickMajority selects the vote with the highest tally among those
// carrying a non-nil block. Ties are broken by the first one reached, in
// slice order.
func pickMajority(votes []Vote) (Vote, bool) {
	var best Vote
	found := false
	for _, v := range votes {
		if v.Block == nil {
			continue
		}
		if !found || v.Tally.GreaterThan(best.Tally) {
			best = v
			found = true
		}
	}
	return best, found
}
