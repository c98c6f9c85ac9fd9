package verifier

import (
	"crypto/rand"

	"github.com/RoaringBitmap/roaring"
	voied25519 "github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/bermi/rheia/internal/types"
)

// verifyBatched partitions entries into contiguous windows of exactly
// windowSize and verifies each with an amortized batch check (falling
// back to per-transaction verification within the window on batch
// failure). Any residual tail shorter than windowSize skips the batch
// attempt and is always verified per-transaction, per spec.md §4.2.
func verifyBatched(entries []*types.Transaction, windowSize int) []*types.Transaction {
	accepted := make([]*types.Transaction, 0, len(entries))
	i := 0
	for i+windowSize <= len(entries) {
		accepted = append(accepted, verifyWindow(entries[i:i+windowSize])...)
		i += windowSize
	}
	if i < len(entries) {
		accepted = append(accepted, verifyIndividually(entries[i:])...)
	}
	return accepted
}

// verifyWindow verifies exactly one full window. It first attempts a
// single Ed25519 batch verification; on batch failure it falls back to
// per-transaction verification.
func verifyWindow(window []*types.Transaction) []*types.Transaction {
	if len(window) == 0 {
		return window
	}
	if verifyBatch(window) {
		return window
	}
	return verifyIndividually(window)
}

// verifyIndividually verifies each transaction in window on its own,
// releasing rejected ones and compacting accepted ones to the front of
// the returned slice in their original relative order. Rejected slots
// are tracked in a bitmap rather than a second bool slice, since
// rejections are the rare case and a sparse index set avoids scanning
// a full-length bool slice to find them.
func verifyIndividually(window []*types.Transaction) []*types.Transaction {
	rejected := roaring.New()
	for i, tx := range window {
		if !tx.VerifySignature() {
			rejected.Add(uint32(i))
		}
	}

	accepted := make([]*types.Transaction, 0, len(window))
	for i, tx := range window {
		if rejected.Contains(uint32(i)) {
			tx.Release()
			continue
		}
		accepted = append(accepted, tx)
	}
	return accepted
}

// verifyBatch attempts one amortized Ed25519 batch verification over
// window. crypto/ed25519 has no batch API; curve25519-voi is the
// standard real-world package providing one.
func verifyBatch(window []*types.Transaction) bool {
	verifier := voied25519.NewBatchVerifierWithCapacity(len(window))
	for _, tx := range window {
		verifier.Add(voied25519.PublicKey(tx.Sender[:]), tx.SignaturePayload(), tx.Signature[:])
	}

	return verifier.VerifyBatchOnly(rand.Reader)
}
