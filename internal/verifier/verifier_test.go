package verifier

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bermi/rheia/internal/chain"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/stats"
	"github.com/bermi/rheia/internal/types"
)

func newSignedTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var sender [32]byte
	copy(sender[:], pub)
	tx, err := types.NewTransaction(priv, sender, nonce, 0, types.TagNoOp, []byte("hello world"))
	require.NoError(t, err)
	return tx
}

func newVerifier(t *testing.T) (*Verifier, *chain.Pending) {
	t.Helper()
	cfg := config.DefaultConfig()
	pending := chain.NewPending(cfg.Chain.PendingShards)
	v := New(*cfg, pending, stats.NewRecorder(64))
	return v, pending
}

func TestSignatureRejectionKeepsCorruptedTxOutOfPending(t *testing.T) {
	v, pending := newVerifier(t)
	tx := newSignedTx(t, 1)
	tx.Signature[0] ^= 0xFF // corrupt

	ctx := context.Background()
	for i := 0; i < 63; i++ {
		require.NoError(t, v.Push(ctx, newSignedTx(t, uint64(i+2))))
	}
	require.NoError(t, v.Push(ctx, tx)) // 64th push triggers flush

	require.Eventually(t, func() bool { return v.ActiveTasks() == 0 }, time.Second, time.Millisecond)
	require.False(t, pending.Has(tx.ID))
	require.Equal(t, 63, pending.Size())
}

func TestBatchAndFallbackDropsOnlyCorrupted(t *testing.T) {
	v, pending := newVerifier(t)
	ctx := context.Background()

	const n = 65
	const corruptIdx = 30
	txs := make([]*types.Transaction, n)
	for i := 0; i < n; i++ {
		txs[i] = newSignedTx(t, uint64(i))
	}
	txs[corruptIdx].Signature[0] ^= 0xFF

	for _, tx := range txs {
		require.NoError(t, v.Push(ctx, tx))
	}
	// The 65th entry sits in the accumulating batch until Run's
	// background flush, so run Run in a goroutine for the rest of the
	// test to flush it.
	runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go v.Run(runCtx)

	require.Eventually(t, func() bool {
		return pending.Size() == n-1 && v.ActiveTasks() == 0
	}, 2*time.Second, time.Millisecond)

	require.False(t, pending.Has(txs[corruptIdx].ID))
	for i, tx := range txs {
		if i == corruptIdx {
			continue
		}
		require.True(t, pending.Has(tx.ID), "tx %d should be pending", i)
	}
}

func TestFullValidBatchCommitsAll(t *testing.T) {
	v, pending := newVerifier(t)
	ctx := context.Background()

	const n = 64
	ids := make([][32]byte, n)
	for i := 0; i < n; i++ {
		tx := newSignedTx(t, uint64(i))
		ids[i] = tx.ID
		require.NoError(t, v.Push(ctx, tx))
	}

	require.Eventually(t, func() bool { return v.ActiveTasks() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, n, pending.Size())
	for _, id := range ids {
		require.True(t, pending.Has(id))
	}
}

func TestCapacityNeverExceedsMaxParallelTasks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Verifier.MaxParallelTasks = 2
	cfg.Verifier.MaxBatchSize = 1
	pending := chain.NewPending(cfg.Chain.PendingShards)
	v := New(*cfg, pending, stats.NewRecorder(64))

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, v.Push(ctx, newSignedTx(t, uint64(i))))
		require.LessOrEqual(t, v.ActiveTasks(), int64(2))
	}

	require.Eventually(t, func() bool { return v.ActiveTasks() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, 20, pending.Size())
}
