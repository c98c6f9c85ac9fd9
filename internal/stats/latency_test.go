package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndSnapshotComputesPercentiles(t *testing.T) {
	r := NewRecorder(16)
	for i := 1; i <= 10; i++ {
		r.Record("verifier.flush", time.Duration(i)*time.Millisecond)
	}

	snap := r.Snapshot(false)
	summary, ok := snap["verifier.flush"]
	require.True(t, ok)
	require.Equal(t, uint64(10), summary.Count)
	require.Equal(t, 10*time.Millisecond, summary.Max)
	require.True(t, summary.P50 >= 4*time.Millisecond && summary.P50 <= 6*time.Millisecond)
}

func TestSnapshotResetClearsSamples(t *testing.T) {
	r := NewRecorder(16)
	r.Record("chain.finalize", 5*time.Millisecond)

	first := r.Snapshot(true)
	require.Equal(t, uint64(1), first["chain.finalize"].Count)

	second := r.Snapshot(false)
	_, ok := second["chain.finalize"]
	require.False(t, ok, "metric with no samples since reset should be omitted")
}

func TestRingBufferWraparoundKeepsMostRecentSamples(t *testing.T) {
	r := NewRecorder(4)
	for i := 1; i <= 6; i++ {
		r.Record("verifier.flush", time.Duration(i)*time.Millisecond)
	}

	snap := r.Snapshot(false)
	summary := snap["verifier.flush"]
	require.Equal(t, uint64(6), summary.Count)
	// Only the last 4 samples (3,4,5,6ms) remain in the ring; max tracks
	// the lifetime high-water mark independent of the ring's contents.
	require.Equal(t, 6*time.Millisecond, summary.Max)
	require.True(t, summary.P50 >= 3*time.Millisecond)
}

func TestRecordOnNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() { r.Record("x", time.Millisecond) })
	require.Nil(t, r.Snapshot(false))
}
