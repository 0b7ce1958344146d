package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorClockIncrementAndObserveRemote(t *testing.T) {
	vc := NewVectorClock()
	require.Equal(t, uint64(1), vc.Increment("alice"))
	require.Equal(t, uint64(2), vc.Increment("alice"))

	vc.ObserveRemote("bob", 5)
	assert.Equal(t, uint64(5), vc["bob"])

	// Observing a lower remote count never regresses the local entry.
	vc.ObserveRemote("bob", 2)
	assert.Equal(t, uint64(5), vc["bob"])
}

func TestVectorClockCloneIsIndependent(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("alice")
	clone := vc.Clone()
	clone.Increment("alice")

	assert.Equal(t, uint64(1), vc["alice"])
	assert.Equal(t, uint64(2), clone["alice"])
}

func TestVectorClockTrimKeepsHighestCounters(t *testing.T) {
	vc := VectorClock{"a": 10, "b": 30, "c": 20, "d": 5}
	removed := vc.Trim(2)

	assert.Equal(t, 2, removed)
	assert.Len(t, vc, 2)
	assert.Contains(t, vc, UserID("b"))
	assert.Contains(t, vc, UserID("c"))
}

func TestVectorClockTrimDeterministicTiebreak(t *testing.T) {
	vc := VectorClock{"zeta": 10, "alpha": 10, "mid": 10}
	removed := vc.Trim(2)

	require.Equal(t, 1, removed)
	assert.Contains(t, vc, UserID("alpha"))
	assert.Contains(t, vc, UserID("mid"))
	assert.NotContains(t, vc, UserID("zeta"))
}

func TestVectorClockTrimNoOpWhenUnderLimit(t *testing.T) {
	vc := VectorClock{"a": 1}
	assert.Equal(t, 0, vc.Trim(5))
	assert.Len(t, vc, 1)
}

func TestNewCodexIDAndOpIDAreUnique(t *testing.T) {
	assert.NotEqual(t, NewCodexID(), NewCodexID())
	assert.NotEqual(t, NewOpID(), NewOpID())
}
