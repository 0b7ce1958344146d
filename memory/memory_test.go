package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespera-atelier/vespera-bindery/types"
)

func TestOperationPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewOperationPool(2)
	assert.Nil(t, p.Acquire())

	id := types.NewOpID()
	p.Release(&id)
	assert.Equal(t, 1, p.Len())

	got := p.Acquire()
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
	assert.Equal(t, 0, p.Len())
}

func TestOperationPoolDropsBeyondCapacity(t *testing.T) {
	p := NewOperationPool(1)
	a, b := types.NewOpID(), types.NewOpID()
	p.Release(&a)
	p.Release(&b)
	assert.Equal(t, 1, p.Len())
}

func TestWeakRegistryTracksLiveValues(t *testing.T) {
	reg := NewWeakRegistry[int]()
	codexID := types.NewCodexID()
	value := 42
	reg.Register(codexID, &value)

	active := reg.ActiveReferences(codexID)
	require.Len(t, active, 1)
	assert.Equal(t, 42, *active[0])
}

func TestDetectPotentialLeaksFlagsHighRefCount(t *testing.T) {
	reg := NewWeakRegistry[int]()
	codexID := types.NewCodexID()
	values := make([]int, 0, 12)
	for i := 0; i < 12; i++ {
		values = append(values, i)
	}
	for i := range values {
		reg.Register(codexID, &values[i])
	}

	report := reg.DetectPotentialLeaks()
	assert.True(t, report.HasPotentialLeaks())
	assert.NotEmpty(t, report.SuspiciousReferenceCounts)
}

func TestTrimVectorClock(t *testing.T) {
	vc := types.VectorClock{"a": 1, "b": 2, "c": 3}
	cfg := Config{MaxVectorClockEntries: 1}
	removed := TrimVectorClock(vc, cfg)
	assert.Equal(t, 2, removed)
	assert.Len(t, vc, 1)
}
