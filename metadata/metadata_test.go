package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespera-atelier/vespera-bindery/types"
)

func TestSetAndGet(t *testing.T) {
	l := New()
	now := time.Now()
	l.Set("title", types.NewTextValue("Hello", now, "u1"), now, "u1", types.NewOpID())

	v, ok := l.Get("title")
	require.True(t, ok)
	assert.Equal(t, "Hello", v.Text)
}

func TestSetTieBreaksByUserIDWhenTimestampsEqual(t *testing.T) {
	// Seed scenario: u1 sets "k" to "X" at t=100, u2 sets "k" to "Y" at
	// t=100; the higher user_id wins deterministically on every replica.
	l1 := New()
	l2 := New()
	ts := time.Unix(100, 0)

	opX := types.NewOpID()
	opY := types.NewOpID()

	l1.Set("k", types.NewTextValue("X", ts, "u1"), ts, "u1", opX)
	l1.Set("k", types.NewTextValue("Y", ts, "u2"), ts, "u2", opY)

	l2.Set("k", types.NewTextValue("Y", ts, "u2"), ts, "u2", opY)
	l2.Set("k", types.NewTextValue("X", ts, "u1"), ts, "u1", opX)

	v1, _ := l1.Get("k")
	v2, _ := l2.Get("k")
	assert.Equal(t, v1.Text, v2.Text)
	assert.Equal(t, "Y", v1.Text, "u2 > u1 lexicographically, so u2's write wins regardless of application order")
}

func TestDeleteTombstonesKey(t *testing.T) {
	l := New()
	now := time.Now()
	l.Set("k", types.NewTextValue("v", now, "u1"), now, "u1", types.NewOpID())
	l.Delete("k", now.Add(time.Second), "u1", types.NewOpID())

	_, ok := l.Get("k")
	assert.False(t, ok)
}

func TestOlderWriteLoses(t *testing.T) {
	l := New()
	later := time.Now()
	earlier := later.Add(-time.Hour)

	l.Set("k", types.NewTextValue("new", later, "u1"), later, "u1", types.NewOpID())
	l.Set("k", types.NewTextValue("old", earlier, "u1"), earlier, "u1", types.NewOpID())

	v, _ := l.Get("k")
	assert.Equal(t, "new", v.Text)
}

func TestGCTombstonesDropsOldOnly(t *testing.T) {
	l := New()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	l.Delete("old-key", old, "u1", types.NewOpID())
	l.Delete("recent-key", recent, "u1", types.NewOpID())

	removed := l.GCTombstones(time.Now().Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Stats().TombstoneEntries)
}
