// Package types holds the pure value types shared across every CRDT layer:
// identifiers, the vector clock, template values, and cross-document
// references. Nothing in this package depends on any other Bindery package,
// which keeps the layer packages (text, tree, metadata, reference) free to
// import it without risk of a cycle.
package types

import (
	"sort"

	"github.com/google/uuid"
)

// CodexID uniquely and immutably identifies a Codex for its entire life.
type CodexID = uuid.UUID

// NewCodexID generates a fresh, globally unique CodexID.
func NewCodexID() CodexID {
	return uuid.New()
}

// UserID identifies a logical author. Stable for the author's lifetime;
// recommended to stay under 64 bytes, not enforced here.
type UserID string

// OpID uniquely identifies an operation across every replica. It is
// generated locally when the operation is created and used for dedup on
// merge: applying an operation whose ID is already known is a no-op.
type OpID = uuid.UUID

// NewOpID generates a fresh OpID.
func NewOpID() OpID {
	return uuid.New()
}

// VectorClock maps a UserID to a monotonically increasing counter. Local
// operations only ever raise the local user's own entry; applying a remote
// operation takes the per-user max. The clock's cardinality may be trimmed
// (see memory.TrimVectorClock) without affecting convergence — it is an advisory
// optimization, not the mechanism that guarantees correctness.
type VectorClock map[UserID]uint64

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Clone returns an independent copy.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Increment bumps user's entry by one and returns the new value.
func (vc VectorClock) Increment(user UserID) uint64 {
	vc[user]++
	return vc[user]
}

// ObserveRemote raises user's local entry to at least remoteCount. This is
// the "take the per-user max" rule applied when an operation arrives from
// another replica.
func (vc VectorClock) ObserveRemote(user UserID, remoteCount uint64) {
	if remoteCount > vc[user] {
		vc[user] = remoteCount
	}
}

// Trim keeps only the maxEntries highest counters, breaking ties by UserID
// so the result is deterministic. It is a memory knob: trimming loses
// precise causal history for cold users but never affects convergence,
// since layer state (not the clock) is authoritative. Returns the number
// of entries dropped.
func (vc VectorClock) Trim(maxEntries int) int {
	if maxEntries < 0 || len(vc) <= maxEntries {
		return 0
	}

	type entry struct {
		user  UserID
		count uint64
	}
	entries := make([]entry, 0, len(vc))
	for u, c := range vc {
		entries = append(entries, entry{u, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].user < entries[j].user
	})

	removed := len(vc) - maxEntries
	for _, e := range entries[maxEntries:] {
		delete(vc, e.user)
	}
	return removed
}
