// Package reference implements the reference layer: an observed-remove set
// (OR-Set) of types.CodexReference elements, per spec §4.5. As with
// metadata, no original_source file covers this layer; it follows the
// teacher repo's mutex-guarded-map style rather than a ported algorithm.
package reference

import (
	"sync"
	"time"

	"github.com/vespera-atelier/vespera-bindery/types"
)

// addTag is one add-tag for a reference: the reference itself plus the
// timestamp of the operation that created it, mirroring
// metadata.writeTriple so GCRemovedTags can age out tags on its own rather
// than depending on the orchestrator's operation log.
type addTag struct {
	ref types.CodexReference
	at  time.Time
}

// Layer is the reference OR-Set.
type Layer struct {
	mu      sync.RWMutex
	adds    map[types.CodexReferenceKey]map[types.OpID]addTag
	removes map[types.CodexReferenceKey]map[types.OpID]struct{}
}

// New returns an empty reference layer.
func New() *Layer {
	return &Layer{
		adds:    make(map[types.CodexReferenceKey]map[types.OpID]addTag),
		removes: make(map[types.CodexReferenceKey]map[types.OpID]struct{}),
	}
}

// Add records a unique add-tag (opID) for ref, stamped with at (the
// timestamp of the operation that created it). A reference with multiple
// concurrent add-tags (e.g. re-added after removal) stays in the set as
// long as any one add-tag survives Remove.
func (l *Layer) Add(ref types.CodexReference, opID types.OpID, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ref.Key()
	tags, ok := l.adds[key]
	if !ok {
		tags = make(map[types.OpID]addTag)
		l.adds[key] = tags
	}
	tags[opID] = addTag{ref: ref, at: at}
}

// Remove records every add-tag currently observed for ref as a remove-tag.
// Per OR-Set semantics, a concurrent Add using a tag this Remove has not
// observed still leaves the reference in the set ("add wins").
func (l *Layer) Remove(ref types.CodexReference) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ref.Key()
	tags, ok := l.adds[key]
	if !ok {
		return
	}
	rm, ok := l.removes[key]
	if !ok {
		rm = make(map[types.OpID]struct{})
		l.removes[key] = rm
	}
	for opID := range tags {
		rm[opID] = struct{}{}
	}
}

// Contains reports whether ref currently has at least one add-tag not
// covered by a remove-tag.
func (l *Layer) Contains(ref types.CodexReference) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.liveLocked(ref.Key())
}

func (l *Layer) liveLocked(key types.CodexReferenceKey) bool {
	tags, ok := l.adds[key]
	if !ok {
		return false
	}
	rm := l.removes[key]
	for opID := range tags {
		if _, removed := rm[opID]; !removed {
			return true
		}
	}
	return false
}

// Iter returns every reference currently in the set.
func (l *Layer) Iter() []types.CodexReference {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.CodexReference
	for key, tags := range l.adds {
		if !l.liveLocked(key) {
			continue
		}
		for _, tag := range tags {
			out = append(out, tag.ref)
			break
		}
	}
	return out
}

// Stats summarizes the set's shape.
type Stats struct {
	LiveReferences int
	AddTags        int
	RemoveTags     int
}

// Stats returns the current tag counts.
func (l *Layer) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Stats
	for key, tags := range l.adds {
		s.AddTags += len(tags)
		if l.liveLocked(key) {
			s.LiveReferences++
		}
	}
	for _, rm := range l.removes {
		s.RemoveTags += len(rm)
	}
	return s
}

// GCRemovedTags drops add-tags and their covering remove-tags once every
// add-tag for a key has both been removed and aged past cutoff — the
// referenced add-tags must be dropped in the same pass as their
// remove-tags, or a later merge could resurrect the reference from a peer
// that never saw the removal (spec §4.5). Returns the count of (key) groups
// fully collected.
func (l *Layer) GCRemovedTags(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	collected := 0
	for key, tags := range l.adds {
		rm := l.removes[key]
		if len(rm) == 0 {
			continue
		}
		allCovered := true
		allExpired := true
		for opID, tag := range tags {
			if _, removed := rm[opID]; !removed {
				allCovered = false
				break
			}
			if !tag.at.Before(cutoff) {
				allExpired = false
			}
		}
		if allCovered && allExpired {
			delete(l.adds, key)
			delete(l.removes, key)
			collected++
		}
	}
	return collected
}

// Cleanup releases all set state.
func (l *Layer) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adds = make(map[types.CodexReferenceKey]map[types.OpID]addTag)
	l.removes = make(map[types.CodexReferenceKey]map[types.OpID]struct{})
}
