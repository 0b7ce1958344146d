// Package metadata implements the metadata layer: a last-writer-wins map
// from string key to types.TemplateValue, per spec §4.4. There is no
// original_source file for this layer (it was filtered out of the
// retrieved source set), so it is grounded on the teacher repo's general
// mutex-guarded-map style (as seen across gcounter.go/pn_counter.go) rather
// than a ported algorithm.
package metadata

import (
	"sync"
	"time"

	"github.com/vespera-atelier/vespera-bindery/types"
)

// writeTriple is the (timestamp, user_id, op_id) tuple used to compare
// concurrent writes to the same key.
type writeTriple struct {
	ts   time.Time
	user types.UserID
	op   types.OpID
}

// greater reports whether a strictly outranks b: compare timestamp, then
// user_id lexicographically, then op_id, per spec §4.4.
func (a writeTriple) greater(b writeTriple) bool {
	if !a.ts.Equal(b.ts) {
		return a.ts.After(b.ts)
	}
	if a.user != b.user {
		return a.user > b.user
	}
	return a.op.String() > b.op.String()
}

type entry struct {
	value     types.TemplateValue
	triple    writeTriple
	tombstone bool
}

// Layer is the metadata LWW map.
type Layer struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty metadata layer.
func New() *Layer {
	return &Layer{entries: make(map[string]entry)}
}

// Set records value for key with the supplied provenance. If a prior entry
// exists, the strictly-greater (timestamp, user_id, op_id) triple wins;
// losing writes are discarded, but the key retains whichever triple won so
// a later write can still be compared against it.
func (l *Layer) Set(key string, value types.TemplateValue, ts time.Time, user types.UserID, op types.OpID) {
	l.set(key, value, ts, user, op, false)
}

// Delete tombstones key with the supplied provenance, following the same
// triple comparison as Set: a concurrent Set with a greater triple still
// wins over this Delete.
func (l *Layer) Delete(key string, ts time.Time, user types.UserID, op types.OpID) {
	l.set(key, types.TemplateValue{}, ts, user, op, true)
}

func (l *Layer) set(key string, value types.TemplateValue, ts time.Time, user types.UserID, op types.OpID, tombstone bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := writeTriple{ts: ts, user: user, op: op}
	existing, ok := l.entries[key]
	if ok && !t.greater(existing.triple) {
		return
	}
	l.entries[key] = entry{value: value, triple: t, tombstone: tombstone}
}

// Get returns the currently-winning value for key, or (zero, false) if
// absent or tombstoned.
func (l *Layer) Get(key string) (types.TemplateValue, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	if !ok || e.tombstone {
		return types.TemplateValue{}, false
	}
	return e.value, true
}

// Keys returns every live (non-tombstoned) key.
func (l *Layer) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.entries))
	for k, e := range l.entries {
		if !e.tombstone {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot returns every live key -> value pair.
func (l *Layer) Snapshot() map[string]types.TemplateValue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]types.TemplateValue)
	for k, e := range l.entries {
		if !e.tombstone {
			out[k] = e.value
		}
	}
	return out
}

// Stats summarizes the map's shape.
type Stats struct {
	LiveEntries      int
	TombstoneEntries int
}

// Stats returns the current live/tombstone counts.
func (l *Layer) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var s Stats
	for _, e := range l.entries {
		if e.tombstone {
			s.TombstoneEntries++
		} else {
			s.LiveEntries++
		}
	}
	return s
}

// GCTombstones drops tombstones whose write timestamp is older than cutoff.
// Live entries are never removed. Returns the count dropped.
func (l *Layer) GCTombstones(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, e := range l.entries {
		if e.tombstone && e.triple.ts.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Cleanup releases all map state.
func (l *Layer) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]entry)
}
