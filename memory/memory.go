// Package memory implements the memory manager described in spec §4.7:
// a bounded operation-record free-list, GC configuration, vector-clock
// trimming, and a weak-reference registry for leak detection. Grounded on
// the OperationPool/MemoryConfig/WeakReferenceRegistry/MemoryLeakReport
// machinery in the original source's crdt/mod.rs, reimplemented with Go's
// weak package (see spec §9's redesign note) instead of Arc<Weak<Self>>.
package memory

import (
	"sort"
	"sync"
	"weak"

	"github.com/vespera-atelier/vespera-bindery/types"
)

// Config mirrors the original MemoryConfig: knobs for how aggressively
// the owning Codex reclaims memory.
type Config struct {
	MaxOperationPoolSize  int
	AutoGCThreshold       int
	MaxVectorClockEntries int
	AggressiveCleanup     bool
}

// DefaultConfig returns the same defaults as the original implementation.
func DefaultConfig() Config {
	return Config{
		MaxOperationPoolSize:  100,
		AutoGCThreshold:       1000,
		MaxVectorClockEntries: 50,
		AggressiveCleanup:     false,
	}
}

// OperationPool is a bounded free-list of operation records, amortizing
// allocation during high-throughput edit bursts.
type OperationPool struct {
	mu      sync.Mutex
	free    []*types.OpID
	maxSize int
}

// NewOperationPool returns a pool that retains at most maxSize records.
func NewOperationPool(maxSize int) *OperationPool {
	return &OperationPool{maxSize: maxSize}
}

// Acquire returns a pooled record if one is free, else nil (the caller
// allocates fresh).
func (p *OperationPool) Acquire() *types.OpID {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil
	}
	id := p.free[n-1]
	p.free = p.free[:n-1]
	return id
}

// Release returns id to the pool if capacity remains, else drops it.
func (p *OperationPool) Release(id *types.OpID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.maxSize {
		p.free = append(p.free, id)
	}
}

// Clear empties the pool.
func (p *OperationPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = nil
}

// Len returns the number of currently pooled records.
func (p *OperationPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// WeakRegistry tracks weak.Pointer handles to live Codex instances keyed by
// CodexID, to detect reference buildup without itself keeping anything
// alive.
type WeakRegistry[T any] struct {
	mu   sync.Mutex
	refs map[types.CodexID][]weak.Pointer[T]
}

// NewWeakRegistry returns an empty registry.
func NewWeakRegistry[T any]() *WeakRegistry[T] {
	return &WeakRegistry[T]{refs: make(map[types.CodexID][]weak.Pointer[T])}
}

// Register records a weak reference to value under codexID.
func (r *WeakRegistry[T]) Register(codexID types.CodexID, value *T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[codexID] = append(r.refs[codexID], weak.Make(value))
}

// CleanupDeadReferences drops entries whose referent has been collected.
// Returns the count removed.
func (r *WeakRegistry[T]) CleanupDeadReferences() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, refs := range r.refs {
		kept := refs[:0]
		for _, w := range refs {
			if w.Value() != nil {
				kept = append(kept, w)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(r.refs, id)
		} else {
			r.refs[id] = kept
		}
	}
	return removed
}

// ActiveReferences returns the still-live values registered under codexID.
func (r *WeakRegistry[T]) ActiveReferences(codexID types.CodexID) []*T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*T
	for _, w := range r.refs[codexID] {
		if v := w.Value(); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// suspiciousRefCount is the per-codex reference count above which
// DetectPotentialLeaks flags a codex as suspicious.
const suspiciousRefCount = 10

// LeakSeverity classifies how concerning a MemoryLeakReport is.
type LeakSeverity int

const (
	LeakSeverityLow LeakSeverity = iota
	LeakSeverityMedium
	LeakSeverityHigh
	LeakSeverityCritical
)

func (s LeakSeverity) String() string {
	switch s {
	case LeakSeverityLow:
		return "low"
	case LeakSeverityMedium:
		return "medium"
	case LeakSeverityHigh:
		return "high"
	case LeakSeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SuspiciousCodex pairs a codex with an unusually high live-reference count.
type SuspiciousCodex struct {
	CodexID types.CodexID
	Count   int
}

// LeakReport summarizes potential reference buildup detected by a registry
// sweep.
type LeakReport struct {
	DeadReferencesCleaned   int
	TotalWeakReferences     int
	ActiveCodices           int
	SuspiciousReferenceCounts []SuspiciousCodex
	Recommendations         []string
}

// HasPotentialLeaks reports whether the report found anything worth acting
// on.
func (r LeakReport) HasPotentialLeaks() bool {
	return len(r.SuspiciousReferenceCounts) > 0 || r.TotalWeakReferences > 1000 || r.ActiveCodices > 100
}

// Severity classifies the report, mirroring leak_severity in the original
// source.
func (r LeakReport) Severity() LeakSeverity {
	switch {
	case len(r.SuspiciousReferenceCounts) > 10:
		return LeakSeverityCritical
	case len(r.SuspiciousReferenceCounts) > 5 || r.TotalWeakReferences > 2000:
		return LeakSeverityHigh
	case len(r.SuspiciousReferenceCounts) > 0 || r.TotalWeakReferences > 1000:
		return LeakSeverityMedium
	default:
		return LeakSeverityLow
	}
}

// DetectPotentialLeaks sweeps the registry, cleans dead references, and
// reports on the remaining reference shape.
func (r *WeakRegistry[T]) DetectPotentialLeaks() LeakReport {
	cleaned := r.CleanupDeadReferences()

	r.mu.Lock()
	total := 0
	active := len(r.refs)
	var suspicious []SuspiciousCodex
	for id, refs := range r.refs {
		total += len(refs)
		if len(refs) > suspiciousRefCount {
			suspicious = append(suspicious, SuspiciousCodex{CodexID: id, Count: len(refs)})
		}
	}
	r.mu.Unlock()

	sort.Slice(suspicious, func(i, j int) bool { return suspicious[i].CodexID.String() < suspicious[j].CodexID.String() })

	return LeakReport{
		DeadReferencesCleaned:     cleaned,
		TotalWeakReferences:       total,
		ActiveCodices:             active,
		SuspiciousReferenceCounts: suspicious,
		Recommendations:           recommendations(total, active, suspicious),
	}
}

func recommendations(total, active int, suspicious []SuspiciousCodex) []string {
	var recs []string
	if total > 1000 {
		recs = append(recs, "high number of weak references detected; consider more aggressive cleanup")
	}
	if active > 100 {
		recs = append(recs, "many active codex instances; consider implementing reference limits")
	}
	if active > 0 {
		avg := float64(total) / float64(active)
		if avg > 5.0 {
			recs = append(recs, "high average references per codex; interconnectedness may cause performance issues")
		}
	}
	_ = suspicious
	if len(recs) == 0 {
		recs = append(recs, "reference management looks healthy")
	}
	return recs
}

// ComprehensiveCleanup sweeps dead references and, when aggressive, also
// drops codices with only a single remaining reference (likely
// near-orphaned). Returns the total removed.
func (r *WeakRegistry[T]) ComprehensiveCleanup(aggressive bool) int {
	removed := r.CleanupDeadReferences()
	if !aggressive {
		return removed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, refs := range r.refs {
		if len(refs) <= 1 {
			delete(r.refs, id)
			removed++
		}
	}
	return removed
}

// TrimVectorClock applies types.VectorClock.Trim using cfg's entry limit.
func TrimVectorClock(vc types.VectorClock, cfg Config) int {
	return vc.Trim(cfg.MaxVectorClockEntries)
}
