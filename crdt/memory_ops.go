package crdt

import (
	"time"

	"go.uber.org/zap"

	"github.com/vespera-atelier/vespera-bindery/memory"
	"github.com/vespera-atelier/vespera-bindery/metadata"
	"github.com/vespera-atelier/vespera-bindery/reference"
)

// GCStats reports what a garbage-collection pass reclaimed.
type GCStats struct {
	OperationsRemoved         int
	MetadataTombstonesRemoved int
	ReferenceTagsRemoved      int
	TextFieldsCleaned         int
	TreeTombstonesRemoved     int
	MemoryFreedBytes          int
}

// defaultGCMaxOperations and defaultGCMaxTreeTombstones mirror the
// original's gc_all convenience defaults.
const (
	defaultGCMaxOperations      = 500
	defaultGCMaxTreeTombstones  = 100
)

// estimated per-element byte costs, used only for the rough MemoryStats /
// GCStats accounting the original source also treats as an estimate.
const (
	bytesPerOperation    = 200
	bytesPerMetadataItem = 100
	bytesPerReference    = 150
	bytesPerTextField    = 1000
	bytesPerVectorClock  = 50
)

// GCOperationLog trims the oplog to at most maxOperations entries by
// dropping the oldest (they are already reflected in layer state).
// Returns the count removed.
func (c *Codex) GCOperationLog(maxOperations int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gcOperationLogLocked(maxOperations)
}

func (c *Codex) gcOperationLogLocked(maxOperations int) int {
	if len(c.oplog) <= maxOperations {
		return 0
	}
	toRemove := len(c.oplog) - maxOperations
	for _, op := range c.oplog[:toRemove] {
		delete(c.seenOps, op.ID)
	}
	c.oplog = append([]Operation(nil), c.oplog[toRemove:]...)
	return toRemove
}

func (c *Codex) gcOperationLogIfNeededLocked() {
	maxOperations := c.memConfig.AutoGCThreshold
	if len(c.oplog) <= maxOperations {
		return
	}
	removed := c.gcOperationLogLocked(maxOperations / 2)
	c.logger.Debug("operation log compacted",
		zap.Int("removed", removed),
		zap.Int("remaining", len(c.oplog)),
	)
	if c.memConfig.AggressiveCleanup {
		c.gcVectorClockLocked()
	}
}

// GCVectorClock trims the vector clock to memConfig.MaxVectorClockEntries.
// Returns the count dropped.
func (c *Codex) GCVectorClock() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gcVectorClockLocked()
}

func (c *Codex) gcVectorClockLocked() int {
	return memory.TrimVectorClock(c.vectorClock, c.memConfig)
}

// ConfigureMemory replaces the memory configuration, recreating the
// operation pool if its size changed and applying immediate cleanup when
// the new config requests aggressive_cleanup.
func (c *Codex) ConfigureMemory(cfg memory.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.MaxOperationPoolSize != c.memConfig.MaxOperationPoolSize {
		c.opPool = memory.NewOperationPool(cfg.MaxOperationPoolSize)
	}
	c.memConfig = cfg

	if cfg.AggressiveCleanup {
		c.gcOperationLogLocked(cfg.AutoGCThreshold / 2)
		c.gcVectorClockLocked()
	}
}

// MemoryConfig returns the current memory configuration.
func (c *Codex) MemoryConfig() memory.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memConfig
}

// GCAll runs every layer's GC with the default operation/tombstone limits.
func (c *Codex) GCAll(operationCutoff time.Time) GCStats {
	return c.GCAllWithLimits(operationCutoff, defaultGCMaxOperations, defaultGCMaxTreeTombstones)
}

// GCAllWithLimits runs every layer's GC with caller-supplied limits.
func (c *Codex) GCAllWithLimits(operationCutoff time.Time, maxOperations, maxTreeTombstones int) GCStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	operationsRemoved := c.gcOperationLogLocked(maxOperations)
	metadataTombstonesRemoved := c.metadataLayer.GCTombstones(operationCutoff)
	referenceTagsRemoved := c.referenceLayer.GCRemovedTags(operationCutoff)
	textFieldsCleaned := c.textLayer.GCFields(operationCutoff)
	treeTombstonesRemoved := c.treeLayer.GCTombstones(maxTreeTombstones)

	stats := GCStats{
		OperationsRemoved:         operationsRemoved,
		MetadataTombstonesRemoved: metadataTombstonesRemoved,
		ReferenceTagsRemoved:      referenceTagsRemoved,
		TextFieldsCleaned:         textFieldsCleaned,
		TreeTombstonesRemoved:     treeTombstonesRemoved,
		MemoryFreedBytes: operationsRemoved*bytesPerOperation +
			metadataTombstonesRemoved*bytesPerMetadataItem +
			referenceTagsRemoved*bytesPerReference +
			textFieldsCleaned*bytesPerTextField,
	}

	c.logger.Info("gc completed",
		zap.String("codex_id", c.codexID.String()),
		zap.Int("operations_removed", stats.OperationsRemoved),
		zap.Int("metadata_tombstones_removed", stats.MetadataTombstonesRemoved),
		zap.Int("reference_tags_removed", stats.ReferenceTagsRemoved),
		zap.Int("text_fields_cleaned", stats.TextFieldsCleaned),
	)
	return stats
}

// SchedulePeriodicGC runs GCAll when the oplog has reached
// forceGCEveryNOperations entries, or any retained operation predates
// maxOperationAge. Returns whether a GC pass ran.
func (c *Codex) SchedulePeriodicGC(maxOperationAge time.Duration, forceGCEveryNOperations int) bool {
	c.mu.Lock()
	cutoff := time.Now().UTC().Add(-maxOperationAge)
	shouldGC := len(c.oplog) >= forceGCEveryNOperations
	if !shouldGC {
		for _, op := range c.oplog {
			if op.Timestamp.Before(cutoff) {
				shouldGC = true
				break
			}
		}
	}
	c.mu.Unlock()

	if !shouldGC {
		return false
	}
	stats := c.GCAll(cutoff)
	c.logger.Info("periodic gc completed",
		zap.String("codex_id", c.codexID.String()),
		zap.Int("operations_removed", stats.OperationsRemoved),
	)
	return true
}

// MemoryStats summarizes current memory usage across every layer.
type MemoryStats struct {
	OperationLogSize int
	MetadataStats    metadata.Stats
	ReferenceStats   reference.Stats
	TextFieldCount   int
	TotalSizeBytes   int
}

// MemoryStats returns a snapshot of memory usage.
func (c *Codex) MemoryStats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memoryStatsLocked()
}

func (c *Codex) memoryStatsLocked() MemoryStats {
	opLogSize := len(c.oplog)
	metadataStats := c.metadataLayer.Stats()
	referenceStats := c.referenceLayer.Stats()
	textFieldCount := c.textLayer.FieldCount()

	total := opLogSize*bytesPerOperation +
		metadataStats.LiveEntries*bytesPerMetadataItem +
		referenceStats.LiveReferences*bytesPerReference +
		textFieldCount*bytesPerTextField

	return MemoryStats{
		OperationLogSize: opLogSize,
		MetadataStats:    metadataStats,
		ReferenceStats:   referenceStats,
		TextFieldCount:   textFieldCount,
		TotalSizeBytes:   total,
	}
}

// DetailedMemoryStats adds pool/vector-clock accounting to MemoryStats.
type DetailedMemoryStats struct {
	Base                    MemoryStats
	OperationPoolSize       int
	VectorClockSize         int
	EstimatedOperationLogMB float64
	EstimatedVectorClockMB  float64
	MemoryConfig            memory.Config
}

// DetailedMemoryStats returns the extended memory accounting.
func (c *Codex) DetailedMemoryStats() DetailedMemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detailedMemoryStatsLocked()
}

func (c *Codex) detailedMemoryStatsLocked() DetailedMemoryStats {
	base := c.memoryStatsLocked()
	vcSize := len(c.vectorClock)
	const mb = 1024.0 * 1024.0
	return DetailedMemoryStats{
		Base:                    base,
		OperationPoolSize:       c.opPool.Len(),
		VectorClockSize:         vcSize,
		EstimatedOperationLogMB: float64(len(c.oplog)*bytesPerOperation) / mb,
		EstimatedVectorClockMB:  float64(vcSize*bytesPerVectorClock) / mb,
		MemoryConfig:            c.memConfig,
	}
}

// MemoryOptimizationResult reports the before/after of an OptimizeMemory
// pass.
type MemoryOptimizationResult struct {
	InitialStats              DetailedMemoryStats
	FinalStats                DetailedMemoryStats
	OperationsRemoved         int
	VectorClockEntriesRemoved int
	MetadataTombstonesRemoved int
	ReferenceTagsRemoved      int
	TextFieldsCleaned         int
}

// MemorySavedMB estimates the memory reclaimed by the pass.
func (r MemoryOptimizationResult) MemorySavedMB() float64 {
	estimate := func(s DetailedMemoryStats) float64 {
		return s.EstimatedOperationLogMB + s.EstimatedVectorClockMB +
			float64(s.Base.MetadataStats.LiveEntries)*0.0001 +
			float64(s.Base.ReferenceStats.LiveReferences)*0.00015
	}
	return estimate(r.InitialStats) - estimate(r.FinalStats)
}

// OptimizationEfficiency returns MB saved per item removed, as a
// percentage, or 0 if nothing was removed.
func (r MemoryOptimizationResult) OptimizationEfficiency() float64 {
	totalRemoved := r.OperationsRemoved + r.VectorClockEntriesRemoved +
		r.MetadataTombstonesRemoved + r.ReferenceTagsRemoved + r.TextFieldsCleaned
	if totalRemoved == 0 {
		return 0
	}
	return (r.MemorySavedMB() / float64(totalRemoved)) * 100.0
}

// OptimizeMemory performs an aggressive GC pass: quarter-size operation
// log trim, vector clock trim, and a 24-hour tombstone sweep across the
// metadata, reference, and text layers. Tree tombstones are not trimmed.
func (c *Codex) OptimizeMemory() MemoryOptimizationResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	initial := c.detailedMemoryStatsLocked()

	operationsRemoved := c.gcOperationLogLocked(c.memConfig.AutoGCThreshold / 4)
	vectorClockEntriesRemoved := c.gcVectorClockLocked()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	metadataTombstonesRemoved := c.metadataLayer.GCTombstones(cutoff)
	referenceTagsRemoved := c.referenceLayer.GCRemovedTags(cutoff)
	textFieldsCleaned := c.textLayer.GCFields(cutoff)

	final := c.detailedMemoryStatsLocked()

	return MemoryOptimizationResult{
		InitialStats:              initial,
		FinalStats:                final,
		OperationsRemoved:         operationsRemoved,
		VectorClockEntriesRemoved: vectorClockEntriesRemoved,
		MetadataTombstonesRemoved: metadataTombstonesRemoved,
		ReferenceTagsRemoved:      referenceTagsRemoved,
		TextFieldsCleaned:         textFieldsCleaned,
	}
}

// OptimizationPriority ranks how urgently MemoryOptimizationRecommendations
// suggests running OptimizeMemory.
type OptimizationPriority int

const (
	PriorityLow OptimizationPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p OptimizationPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func maxPriority(a, b OptimizationPriority) OptimizationPriority {
	if a > b {
		return a
	}
	return b
}

// MemoryOptimizationReport bundles a priority recommendation with the
// current stats that drove it.
type MemoryOptimizationReport struct {
	Priority                OptimizationPriority
	Recommendations         []string
	CurrentStats            MemoryStats
	EstimatedMemoryUsageMB  float64
}

// Thresholds mirrored from the original implementation's
// memory_optimization_recommendations.
const (
	opLogHighWatermark     = 2000
	opLogMediumWatermark   = 1000
	metadataMediumWatermark = 500
	referenceMediumWatermark = 1000
	textFieldLowWatermark  = 100
)

// MemoryOptimizationRecommendations inspects current memory usage and
// suggests whether/how urgently to run OptimizeMemory.
func (c *Codex) MemoryOptimizationRecommendations() MemoryOptimizationReport {
	c.mu.Lock()
	stats := c.memoryStatsLocked()
	c.mu.Unlock()

	var recs []string
	priority := PriorityLow

	switch {
	case stats.OperationLogSize > opLogHighWatermark:
		recs = append(recs, "operation log is very large (>2000); consider more aggressive GC")
		priority = PriorityHigh
	case stats.OperationLogSize > opLogMediumWatermark:
		recs = append(recs, "operation log is large (>1000); consider periodic GC")
		priority = maxPriority(priority, PriorityMedium)
	}

	if stats.MetadataStats.LiveEntries > metadataMediumWatermark {
		recs = append(recs, "metadata layer has many entries; consider tombstone cleanup")
		priority = maxPriority(priority, PriorityMedium)
	}

	if stats.ReferenceStats.LiveReferences > referenceMediumWatermark {
		recs = append(recs, "reference layer has many entries; consider cleanup")
		priority = maxPriority(priority, PriorityMedium)
	}

	if stats.TextFieldCount > textFieldLowWatermark {
		recs = append(recs, "many text fields active; consider field cleanup")
		priority = maxPriority(priority, PriorityLow)
	}

	return MemoryOptimizationReport{
		Priority:               priority,
		Recommendations:        recs,
		CurrentStats:           stats,
		EstimatedMemoryUsageMB: float64(stats.TotalSizeBytes) / (1024.0 * 1024.0),
	}
}
