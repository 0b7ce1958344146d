// Package crdt is the orchestrator that ties the text, tree, metadata, and
// reference layers together behind a single operation log and vector
// clock, grounded on VesperaCRDT in the original source's crdt/mod.rs.
// Concurrency follows the teacher repo's style (an explicit sync.Mutex
// guarding all mutable state) rather than the original's single-writer
// Arc<RwLock<...>> split, since Go CRDT callers are expected to serialize
// writes through one Codex per goroutine context.
package crdt

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vespera-atelier/vespera-bindery/crdterr"
	"github.com/vespera-atelier/vespera-bindery/memory"
	"github.com/vespera-atelier/vespera-bindery/metadata"
	"github.com/vespera-atelier/vespera-bindery/reference"
	"github.com/vespera-atelier/vespera-bindery/text"
	"github.com/vespera-atelier/vespera-bindery/tree"
	"github.com/vespera-atelier/vespera-bindery/types"
)

// Codex is the hybrid CRDT orchestrator for a single document: the Go
// equivalent of VesperaCRDT. All layer mutation goes through
// ApplyOperation (directly, or indirectly via the convenience methods
// below), keeping the operation log, vector clock, and layer state in
// lockstep.
type Codex struct {
	mu sync.Mutex

	codexID types.CodexID

	textLayer      *text.Layer
	treeLayer      *tree.Layer
	metadataLayer  *metadata.Layer
	referenceLayer *reference.Layer

	oplog       []Operation
	seenOps     map[types.OpID]struct{}
	vectorClock types.VectorClock

	memConfig memory.Config
	opPool    *memory.OperationPool

	currentContext OperationContext

	createdAt time.Time
	createdBy types.UserID
	updatedAt time.Time
	updatedBy types.UserID

	logger *zap.Logger
}

// New creates an empty Codex owned by createdBy. A nil logger defaults to
// zap.NewNop().
func New(codexID types.CodexID, createdBy types.UserID, logger *zap.Logger) *Codex {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now().UTC()
	cfg := memory.DefaultConfig()

	vc := types.NewVectorClock()
	vc[createdBy] = 0

	return &Codex{
		codexID:        codexID,
		textLayer:      text.New(),
		treeLayer:      tree.New(),
		metadataLayer:  metadata.New(),
		referenceLayer: reference.New(),
		seenOps:        make(map[types.OpID]struct{}),
		vectorClock:    vc,
		memConfig:      cfg,
		opPool:         memory.NewOperationPool(cfg.MaxOperationPoolSize),
		currentContext: NewOperationContext(createdBy),
		createdAt:      now,
		createdBy:      createdBy,
		updatedAt:      now,
		updatedBy:      createdBy,
		logger:         logger,
	}
}

// NewWithMemoryConfig creates a Codex with a non-default memory.Config.
func NewWithMemoryConfig(codexID types.CodexID, createdBy types.UserID, cfg memory.Config, logger *zap.Logger) *Codex {
	c := New(codexID, createdBy, logger)
	c.memConfig = cfg
	c.opPool = memory.NewOperationPool(cfg.MaxOperationPoolSize)
	return c
}

// NewWithTemplate creates a Codex and initializes its metadata layer from
// template's field definitions: a field with a default value is seeded
// with it; a field without one is seeded with an empty value appropriate
// to its FieldType. Initialization is performed under the system
// operation context.
func NewWithTemplate(codexID types.CodexID, title string, tmpl types.Template, logger *zap.Logger) (*Codex, error) {
	const systemUser types.UserID = "system"
	c := New(codexID, systemUser, logger)
	c.currentContext = SystemOperationContext()

	now := time.Now().UTC()
	if err := c.SetMetadata("title", types.NewTextValue(title, now, systemUser)); err != nil {
		return nil, err
	}
	if err := c.SetMetadata("template_id", types.NewTextValue(tmpl.ID, now, systemUser)); err != nil {
		return nil, err
	}

	for _, field := range tmpl.Fields {
		var value types.TemplateValue
		switch {
		case field.DefaultValue != nil && field.DefaultValue.Text != nil:
			value = types.NewTextValue(*field.DefaultValue.Text, now, systemUser)
		case field.DefaultValue != nil && field.DefaultValue.Number != nil:
			value = types.NewStructuredValue(*field.DefaultValue.Number, now, systemUser)
		case field.DefaultValue != nil && field.DefaultValue.Boolean != nil:
			value = types.NewStructuredValue(*field.DefaultValue.Boolean, now, systemUser)
		case field.DefaultValue != nil && field.DefaultValue.DateTime != nil:
			value = types.NewStructuredValue(field.DefaultValue.DateTime.Format(time.RFC3339), now, systemUser)
		case field.Type == types.FieldTypeRichText:
			value = types.NewRichTextValue(fmt.Sprintf("%s_%s", codexID, field.Name), now, systemUser)
		case field.Type == types.FieldTypeText:
			value = types.NewTextValue("", now, systemUser)
		default:
			value = types.NewStructuredValue(nil, now, systemUser)
		}
		if err := c.SetMetadata(field.Name, value); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// CodexID returns the Codex's immutable identifier.
func (c *Codex) CodexID() types.CodexID { return c.codexID }

// SetOperationContext sets the ambient context subsequent convenience
// methods (SetMetadata, InsertText, ...) use to attribute operations.
func (c *Codex) SetOperationContext(ctx OperationContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentContext = ctx
}

// OperationContext returns the current ambient context.
func (c *Codex) OperationContext() OperationContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentContext
}

// CreateOperation stamps opType with a fresh OpID, the current time, and
// the vector clock after incrementing userID's entry. The returned
// Operation has not yet been applied.
func (c *Codex) CreateOperation(opType OperationType, userID types.UserID) Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createOperationLocked(opType, userID)
}

func (c *Codex) createOperationLocked(opType OperationType, userID types.UserID) Operation {
	c.vectorClock.Increment(userID)
	return Operation{
		ID:          types.NewOpID(),
		Type:        opType,
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		VectorClock: c.vectorClock.Clone(),
		Layer:       opType.layer(),
	}
}

// ApplyOperation routes op to its layer, records it in the operation log,
// and advances the vector clock. Applying an already-seen OpID is a no-op,
// which makes repeated delivery (e.g. during merge) idempotent.
func (c *Codex) ApplyOperation(op Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyOperationLocked(op)
}

func (c *Codex) applyOperationLocked(op Operation) error {
	if _, seen := c.seenOps[op.ID]; seen {
		return nil
	}

	c.vectorClock.ObserveRemote(op.UserID, op.VectorClock[op.UserID])

	start := time.Now()
	err := c.routeLocked(op)
	duration := time.Since(start)

	if err != nil {
		c.logger.Warn("crdt operation failed",
			zap.String("codex_id", c.codexID.String()),
			zap.String("operation_id", op.ID.String()),
			zap.String("operation_type", string(op.Type.Kind)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("crdt operation applied",
		zap.String("codex_id", c.codexID.String()),
		zap.String("operation_id", op.ID.String()),
		zap.String("operation_type", string(op.Type.Kind)),
		zap.Duration("duration", duration),
	)

	c.oplog = append(c.oplog, op)
	c.seenOps[op.ID] = struct{}{}
	c.gcOperationLogIfNeededLocked()

	c.updatedAt = op.Timestamp
	c.updatedBy = op.UserID
	return nil
}

func (c *Codex) routeLocked(op Operation) error {
	t := op.Type
	switch t.Kind {
	case OpTextInsert:
		return c.textLayer.Insert(t.FieldID, t.Position, t.Content, op.ID, op.UserID)
	case OpTextDelete:
		return c.textLayer.Delete(t.FieldID, t.Position, t.Length)
	case OpTextFormat:
		return c.textLayer.Format(t.FieldID, t.Position, t.Length, t.Format, op.Timestamp)
	case OpTreeInsert:
		return c.treeLayer.Insert(t.ParentID, t.Position, t.ChildID)
	case OpTreeDelete:
		return c.treeLayer.Remove(t.ParentID, t.ChildID)
	case OpTreeMove:
		return c.treeLayer.MoveNode(t.ChildID, t.NewParentID, t.Position)
	case OpMetadataSet:
		c.metadataLayer.Set(t.Key, t.Value, op.Timestamp, op.UserID, op.ID)
		return nil
	case OpMetadataDelete:
		c.metadataLayer.Delete(t.Key, op.Timestamp, op.UserID, op.ID)
		return nil
	case OpReferenceAdd:
		c.referenceLayer.Add(t.Reference, op.ID, op.Timestamp)
		return nil
	case OpReferenceRemove:
		c.referenceLayer.Remove(t.Reference)
		return nil
	default:
		return crdterr.NotImplemented("operation type not implemented: %s", t.Kind)
	}
}

// Merge applies every operation from other not already present locally,
// and returns the IDs that were newly applied. Both Codices must share a
// codex_id. other's oplog is copied under its own lock before c's lock is
// taken, so Merge never holds two Codex locks at once.
func (c *Codex) Merge(other *Codex) ([]types.OpID, error) {
	other.mu.Lock()
	if c.codexID != other.codexID {
		other.mu.Unlock()
		return nil, crdterr.CrdtError("cannot merge codices with different ids: %s vs %s", c.codexID, other.codexID)
	}
	oplogCopy := make([]Operation, len(other.oplog))
	copy(oplogCopy, other.oplog)
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	applied := make([]types.OpID, 0, len(oplogCopy))
	for _, op := range oplogCopy {
		if _, seen := c.seenOps[op.ID]; seen {
			continue
		}
		if err := c.applyOperationLocked(op); err != nil {
			return applied, err
		}
		applied = append(applied, op.ID)
	}

	c.logger.Info("crdt merge completed",
		zap.String("codex_id", c.codexID.String()),
		zap.Int("applied_operations", len(applied)),
		zap.Duration("duration", time.Since(start)),
	)
	return applied, nil
}

// --- convenience mutators, mirroring the original's ergonomic API ---

// SetMetadata sets key to value under the current operation context.
func (c *Codex) SetMetadata(key string, value types.TemplateValue) error {
	userID := c.OperationContext().UserID
	op := c.CreateOperation(NewMetadataSet(key, value), userID)
	return c.ApplyOperation(op)
}

// GetMetadata returns key's currently-winning value.
func (c *Codex) GetMetadata(key string) (types.TemplateValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadataLayer.Get(key)
}

// SetTitle is a convenience wrapper over SetMetadata("title", ...).
func (c *Codex) SetTitle(title string) error {
	return c.SetMetadata("title", types.NewTextValue(title, time.Now().UTC(), c.OperationContext().UserID))
}

// GetTitle returns the Codex's title, if set.
func (c *Codex) GetTitle() (string, bool) {
	v, ok := c.GetMetadata("title")
	if !ok || v.Kind != types.TemplateValueText {
		return "", false
	}
	return v.Text, true
}

// InsertText inserts content at position in field_id under the current
// operation context.
func (c *Codex) InsertText(fieldID string, position int, content string) error {
	userID := c.OperationContext().UserID
	op := c.CreateOperation(NewTextInsert(fieldID, position, content), userID)
	return c.ApplyOperation(op)
}

// DeleteText deletes length characters of field_id starting at position.
func (c *Codex) DeleteText(fieldID string, position, length int) error {
	userID := c.OperationContext().UserID
	op := c.CreateOperation(NewTextDelete(fieldID, position, length), userID)
	return c.ApplyOperation(op)
}

// AddReference adds ref to the reference layer.
func (c *Codex) AddReference(ref types.CodexReference) error {
	userID := c.OperationContext().UserID
	op := c.CreateOperation(NewReferenceAdd(ref), userID)
	return c.ApplyOperation(op)
}

// References returns every reference currently in the set.
func (c *Codex) References() []types.CodexReference {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenceLayer.Iter()
}

// OperationCount returns the number of operations currently retained in
// the log.
func (c *Codex) OperationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.oplog)
}

// VectorClock returns a copy of the current vector clock.
func (c *Codex) VectorClock() types.VectorClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vectorClock.Clone()
}

// Cleanup releases every layer's state and the operation log, for when the
// Codex is no longer needed.
func (c *Codex) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, op := range c.oplog {
		id := op.ID
		c.opPool.Release(&id)
	}
	c.oplog = nil
	c.seenOps = make(map[types.OpID]struct{})

	c.metadataLayer.Cleanup()
	c.referenceLayer.Cleanup()
	c.treeLayer.Cleanup()
	c.textLayer.Cleanup()

	c.vectorClock = types.NewVectorClock()
	c.opPool.Clear()

	c.logger.Debug("codex cleanup completed", zap.String("codex_id", c.codexID.String()))
}
