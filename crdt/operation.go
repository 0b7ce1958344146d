package crdt

import (
	"time"

	"github.com/vespera-atelier/vespera-bindery/types"
)

// CRDTLayer identifies which layer an Operation affects.
type CRDTLayer string

const (
	LayerText      CRDTLayer = "text"
	LayerTree      CRDTLayer = "tree"
	LayerMetadata  CRDTLayer = "metadata"
	LayerReference CRDTLayer = "reference"
)

// OperationKind discriminates the OperationType tagged variant, one per
// mutating call a layer exposes.
type OperationKind string

const (
	OpTextInsert      OperationKind = "text_insert"
	OpTextDelete      OperationKind = "text_delete"
	OpTextFormat      OperationKind = "text_format"
	OpTreeInsert      OperationKind = "tree_insert"
	OpTreeDelete      OperationKind = "tree_delete"
	OpTreeMove        OperationKind = "tree_move"
	OpMetadataSet     OperationKind = "metadata_set"
	OpMetadataDelete  OperationKind = "metadata_delete"
	OpReferenceAdd    OperationKind = "reference_add"
	OpReferenceRemove OperationKind = "reference_remove"
)

// OperationType is a tagged union over every mutation the orchestrator can
// route to a layer. Only the fields relevant to Kind are populated.
type OperationType struct {
	Kind OperationKind `json:"type" msgpack:"type"`

	FieldID  string          `json:"field_id,omitempty" msgpack:"field_id,omitempty"`
	Position int             `json:"position,omitempty" msgpack:"position,omitempty"`
	Content  string          `json:"content,omitempty" msgpack:"content,omitempty"`
	Length   int             `json:"length,omitempty" msgpack:"length,omitempty"`
	Format   types.TextFormat `json:"format,omitempty" msgpack:"format,omitempty"`

	ParentID    *types.CodexID `json:"parent_id,omitempty" msgpack:"parent_id,omitempty"`
	ChildID     types.CodexID  `json:"child_id,omitempty" msgpack:"child_id,omitempty"`
	OldParentID *types.CodexID `json:"old_parent_id,omitempty" msgpack:"old_parent_id,omitempty"`
	NewParentID *types.CodexID `json:"new_parent_id,omitempty" msgpack:"new_parent_id,omitempty"`

	Key   string              `json:"key,omitempty" msgpack:"key,omitempty"`
	Value types.TemplateValue `json:"value,omitempty" msgpack:"value,omitempty"`

	Reference types.CodexReference `json:"reference,omitempty" msgpack:"reference,omitempty"`
}

// NewTextInsert builds a TextInsert OperationType.
func NewTextInsert(fieldID string, position int, content string) OperationType {
	return OperationType{Kind: OpTextInsert, FieldID: fieldID, Position: position, Content: content}
}

// NewTextDelete builds a TextDelete OperationType.
func NewTextDelete(fieldID string, position, length int) OperationType {
	return OperationType{Kind: OpTextDelete, FieldID: fieldID, Position: position, Length: length}
}

// NewTextFormat builds a TextFormat OperationType.
func NewTextFormat(fieldID string, position, length int, format types.TextFormat) OperationType {
	return OperationType{Kind: OpTextFormat, FieldID: fieldID, Position: position, Length: length, Format: format}
}

// NewTreeInsert builds a TreeInsert OperationType.
func NewTreeInsert(parentID *types.CodexID, position int, childID types.CodexID) OperationType {
	return OperationType{Kind: OpTreeInsert, ParentID: parentID, Position: position, ChildID: childID}
}

// NewTreeDelete builds a TreeDelete OperationType.
func NewTreeDelete(parentID *types.CodexID, childID types.CodexID) OperationType {
	return OperationType{Kind: OpTreeDelete, ParentID: parentID, ChildID: childID}
}

// NewTreeMove builds a TreeMove OperationType.
func NewTreeMove(childID types.CodexID, oldParentID, newParentID *types.CodexID, position int) OperationType {
	return OperationType{Kind: OpTreeMove, ChildID: childID, OldParentID: oldParentID, NewParentID: newParentID, Position: position}
}

// NewMetadataSet builds a MetadataSet OperationType.
func NewMetadataSet(key string, value types.TemplateValue) OperationType {
	return OperationType{Kind: OpMetadataSet, Key: key, Value: value}
}

// NewMetadataDelete builds a MetadataDelete OperationType.
func NewMetadataDelete(key string) OperationType {
	return OperationType{Kind: OpMetadataDelete, Key: key}
}

// NewReferenceAdd builds a ReferenceAdd OperationType.
func NewReferenceAdd(ref types.CodexReference) OperationType {
	return OperationType{Kind: OpReferenceAdd, Reference: ref}
}

// NewReferenceRemove builds a ReferenceRemove OperationType.
func NewReferenceRemove(ref types.CodexReference) OperationType {
	return OperationType{Kind: OpReferenceRemove, Reference: ref}
}

func (t OperationType) layer() CRDTLayer {
	switch t.Kind {
	case OpTextInsert, OpTextDelete, OpTextFormat:
		return LayerText
	case OpTreeInsert, OpTreeDelete, OpTreeMove:
		return LayerTree
	case OpMetadataSet, OpMetadataDelete:
		return LayerMetadata
	case OpReferenceAdd, OpReferenceRemove:
		return LayerReference
	default:
		return LayerMetadata
	}
}

// Operation is a unified, loggable record of one mutation to a Codex, as
// recorded in the operation log for replay and merge.
type Operation struct {
	ID          types.OpID      `json:"id" msgpack:"id"`
	Type        OperationType   `json:"operation" msgpack:"operation"`
	UserID      types.UserID    `json:"user_id" msgpack:"user_id"`
	Timestamp   time.Time       `json:"timestamp" msgpack:"timestamp"`
	VectorClock types.VectorClock `json:"vector_clock" msgpack:"vector_clock"`
	Parents     []types.OpID    `json:"parents" msgpack:"parents"`
	Layer       CRDTLayer       `json:"layer" msgpack:"layer"`
}
