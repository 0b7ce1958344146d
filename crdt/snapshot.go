package crdt

import (
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vespera-atelier/vespera-bindery/types"
)

// Snapshot is a self-contained, serializable view of a Codex's current
// state. It is sufficient for export, persistence, and debugging, but not
// for resuming a merge — the operation log is authoritative for that
// (spec §4.6).
type Snapshot struct {
	CodexID        types.CodexID                  `json:"codex_id" msgpack:"codex_id"`
	VectorClock    types.VectorClock              `json:"vector_clock" msgpack:"vector_clock"`
	Metadata       map[string]types.TemplateValue `json:"metadata" msgpack:"metadata"`
	References     []types.CodexReference         `json:"references" msgpack:"references"`
	TextContent    map[string]string              `json:"text_content" msgpack:"text_content"`
	TreeStructure  map[types.CodexID][]types.CodexID `json:"tree_structure" msgpack:"tree_structure"`
	OperationCount int                            `json:"operation_count" msgpack:"operation_count"`
	UpdatedAt      time.Time                      `json:"updated_at" msgpack:"updated_at"`
}

// Snapshot materializes the Codex's current state across every layer.
func (c *Codex) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CodexID:        c.codexID,
		VectorClock:    c.vectorClock.Clone(),
		Metadata:       c.metadataLayer.Snapshot(),
		References:     c.referenceLayer.Iter(),
		TextContent:    c.textLayer.Snapshot(),
		TreeStructure:  c.treeLayer.Snapshot(),
		OperationCount: len(c.oplog),
		UpdatedAt:      c.updatedAt,
	}
}

// ToJSON renders the snapshot as self-describing JSON, for export and
// debugging.
func (s Snapshot) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SnapshotFromJSON parses a snapshot previously produced by ToJSON.
func SnapshotFromJSON(data []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}

// ToMsgpack renders the snapshot as compact MessagePack, for wire transfer
// between replicas or storage.
func (s Snapshot) ToMsgpack() ([]byte, error) {
	return msgpack.Marshal(s)
}

// SnapshotFromMsgpack parses a snapshot previously produced by ToMsgpack.
func SnapshotFromMsgpack(data []byte) (Snapshot, error) {
	var s Snapshot
	err := msgpack.Unmarshal(data, &s)
	return s, err
}

// ToJSON renders a single operation as JSON, for wire transport of live
// edits between replicas.
func (op Operation) ToJSON() ([]byte, error) {
	return json.Marshal(op)
}

// OperationFromJSON parses an Operation previously produced by ToJSON.
func OperationFromJSON(data []byte) (Operation, error) {
	var op Operation
	err := json.Unmarshal(data, &op)
	return op, err
}

// ToMsgpack renders a single operation as compact MessagePack.
func (op Operation) ToMsgpack() ([]byte, error) {
	return msgpack.Marshal(op)
}

// OperationFromMsgpack parses an Operation previously produced by
// ToMsgpack.
func OperationFromMsgpack(data []byte) (Operation, error) {
	var op Operation
	err := msgpack.Unmarshal(data, &op)
	return op, err
}
