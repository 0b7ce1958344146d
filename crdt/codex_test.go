package crdt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespera-atelier/vespera-bindery/types"
)

func TestSetMetadataAndGet(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	require.NoError(t, c.SetMetadata("title", types.NewTextValue("Doc", time.Now(), "u1")))

	v, ok := c.GetMetadata("title")
	require.True(t, ok)
	assert.Equal(t, "Doc", v.Text)
	assert.Equal(t, 1, c.OperationCount())
}

func TestInsertTextRoundTrip(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	require.NoError(t, c.InsertText("content", 0, "Hello"))
	require.NoError(t, c.InsertText("content", 5, " world"))

	snap := c.Snapshot()
	assert.Equal(t, "Hello world", snap.TextContent["content"])
}

func TestMergeConvergesTwoReplicas(t *testing.T) {
	codexID := types.NewCodexID()
	replicaA := New(codexID, "alice", nil)
	replicaB := New(codexID, "bob", nil)

	require.NoError(t, replicaA.InsertText("content", 0, "Hello"))
	require.NoError(t, replicaB.InsertText("content", 0, "World"))

	appliedToA, err := replicaA.Merge(replicaB)
	require.NoError(t, err)
	assert.Len(t, appliedToA, 1)

	appliedToB, err := replicaB.Merge(replicaA)
	require.NoError(t, err)
	assert.Len(t, appliedToB, 1)

	assert.Equal(t, replicaA.Snapshot().TextContent["content"], replicaB.Snapshot().TextContent["content"])
}

func TestMergeIsIdempotent(t *testing.T) {
	codexID := types.NewCodexID()
	a := New(codexID, "alice", nil)
	b := New(codexID, "bob", nil)
	require.NoError(t, b.InsertText("content", 0, "Hello"))

	_, err := a.Merge(b)
	require.NoError(t, err)
	first := a.Snapshot().TextContent["content"]

	_, err = a.Merge(b)
	require.NoError(t, err)
	second := a.Snapshot().TextContent["content"]

	assert.Equal(t, first, second)
}

func TestMergeRejectsDifferentCodexIDs(t *testing.T) {
	a := New(types.NewCodexID(), "alice", nil)
	b := New(types.NewCodexID(), "bob", nil)

	_, err := a.Merge(b)
	assert.Error(t, err)
}

func TestAddReferenceAppearsInReferences(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	other := types.NewCodexID()
	ref := types.CodexReference{FromCodexID: c.CodexID(), ToCodexID: other, ReferenceType: types.ReferenceTypeRelated}

	require.NoError(t, c.AddReference(ref))
	assert.Len(t, c.References(), 1)
}

func TestNewWithTemplateSeedsFields(t *testing.T) {
	tmpl := types.Template{
		ID: "tpl1",
		Fields: []types.FieldDefinition{
			{Name: "summary", Type: types.FieldTypeText},
		},
	}
	c, err := NewWithTemplate(types.NewCodexID(), "My Doc", tmpl, nil)
	require.NoError(t, err)

	title, ok := c.GetTitle()
	require.True(t, ok)
	assert.Equal(t, "My Doc", title)

	v, ok := c.GetMetadata("summary")
	require.True(t, ok)
	assert.Equal(t, "", v.Text)
}

func TestGCAllTrimsOperationLog(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	for i := 0; i < 20; i++ {
		require.NoError(t, c.SetMetadata("k", types.NewTextValue("v", time.Now(), "u1")))
	}
	require.Equal(t, 20, c.OperationCount())

	stats := c.GCAllWithLimits(time.Now(), 5, 10)
	assert.Equal(t, 15, stats.OperationsRemoved)
	assert.Equal(t, 5, c.OperationCount())
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	require.NoError(t, c.SetMetadata("title", types.NewTextValue("Doc", time.Now(), "u1")))

	data, err := c.Snapshot().ToJSON()
	require.NoError(t, err)

	restored, err := SnapshotFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, c.CodexID(), restored.CodexID)
	assert.Equal(t, "Doc", restored.Metadata["title"].Text)
}

func TestSnapshotMsgpackRoundTrip(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	require.NoError(t, c.SetMetadata("title", types.NewTextValue("Doc", time.Now(), "u1")))

	data, err := c.Snapshot().ToMsgpack()
	require.NoError(t, err)

	restored, err := SnapshotFromMsgpack(data)
	require.NoError(t, err)
	assert.Equal(t, c.CodexID(), restored.CodexID)
	assert.Equal(t, "Doc", restored.Metadata["title"].Text)
}

func TestMemoryOptimizationRecommendationsReportsPriority(t *testing.T) {
	c := New(types.NewCodexID(), "u1", nil)
	report := c.MemoryOptimizationRecommendations()
	assert.Equal(t, PriorityLow, report.Priority)
}
