package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespera-atelier/vespera-bindery/types"
)

func TestInsertAndChildren(t *testing.T) {
	l := New()
	root := types.NewCodexID()
	child1 := types.NewCodexID()
	child2 := types.NewCodexID()

	require.NoError(t, l.Insert(nil, 0, root))
	require.NoError(t, l.Insert(&root, 0, child1))
	require.NoError(t, l.Insert(&root, 1, child2))

	children := l.Children(&root)
	assert.Equal(t, []types.CodexID{child1, child2}, children)
	assert.Equal(t, []types.CodexID{root}, l.Roots())
}

func TestInsertRejectsCycle(t *testing.T) {
	l := New()
	a := types.NewCodexID()
	b := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, a))
	require.NoError(t, l.Insert(&a, 0, b))

	err := l.Insert(&b, 0, a)
	assert.Error(t, err)
}

func TestMoveNodeRejectsCycle(t *testing.T) {
	l := New()
	a := types.NewCodexID()
	b := types.NewCodexID()
	c := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, a))
	require.NoError(t, l.Insert(&a, 0, b))
	require.NoError(t, l.Insert(&b, 0, c))

	err := l.MoveNode(a, &c, 0)
	assert.Error(t, err)
}

func TestMoveNodeRelinksParent(t *testing.T) {
	l := New()
	a := types.NewCodexID()
	b := types.NewCodexID()
	child := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, a))
	require.NoError(t, l.Insert(nil, 0, b))
	require.NoError(t, l.Insert(&a, 0, child))

	require.NoError(t, l.MoveNode(child, &b, 0))

	assert.Empty(t, l.Children(&a))
	assert.Equal(t, []types.CodexID{child}, l.Children(&b))
	assert.Equal(t, b, *l.Parent(child))
}

func TestRemoveTombstonesRelationship(t *testing.T) {
	l := New()
	root := types.NewCodexID()
	child := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, root))
	require.NoError(t, l.Insert(&root, 0, child))

	require.NoError(t, l.Remove(&root, child))
	assert.Empty(t, l.Children(&root))

	err := l.Insert(&root, 0, child)
	assert.Error(t, err, "re-inserting a tombstoned relationship must fail")
}

func TestDescendantsAndAncestors(t *testing.T) {
	l := New()
	root := types.NewCodexID()
	mid := types.NewCodexID()
	leaf := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, root))
	require.NoError(t, l.Insert(&root, 0, mid))
	require.NoError(t, l.Insert(&mid, 0, leaf))

	assert.ElementsMatch(t, []types.CodexID{mid, leaf}, l.Descendants(&root))
	assert.Equal(t, []types.CodexID{mid, root}, l.Ancestors(leaf))
	assert.Equal(t, 2, l.Depth(leaf))
	assert.True(t, l.IsAncestor(root, leaf))
	assert.True(t, l.IsDescendant(leaf, root))
}

func TestValidateDetectsNoCyclesOnHealthyTree(t *testing.T) {
	l := New()
	root := types.NewCodexID()
	child := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, root))
	require.NoError(t, l.Insert(&root, 0, child))

	assert.NoError(t, l.Validate())
}

func TestGCTombstonesKeepsMaxRetained(t *testing.T) {
	l := New()
	root := types.NewCodexID()
	require.NoError(t, l.Insert(nil, 0, root))

	for i := 0; i < 5; i++ {
		child := types.NewCodexID()
		require.NoError(t, l.Insert(&root, 0, child))
		require.NoError(t, l.Remove(&root, child))
	}

	stats := l.Stats()
	assert.Equal(t, 5, stats.Tombstones)

	removed := l.GCTombstones(2)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, l.Stats().Tombstones)
}
