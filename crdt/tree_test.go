package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// buildDocTree constructs <doc><p><b>ab</b></p></doc>.
func buildDocTree(t *testing.T) *crdt.Tree {
	t.Helper()
	text := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(2, 3, 1)}, crdt.TextNodeType, nil, "ab")
	b := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(2, 2, 1)}, "b", nil, "")
	b.Append(text)
	p := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(2, 1, 1)}, "p", nil, "")
	p.Append(b)
	doc := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(2, 0, 1)}, "doc", nil, "")
	doc.Append(p)
	return crdt.NewTree(doc, ticketAt(2, 0, 1))
}

func issueFrom(base clock.Ticket) func() clock.Ticket {
	delimiter := base.Delimiter
	return func() clock.Ticket {
		delimiter++
		return clock.Ticket{Lamport: base.Lamport, Delimiter: delimiter, Actor: base.Actor}
	}
}

func TestTreeXMLAndSize(t *testing.T) {
	tree := buildDocTree(t)
	assert.Equal(t, "<doc><p><b>ab</b></p></doc>", tree.ToXML())
	// b spans 4 (2 padding + 2 chars), p spans 6.
	assert.Equal(t, 6, tree.Size())
}

func TestTreeSplitLevelEdit(t *testing.T) {
	tree := buildDocTree(t)

	fromPos, err := tree.FindPos(3)
	require.NoError(t, err)
	executedAt := ticketAt(5, 0, 1)
	_, pairs, err := tree.Edit(fromPos, fromPos, nil, 2, executedAt, issueFrom(executedAt), clock.NewVector())
	require.NoError(t, err)
	assert.Empty(t, pairs)

	assert.Equal(t, "<doc><p><b>a</b></p><p><b>b</b></p></doc>", tree.ToXML())
	assert.Equal(t, 10, tree.Size())
}

func TestTreeEditInsertContent(t *testing.T) {
	tree := buildDocTree(t)

	// Insert a new paragraph after the existing one.
	pos, err := tree.FindPos(tree.Size())
	require.NoError(t, err)
	content := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(6, 1, 2)}, "p", nil, "")
	content.Append(crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(6, 2, 2)}, crdt.TextNodeType, nil, "cd"))

	executedAt := ticketAt(6, 0, 2)
	changes, _, err := tree.Edit(pos, pos, []*crdt.TreeNode{content}, 0, executedAt, issueFrom(executedAt), clock.NewVector())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "<p>cd</p>", changes[0].Value)

	assert.Equal(t, "<doc><p><b>ab</b></p><p>cd</p></doc>", tree.ToXML())
}

func TestTreeDeleteRange(t *testing.T) {
	tree := buildDocTree(t)

	// Delete the character "a".
	fromPos, err := tree.FindPos(2)
	require.NoError(t, err)
	toPos, err := tree.FindPos(3)
	require.NoError(t, err)

	executedAt := ticketAt(7, 0, 1)
	_, pairs, err := tree.Edit(fromPos, toPos, nil, 0, executedAt, issueFrom(executedAt), clock.NewVector())
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	assert.Equal(t, "<doc><p><b>b</b></p></doc>", tree.ToXML())
	assert.Equal(t, 5, tree.Size())
}

func TestTreeStyleAndRemoveStyle(t *testing.T) {
	tree := buildDocTree(t)

	fromPos, err := tree.FindPos(0)
	require.NoError(t, err)
	toPos, err := tree.FindPos(tree.Size())
	require.NoError(t, err)

	changes, _, err := tree.Style(fromPos, toPos, map[string]string{"align": "center"}, ticketAt(8, 0, 1), clock.NewVector())
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
	assert.Equal(t, `<doc><p align="center"><b align="center">ab</b></p></doc>`, tree.ToXML())

	_, pairs, err := tree.RemoveStyle(fromPos, toPos, []string{"align"}, ticketAt(9, 0, 1), clock.NewVector())
	require.NoError(t, err)
	assert.NotEmpty(t, pairs)
	assert.Equal(t, "<doc><p><b>ab</b></p></doc>", tree.ToXML())
}

func TestTreePathIndexDuality(t *testing.T) {
	tree := buildDocTree(t)

	for index := 0; index <= tree.Size(); index++ {
		path, err := tree.IndexToPath(index)
		require.NoError(t, err)
		back, err := tree.PathToIndex(path)
		require.NoError(t, err)
		assert.Equal(t, index, back, "index %d -> path %v", index, path)
	}
}

func TestTreePosRangeRoundTrip(t *testing.T) {
	tree := buildDocTree(t)

	for index := 0; index <= tree.Size(); index++ {
		pos, err := tree.FindPos(index)
		require.NoError(t, err)
		back, err := tree.PosToIndex(pos)
		require.NoError(t, err)
		assert.Equal(t, index, back, "index %d", index)
	}
}

func TestTreeDeepCopyIndependence(t *testing.T) {
	tree := buildDocTree(t)
	copied := tree.DeepCopy().(*crdt.Tree)
	assert.Equal(t, tree.ToXML(), copied.ToXML())

	fromPos, err := copied.FindPos(2)
	require.NoError(t, err)
	toPos, err := copied.FindPos(4)
	require.NoError(t, err)
	executedAt := ticketAt(9, 0, 1)
	_, _, err = copied.Edit(fromPos, toPos, nil, 0, executedAt, issueFrom(executedAt), clock.NewVector())
	require.NoError(t, err)

	assert.Equal(t, "<doc><p><b>ab</b></p></doc>", tree.ToXML())
	assert.Equal(t, "<doc><p><b></b></p></doc>", copied.ToXML())
}
