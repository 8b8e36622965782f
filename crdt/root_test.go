package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

func newTestRoot() *crdt.Root {
	return crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), clock.InitialTicket))
}

func TestRootRegistryFind(t *testing.T) {
	root := newTestRoot()
	prim := mustPrimitive(t, "v", 2, 1)
	root.Object().Set("k", prim)
	root.RegisterElement(root.Object(), prim)

	assert.Equal(t, crdt.Element(prim), root.FindByCreatedAt(prim.CreatedAt()))
	assert.Nil(t, root.FindByCreatedAt(ticketAt(99, 0, 1)))
}

func TestRootCreatePath(t *testing.T) {
	root := newTestRoot()

	inner := crdt.NewObject(crdt.NewElementRHT(), ticketAt(2, 0, 1))
	root.Object().Set("todos", inner)
	root.RegisterElement(root.Object(), inner)

	arr := crdt.NewArray(crdt.NewRGATreeList(), ticketAt(3, 0, 1))
	inner.Set("items", arr)
	root.RegisterElement(inner, arr)

	entry := mustPrimitive(t, "milk", 4, 1)
	require.NoError(t, arr.Add(entry))
	root.RegisterElement(arr, entry)

	path, err := root.CreatePath(entry.CreatedAt())
	require.NoError(t, err)
	assert.Equal(t, "$.todos.items.0", path)

	// Keys containing dots are escaped.
	dotted := mustPrimitive(t, 1, 5, 1)
	root.Object().Set("a.b", dotted)
	root.RegisterElement(root.Object(), dotted)
	path, err = root.CreatePath(dotted.CreatedAt())
	require.NoError(t, err)
	assert.Equal(t, `$.a\.b`, path)
}

// After GC with a minimum vector, everything the vector covers is gone and
// nothing live is lost.
func TestRootGarbageCollectByVector(t *testing.T) {
	root := newTestRoot()

	keep := mustPrimitive(t, "keep", 2, 1)
	root.Object().Set("keep", keep)
	root.RegisterElement(root.Object(), keep)

	gone := mustPrimitive(t, "gone", 3, 1)
	root.Object().Set("gone", gone)
	root.RegisterElement(root.Object(), gone)

	removedAt := ticketAt(4, 0, 2)
	removed, ok := root.Object().Delete("gone", &removedAt)
	require.True(t, ok)
	root.RegisterRemovedElement(removed)
	assert.Equal(t, 1, root.GarbageLen())

	// The removing actor's lamport is below the tombstone: nothing purges.
	early := clock.NewVector()
	early.Set(clock.ActorID{2}, 3)
	count, err := root.GarbageCollect(early)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NotNil(t, root.FindByCreatedAt(gone.CreatedAt()))

	// Once every actor observed the removal, the element purges.
	covered := clock.NewVector()
	covered.Set(clock.ActorID{2}, 4)
	count, err = root.GarbageCollect(covered)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, root.GarbageLen())
	assert.Nil(t, root.FindByCreatedAt(gone.CreatedAt()))
	assert.NotNil(t, root.FindByCreatedAt(keep.CreatedAt()))
	assert.Equal(t, `{"keep":"keep"}`, root.Object().ToSortedJSON())
}

func TestRootGarbageCollectTextPairs(t *testing.T) {
	root := newTestRoot()
	text := crdt.NewText(crdt.NewRGATreeSplit(crdt.NewTextValue("", crdt.NewRHT())), ticketAt(2, 0, 1))
	root.Object().Set("text", text)
	root.RegisterElement(root.Object(), text)

	editText(t, text, 0, 0, "ABCD", 3, 1)
	pairs := editText(t, text, 1, 3, "12", 4, 1)
	for _, pair := range pairs {
		root.RegisterGCPair(pair)
	}
	assert.Equal(t, "A12D", text.String())
	assert.Equal(t, 1, root.GarbageLen())

	max := clock.NewVector()
	max.Set(clock.ActorID{1}, 10)
	count, err := root.GarbageCollect(max)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, root.GarbageLen())

	// The serialized text is unchanged after purging.
	assert.Equal(t, "A12D", text.String())
	assert.Len(t, text.Nodes(), 3)
}

func TestRootGarbageCollectByTicket(t *testing.T) {
	root := newTestRoot()
	gone := mustPrimitive(t, "gone", 2, 1)
	root.Object().Set("gone", gone)
	root.RegisterElement(root.Object(), gone)

	removedAt := ticketAt(3, 0, 1)
	removed, ok := root.Object().Delete("gone", &removedAt)
	require.True(t, ok)
	root.RegisterRemovedElement(removed)

	count, err := root.GarbageCollectByTicket(ticketAt(2, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = root.GarbageCollectByTicket(ticketAt(3, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, root.GarbageLen())
}

func TestRootDocSize(t *testing.T) {
	root := newTestRoot()
	prim := mustPrimitive(t, "hello", 2, 1)
	root.Object().Set("k", prim)
	root.RegisterElement(root.Object(), prim)

	size := root.DocSize()
	assert.Equal(t, 5, size.Live.Data)
	assert.Greater(t, size.Live.Meta, 0)
	assert.Equal(t, 0, size.GC.Total())

	removedAt := ticketAt(3, 0, 1)
	removed, ok := root.Object().Delete("k", &removedAt)
	require.True(t, ok)
	root.RegisterRemovedElement(removed)

	size = root.DocSize()
	assert.Equal(t, 0, size.Live.Data)
	assert.Greater(t, size.GC.Total(), 0)
}
