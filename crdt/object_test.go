package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/crdt"
)

func newTestObject() *crdt.Object {
	return crdt.NewObject(crdt.NewElementRHT(), ticketAt(1, 0, 1))
}

func mustPrimitive(t *testing.T, value interface{}, lamport uint64, actor byte) *crdt.Primitive {
	t.Helper()
	prim, err := crdt.NewPrimitive(value, ticketAt(lamport, 0, actor))
	require.NoError(t, err)
	return prim
}

func TestObjectSetGetDelete(t *testing.T) {
	obj := newTestObject()
	obj.Set("k", mustPrimitive(t, "a", 2, 1))

	elem, ok := obj.Get("k")
	require.True(t, ok)
	assert.Equal(t, `"a"`, elem.Marshal())
	assert.Equal(t, `{"k":"a"}`, obj.Marshal())

	removedAt := ticketAt(3, 0, 1)
	removed, ok := obj.Delete("k", &removedAt)
	require.True(t, ok)
	assert.NotNil(t, removed.RemovedAt())
	assert.False(t, obj.Has("k"))
	assert.Equal(t, `{}`, obj.Marshal())
}

// Concurrent sets on the same key: the later creation ticket wins on both
// replicas regardless of arrival order, and exactly one tombstone remains.
func TestObjectConcurrentSetConvergence(t *testing.T) {
	makeReplica := func(order ...byte) *crdt.Object {
		obj := newTestObject()
		for _, actor := range order {
			if actor == 1 {
				obj.Set("k", mustPrimitive(t, "a", 2, 1))
			} else {
				obj.Set("k", mustPrimitive(t, "b", 2, 2))
			}
		}
		return obj
	}

	replicaA := makeReplica(1, 2)
	replicaB := makeReplica(2, 1)

	assert.Equal(t, `{"k":"b"}`, replicaA.ToSortedJSON())
	assert.Equal(t, replicaA.ToSortedJSON(), replicaB.ToSortedJSON())

	countTombstones := func(obj *crdt.Object) int {
		count := 0
		for _, node := range obj.MemberNodes() {
			if node.Element().RemovedAt() != nil {
				count++
			}
		}
		return count
	}
	assert.Equal(t, 1, countTombstones(replicaA))
	assert.Equal(t, 1, countTombstones(replicaB))
}

func TestObjectMarshalOrder(t *testing.T) {
	obj := newTestObject()
	obj.Set("z", mustPrimitive(t, 1, 2, 1))
	obj.Set("a", mustPrimitive(t, 2, 3, 1))

	// Natural order follows insertion, the canonical form sorts keys.
	assert.Equal(t, `{"z":1,"a":2}`, obj.Marshal())
	assert.Equal(t, `{"a":2,"z":1}`, obj.ToSortedJSON())
}

func TestObjectDeepCopyPreservesTombstones(t *testing.T) {
	obj := newTestObject()
	obj.Set("k", mustPrimitive(t, "a", 2, 1))
	obj.Set("k", mustPrimitive(t, "b", 3, 2))

	copied := obj.DeepCopy().(*crdt.Object)
	assert.Equal(t, obj.ToSortedJSON(), copied.ToSortedJSON())
	assert.Equal(t, len(obj.MemberNodes()), len(copied.MemberNodes()))
}
