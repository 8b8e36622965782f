package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

func newTestArray() *crdt.Array {
	return crdt.NewArray(crdt.NewRGATreeList(), ticketAt(1, 0, 1))
}

func TestArrayAddGetDelete(t *testing.T) {
	arr := newTestArray()
	require.NoError(t, arr.Add(mustPrimitive(t, "x", 2, 1)))
	require.NoError(t, arr.Add(mustPrimitive(t, "y", 3, 1)))
	require.NoError(t, arr.Add(mustPrimitive(t, "z", 4, 1)))

	assert.Equal(t, 3, arr.Len())
	assert.Equal(t, `["x","y","z"]`, arr.Marshal())

	elem, err := arr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, `"y"`, elem.Marshal())

	removedAt := ticketAt(5, 0, 1)
	_, err = arr.Delete(1, &removedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, `["x","z"]`, arr.Marshal())

	// Tombstones keep zero index weight: index 1 now resolves to z.
	elem, err = arr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, `"z"`, elem.Marshal())

	_, err = arr.Get(2)
	assert.Error(t, err)
}

// Racing moves of the same entry: the move with the larger ticket wins on
// both replicas.
func TestArrayMoveRace(t *testing.T) {
	build := func() (*crdt.Array, clock.Ticket, clock.Ticket, clock.Ticket) {
		arr := newTestArray()
		x := mustPrimitive(t, "x", 2, 1)
		y := mustPrimitive(t, "y", 3, 1)
		z := mustPrimitive(t, "z", 4, 1)
		require.NoError(t, arr.Add(x))
		require.NoError(t, arr.Add(y))
		require.NoError(t, arr.Add(z))
		return arr, x.CreatedAt(), y.CreatedAt(), z.CreatedAt()
	}

	moveA := func(arr *crdt.Array, x, z clock.Ticket) {
		// Move x after z at t1.
		require.NoError(t, arr.MoveAfter(z, x, ticketAt(10, 0, 1)))
	}
	moveB := func(arr *crdt.Array, x, y clock.Ticket) {
		// Move x after y at t2 > t1.
		require.NoError(t, arr.MoveAfter(y, x, ticketAt(11, 0, 2)))
	}

	replicaA, x, y, z := build()
	moveA(replicaA, x, z)
	moveB(replicaA, x, y)

	replicaB, x2, y2, z2 := build()
	moveB(replicaB, x2, y2)
	moveA(replicaB, x2, z2)

	assert.Equal(t, `["y","x","z"]`, replicaA.Marshal())
	assert.Equal(t, replicaA.Marshal(), replicaB.Marshal())
}

func TestArrayConcurrentInsertSameAnchor(t *testing.T) {
	build := func(first, second bool) *crdt.Array {
		arr := newTestArray()
		anchor := mustPrimitive(t, "a", 2, 1)
		require.NoError(t, arr.Add(anchor))
		insert := func(actor byte, lamport uint64, value string) {
			prim := mustPrimitive(t, value, lamport, actor)
			require.NoError(t, arr.InsertAfter(anchor.CreatedAt(), prim, prim.CreatedAt()))
		}
		if first {
			insert(2, 3, "b")
			insert(3, 4, "c")
		}
		if second {
			insert(3, 4, "c")
			insert(2, 3, "b")
		}
		return arr
	}

	// The later insert sorts closest to the anchor on both replicas.
	replicaA := build(true, false)
	replicaB := build(false, true)
	assert.Equal(t, `["a","c","b"]`, replicaA.Marshal())
	assert.Equal(t, replicaA.Marshal(), replicaB.Marshal())
}

func TestArraySetSharesTicket(t *testing.T) {
	arr := newTestArray()
	target := mustPrimitive(t, "old", 2, 1)
	require.NoError(t, arr.Add(target))

	executedAt := ticketAt(5, 0, 1)
	replacement, err := crdt.NewPrimitive("new", executedAt)
	require.NoError(t, err)
	removed, err := arr.Set(target.CreatedAt(), replacement, executedAt)
	require.NoError(t, err)
	require.NotNil(t, removed)

	assert.Equal(t, `["new"]`, arr.Marshal())
	assert.Equal(t, executedAt, *removed.RemovedAt())
}

func TestArrayMoveFrontAndLastAnchors(t *testing.T) {
	arr := newTestArray()
	x := mustPrimitive(t, "x", 2, 1)
	y := mustPrimitive(t, "y", 3, 1)
	require.NoError(t, arr.Add(x))
	require.NoError(t, arr.Add(y))

	// Move y to the front via the head sentinel anchor.
	require.NoError(t, arr.MoveAfter(clock.InitialTicket, y.CreatedAt(), ticketAt(5, 0, 1)))
	assert.Equal(t, `["y","x"]`, arr.Marshal())
	assert.Equal(t, 0, arr.IndexOf(y.CreatedAt()))

	// And back after the current last entry.
	require.NoError(t, arr.MoveAfter(arr.LastCreatedAt(), y.CreatedAt(), ticketAt(6, 0, 1)))
	assert.Equal(t, `["x","y"]`, arr.Marshal())
}
