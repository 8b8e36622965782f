package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/codec"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/operations"
	"github.com/collabkit/docsync/presence"
)

func ticketAt(lamport uint64, delimiter uint32, actorByte byte) clock.Ticket {
	return clock.Ticket{Lamport: lamport, Delimiter: delimiter, Actor: clock.ActorID{actorByte}}
}

func buildRoot(t *testing.T) *crdt.Root {
	t.Helper()
	root := crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), clock.InitialTicket))
	obj := root.Object()

	register := func(key string, elem crdt.Element) {
		obj.Set(key, elem)
		root.RegisterElement(obj, elem)
	}

	str, err := crdt.NewPrimitive("hello", ticketAt(2, 0, 1))
	require.NoError(t, err)
	register("str", str)

	num, err := crdt.NewPrimitive(int64(42), ticketAt(3, 0, 1))
	require.NoError(t, err)
	register("num", num)

	bin, err := crdt.NewPrimitive([]byte{1, 2, 3}, ticketAt(4, 0, 1))
	require.NoError(t, err)
	register("bin", bin)

	date, err := crdt.NewPrimitive(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ticketAt(5, 0, 1))
	require.NoError(t, err)
	register("date", date)

	counter := crdt.NewCounter(crdt.LongCnt, 7, ticketAt(6, 0, 1))
	register("counter", counter)

	arr := crdt.NewArray(crdt.NewRGATreeList(), ticketAt(7, 0, 1))
	entry, err := crdt.NewPrimitive("x", ticketAt(8, 0, 1))
	require.NoError(t, err)
	require.NoError(t, arr.Add(entry))
	register("arr", arr)

	text := crdt.NewText(crdt.NewRGATreeSplit(crdt.NewTextValue("", crdt.NewRHT())), ticketAt(9, 0, 1))
	fromPos, toPos, err := text.CreateRange(0, 0)
	require.NoError(t, err)
	_, _, _, err = text.Edit(fromPos, toPos, "world", nil, ticketAt(10, 0, 1), clock.NewVector())
	require.NoError(t, err)
	// Leave a tombstone in the sequence.
	fromPos, toPos, err = text.CreateRange(1, 3)
	require.NoError(t, err)
	_, _, _, err = text.Edit(fromPos, toPos, "", nil, ticketAt(11, 0, 1), clock.NewVector())
	require.NoError(t, err)
	register("text", text)

	treeText := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(12, 2, 1)}, crdt.TextNodeType, nil, "ab")
	para := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(12, 1, 1)}, "p", nil, "")
	para.Append(treeText)
	docNode := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticketAt(12, 0, 1)}, "doc", nil, "")
	docNode.Append(para)
	register("tree", crdt.NewTree(docNode, ticketAt(12, 0, 1)))

	return root
}

func TestRootRoundTrip(t *testing.T) {
	root := buildRoot(t)

	data, err := codec.EncodeRoot(root)
	require.NoError(t, err)

	decoded, err := codec.DecodeRoot(data)
	require.NoError(t, err)
	assert.Equal(t, root.Object().ToSortedJSON(), decoded.Object().ToSortedJSON())

	// Tombstones survive the round trip: re-encoding is stable.
	again, err := codec.EncodeRoot(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestPackRoundTrip(t *testing.T) {
	actor := clock.ActorID{1}
	versions := clock.NewVector()
	versions.Set(actor, 1)
	id := change.NewID(1, 0, 1, actor, versions)

	setValue, err := crdt.NewPrimitive("v", ticketAt(1, 1, 1))
	require.NoError(t, err)

	ops := []operations.Operation{
		operations.NewSet(clock.InitialTicket, "k", setValue, ticketAt(1, 1, 1)),
		operations.NewRemove(clock.InitialTicket, ticketAt(1, 1, 1), ticketAt(1, 2, 1)),
		operations.NewIncrease(ticketAt(1, 1, 1), setValue, ticketAt(1, 3, 1)),
		operations.NewEdit(
			ticketAt(1, 1, 1),
			crdt.RGATreeSplitPos{ID: crdt.RGATreeSplitNodeID{CreatedAt: ticketAt(1, 1, 1)}},
			crdt.RGATreeSplitPos{ID: crdt.RGATreeSplitNodeID{CreatedAt: ticketAt(1, 1, 1)}, RelativeOffset: 2},
			"xy",
			map[string]string{"bold": "true"},
			ticketAt(1, 4, 1),
		),
	}

	pc := &presence.Change{ChangeType: presence.Put, Presence: presence.Presence{"name": "amy"}}
	c := change.New(id, ops, pc, "test change")

	pack := change.NewPack("doc-1", change.Checkpoint{ServerSeq: 3, ClientSeq: 1}, []*change.Change{c}, versions)
	minTicket := ticketAt(1, 0, 1)
	pack.MinSyncedTicket = &minTicket

	data, err := codec.Marshal(pack)
	require.NoError(t, err)

	decoded, err := codec.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, pack.DocumentKey, decoded.DocumentKey)
	assert.Equal(t, pack.Checkpoint, decoded.Checkpoint)
	require.Len(t, decoded.Changes, 1)
	assert.Equal(t, c.ID().ClientSeq(), decoded.Changes[0].ID().ClientSeq())
	assert.Equal(t, c.ID().Lamport(), decoded.Changes[0].ID().Lamport())
	assert.Equal(t, c.Message(), decoded.Changes[0].Message())
	assert.Equal(t, pc.Presence["name"], decoded.Changes[0].PresenceChange().Presence["name"])
	require.Len(t, decoded.Changes[0].Operations(), len(ops))
	require.NotNil(t, decoded.MinSyncedTicket)
	assert.Equal(t, minTicket, *decoded.MinSyncedTicket)

	// The re-encoded pack is byte-identical.
	again, err := codec.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestChangeRoundTrip(t *testing.T) {
	actor := clock.ActorID{7}
	versions := clock.NewVector()
	versions.Set(actor, 4)
	id := change.NewID(4, 0, 4, actor, versions)

	value, err := crdt.NewPrimitive(3.14, ticketAt(4, 1, 7))
	require.NoError(t, err)
	c := change.New(id, []operations.Operation{
		operations.NewAdd(ticketAt(2, 0, 7), clock.InitialTicket, value, ticketAt(4, 1, 7)),
	}, nil, "")

	data, err := codec.MarshalChange(c)
	require.NoError(t, err)
	decoded, err := codec.UnmarshalChange(data)
	require.NoError(t, err)

	assert.Equal(t, c.ID().ClientSeq(), decoded.ID().ClientSeq())
	require.Len(t, decoded.Operations(), 1)
	add, ok := decoded.Operations()[0].(*operations.Add)
	require.True(t, ok)
	assert.Equal(t, clock.InitialTicket, add.PrevCreatedAt())
}
