package change_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/operations"
)

func TestCheckpointForward(t *testing.T) {
	a := change.Checkpoint{ServerSeq: 5, ClientSeq: 2}
	b := change.Checkpoint{ServerSeq: 3, ClientSeq: 7}

	merged := a.Forward(b)
	assert.Equal(t, uint64(5), merged.ServerSeq)
	assert.Equal(t, uint32(7), merged.ClientSeq)

	// Forward never regresses either field.
	assert.Equal(t, merged, merged.Forward(change.InitialCheckpoint))
}

func TestIDNext(t *testing.T) {
	actor := clock.ActorID{1}
	id := change.InitialID().SetActor(actor)

	next := id.Next()
	assert.Equal(t, uint32(1), next.ClientSeq())
	assert.Equal(t, uint64(1), next.Lamport())
	assert.Equal(t, uint64(1), next.Versions().Get(actor))

	after := next.Next()
	assert.Equal(t, uint32(2), after.ClientSeq())
	assert.Equal(t, uint64(2), after.Lamport())
}

func TestIDSyncClocks(t *testing.T) {
	actorA := clock.ActorID{1}
	actorB := clock.ActorID{2}

	local := change.InitialID().SetActor(actorA).Next()   // lamport 1
	remoteVersions := clock.NewVector()
	remoteVersions.Set(actorB, 9)
	remote := change.NewID(3, 0, 9, actorB, remoteVersions)

	synced := local.SyncClocks(remote)
	assert.Equal(t, uint64(10), synced.Lamport())
	assert.Equal(t, actorA, synced.Actor())
	assert.Equal(t, uint64(10), synced.Versions().Get(actorA))
	assert.Equal(t, uint64(9), synced.Versions().Get(actorB))
	// The local client sequence is untouched by remote clocks.
	assert.Equal(t, local.ClientSeq(), synced.ClientSeq())
}

func TestContextIssuesMonotonicTickets(t *testing.T) {
	actor := clock.ActorID{1}
	ctx := change.NewContext(change.InitialID().SetActor(actor).Next(), "")

	first := ctx.IssueTimeTicket()
	second := ctx.IssueTimeTicket()
	assert.True(t, second.After(first))
	assert.Equal(t, second, ctx.LastTimeTicket())
}

func TestChangeApplyTo(t *testing.T) {
	actor := clock.ActorID{1}
	root := crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), clock.InitialTicket))

	ctx := change.NewContext(change.InitialID().SetActor(actor).Next(), "set k")
	ticket := ctx.IssueTimeTicket()
	value, err := crdt.NewPrimitive("v", ticket)
	require.NoError(t, err)
	ctx.Push(operations.NewSet(clock.InitialTicket, "k", value, ticket))

	c := ctx.ToChange()
	require.True(t, c.HasOperations())
	infos, err := c.ApplyTo(root)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, operations.TypeSet, infos[0].Type)
	assert.Equal(t, "k", infos[0].Key)
	assert.Equal(t, `{"k":"v"}`, root.Object().Marshal())
}
