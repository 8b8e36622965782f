package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

func ticketAt(lamport uint64, delimiter uint32, actorByte byte) clock.Ticket {
	return clock.Ticket{Lamport: lamport, Delimiter: delimiter, Actor: clock.ActorID{actorByte}}
}

func TestRHTSetWins(t *testing.T) {
	rht := crdt.NewRHT()
	rht.Set("bold", "true", ticketAt(1, 0, 1))
	rht.Set("bold", "false", ticketAt(2, 0, 1))

	v, ok := rht.Get("bold")
	require.True(t, ok)
	assert.Equal(t, "false", v)

	// A stale set loses and changes nothing.
	rht.Set("bold", "stale", ticketAt(1, 1, 1))
	v, _ = rht.Get("bold")
	assert.Equal(t, "false", v)
}

func TestRHTRemoveRace(t *testing.T) {
	rht := crdt.NewRHT()
	rht.Set("k", "v", ticketAt(2, 0, 1))

	// A remove that loses the race is retained but does not tombstone.
	assert.Nil(t, rht.Remove("k", ticketAt(1, 0, 2)))
	assert.True(t, rht.Has("k"))

	removed := rht.Remove("k", ticketAt(3, 0, 2))
	require.NotNil(t, removed)
	assert.False(t, rht.Has("k"))
	assert.Equal(t, 0, rht.Len())

	// A later set revives the key.
	rht.Set("k", "v2", ticketAt(4, 0, 1))
	v, ok := rht.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, rht.Len())
}

func TestRHTRemoveUnknownKeyRetained(t *testing.T) {
	rht := crdt.NewRHT()
	removed := rht.Remove("ghost", ticketAt(5, 0, 1))
	require.NotNil(t, removed)
	assert.Equal(t, 0, rht.Len())

	// A late-arriving older set still loses against the tombstone.
	rht.Set("ghost", "v", ticketAt(3, 0, 2))
	assert.False(t, rht.Has("ghost"))
}

func TestRHTConvergence(t *testing.T) {
	type op struct {
		set    bool
		key    string
		value  string
		ticket clock.Ticket
	}
	ops := []op{
		{true, "a", "1", ticketAt(1, 0, 1)},
		{true, "a", "2", ticketAt(2, 0, 2)},
		{false, "a", "", ticketAt(3, 0, 1)},
		{true, "b", "3", ticketAt(2, 1, 1)},
		{false, "b", "", ticketAt(1, 0, 2)},
	}

	apply := func(order []int) string {
		rht := crdt.NewRHT()
		for _, i := range order {
			o := ops[i]
			if o.set {
				rht.Set(o.key, o.value, o.ticket)
			} else {
				rht.Remove(o.key, o.ticket)
			}
		}
		return rht.Marshal()
	}

	forward := apply([]int{0, 1, 2, 3, 4})
	backward := apply([]int{4, 3, 2, 1, 0})
	shuffled := apply([]int{2, 0, 4, 1, 3})
	assert.Equal(t, forward, backward)
	assert.Equal(t, forward, shuffled)
}

func TestRHTPurge(t *testing.T) {
	rht := crdt.NewRHT()
	rht.Set("k", "v", ticketAt(1, 0, 1))
	removed := rht.Remove("k", ticketAt(2, 0, 1))
	require.NotNil(t, removed)

	require.NoError(t, rht.Purge(removed))
	assert.Equal(t, 0, len(rht.Nodes()))
}
