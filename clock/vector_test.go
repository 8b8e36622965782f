package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
)

func TestVectorMaxMin(t *testing.T) {
	actorA := clock.ActorID{1}
	actorB := clock.ActorID{2}

	a := clock.NewVector()
	a.Set(actorA, 5)
	a.Set(actorB, 2)

	b := clock.NewVector()
	b.Set(actorA, 3)
	b.Set(actorB, 7)

	max := a.Max(b)
	assert.Equal(t, uint64(5), max.Get(actorA))
	assert.Equal(t, uint64(7), max.Get(actorB))

	min := a.Min(b)
	assert.Equal(t, uint64(3), min.Get(actorA))
	assert.Equal(t, uint64(2), min.Get(actorB))

	// An actor missing on one side resolves to zero in the minimum.
	c := clock.NewVector()
	c.Set(actorA, 9)
	min = a.Min(c)
	assert.Equal(t, uint64(5), min.Get(actorA))
	assert.Equal(t, uint64(0), min.Get(actorB))
}

func TestVectorAfterOrEqual(t *testing.T) {
	actor := clock.ActorID{1}
	v := clock.NewVector()
	v.Set(actor, 4)

	seen, err := clock.NewTicket(4, 0, actor)
	require.NoError(t, err)
	unseen, err := clock.NewTicket(5, 0, actor)
	require.NoError(t, err)

	assert.True(t, v.AfterOrEqual(seen))
	assert.False(t, v.AfterOrEqual(unseen))
}

func TestVectorFilter(t *testing.T) {
	actorA := clock.ActorID{1}
	actorB := clock.ActorID{2}

	v := clock.NewVector()
	v.Set(actorA, 1)
	v.Set(actorB, 2)

	filtered := v.Filter([]clock.ActorID{actorA})
	assert.Equal(t, 1, filtered.Len())
	assert.Equal(t, uint64(1), filtered.Get(actorA))
	assert.Equal(t, uint64(0), filtered.Get(actorB))
}

func TestVectorJSONRoundTrip(t *testing.T) {
	actor := clock.NewActorID()
	v := clock.NewVector()
	v.Set(actor, 42)

	data, err := v.MarshalJSON()
	require.NoError(t, err)

	var decoded clock.Vector
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, v.Equal(decoded))
}
