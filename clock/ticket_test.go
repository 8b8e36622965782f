package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
)

func TestTicketOrdering(t *testing.T) {
	actorA := clock.ActorID{1}
	actorB := clock.ActorID{2}

	a, err := clock.NewTicket(1, 0, actorA)
	require.NoError(t, err)
	b, err := clock.NewTicket(2, 0, actorA)
	require.NoError(t, err)
	assert.True(t, b.After(a))
	assert.False(t, a.After(b))

	// Same lamport: the actor breaks the tie before the delimiter.
	c, err := clock.NewTicket(1, 9, actorA)
	require.NoError(t, err)
	d, err := clock.NewTicket(1, 0, actorB)
	require.NoError(t, err)
	assert.True(t, d.After(c))

	// Same lamport and actor: the delimiter decides.
	e, err := clock.NewTicket(1, 1, actorA)
	require.NoError(t, err)
	assert.True(t, e.After(a))
}

func TestTicketReservedBounds(t *testing.T) {
	actor := clock.NewActorID()

	_, err := clock.NewTicket(clock.InitialLamport, 0, actor)
	assert.Error(t, err)
	_, err = clock.NewTicket(clock.MaxLamport, 0, actor)
	assert.Error(t, err)

	issued, err := clock.NewTicket(1, 0, actor)
	require.NoError(t, err)
	assert.True(t, issued.After(clock.InitialTicket))
	assert.True(t, clock.MaxTicket.After(issued))
}

func TestActorIDHexRoundTrip(t *testing.T) {
	actor := clock.NewActorID()
	parsed, err := clock.ActorIDFromHex(actor.String())
	require.NoError(t, err)
	assert.Equal(t, actor, parsed)

	_, err = clock.ActorIDFromHex("zz")
	assert.Error(t, err)
}
