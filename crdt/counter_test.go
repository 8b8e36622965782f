package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/crdt"
)

func TestCounterIncrease(t *testing.T) {
	counter := crdt.NewCounter(crdt.LongCnt, 0, ticketAt(1, 0, 1))

	require.NoError(t, counter.Increase(mustPrimitive(t, 3, 2, 1)))
	require.NoError(t, counter.Increase(mustPrimitive(t, int64(5), 3, 2)))
	assert.Equal(t, int64(8), counter.Value())
	assert.Equal(t, "8", counter.Marshal())
}

// Concurrent increases commute: +3 and +5 yield 8 in either order.
func TestCounterConcurrentIncreaseConvergence(t *testing.T) {
	build := func(reversed bool) *crdt.Counter {
		counter := crdt.NewCounter(crdt.LongCnt, 0, ticketAt(1, 0, 1))
		ops := []int64{3, 5}
		if reversed {
			ops = []int64{5, 3}
		}
		for i, delta := range ops {
			require.NoError(t, counter.Increase(mustPrimitive(t, delta, uint64(i+2), byte(i+1))))
		}
		return counter
	}
	assert.Equal(t, int64(8), build(false).Value())
	assert.Equal(t, build(false).Value(), build(true).Value())
}

func TestCounterRejectsNonNumeric(t *testing.T) {
	counter := crdt.NewCounter(crdt.IntCnt, 0, ticketAt(1, 0, 1))
	err := counter.Increase(mustPrimitive(t, "nope", 2, 1))
	assert.Error(t, err)
	assert.Equal(t, int64(0), counter.Value())
}

func TestIntCounterWraps(t *testing.T) {
	counter := crdt.NewCounter(crdt.IntCnt, int64(2147483647), ticketAt(1, 0, 1))
	require.NoError(t, counter.Increase(mustPrimitive(t, 1, 2, 1)))
	assert.Equal(t, int64(-2147483648), counter.Value())
}
