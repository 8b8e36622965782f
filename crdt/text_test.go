package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

func newTestText() *crdt.Text {
	return crdt.NewText(crdt.NewRGATreeSplit(crdt.NewTextValue("", crdt.NewRHT())), ticketAt(1, 0, 1))
}

func editText(t *testing.T, text *crdt.Text, from, to int, content string, lamport uint64, actor byte) []crdt.GCPair {
	t.Helper()
	fromPos, toPos, err := text.CreateRange(from, to)
	require.NoError(t, err)
	_, pairs, _, err := text.Edit(fromPos, toPos, content, nil, ticketAt(lamport, 0, actor), clock.NewVector())
	require.NoError(t, err)
	return pairs
}

func TestTextEditSplitAndDelete(t *testing.T) {
	text := newTestText()
	editText(t, text, 0, 0, "ABCD", 2, 1)
	assert.Equal(t, "ABCD", text.String())
	assert.Equal(t, 4, text.Len())

	pairs := editText(t, text, 1, 3, "12", 3, 1)
	assert.Equal(t, "A12D", text.String())
	assert.Equal(t, 4, text.Len())

	// One node carries the deleted "BC".
	require.Len(t, pairs, 1)
	tombstones := 0
	for _, node := range text.Nodes() {
		if node.IsRemoved() {
			tombstones++
			assert.Equal(t, "BC", node.Value().String())
		}
	}
	assert.Equal(t, 1, tombstones)
}

// Post-edit length always equals preLength - (to-from) + len(content).
func TestTextEditLengthProperty(t *testing.T) {
	text := newTestText()
	editText(t, text, 0, 0, "hello world", 2, 1)

	cases := []struct {
		from, to int
		content  string
	}{
		{0, 5, "goodbye"},
		{3, 3, "xyz"},
		{0, 2, ""},
		{5, 10, "1"},
	}
	lamport := uint64(3)
	for _, tc := range cases {
		before := text.Len()
		editText(t, text, tc.from, tc.to, tc.content, lamport, 1)
		assert.Equal(t, before-(tc.to-tc.from)+len(tc.content), text.Len())
		lamport++
	}
}

func TestTextConcurrentInsertConvergence(t *testing.T) {
	// Two actors insert at the same boundary of a shared base; apply in
	// both orders.
	build := func(reversed bool) *crdt.Text {
		text := newTestText()
		editText(t, text, 0, 0, "ab", 2, 1)
		insert := func(actor byte, lamport uint64, content string) {
			fromPos, toPos, err := text.CreateRange(1, 1)
			require.NoError(t, err)
			_, _, _, err = text.Edit(fromPos, toPos, content, nil, ticketAt(lamport, 0, actor), clock.NewVector())
			require.NoError(t, err)
		}
		if reversed {
			insert(3, 4, "Y")
			insert(2, 3, "X")
		} else {
			insert(2, 3, "X")
			insert(3, 4, "Y")
		}
		return text
	}

	forward := build(false)
	backward := build(true)
	assert.Equal(t, forward.String(), backward.String())
	assert.Equal(t, forward.ToSortedJSON(), backward.ToSortedJSON())
}

func TestTextStyle(t *testing.T) {
	text := newTestText()
	editText(t, text, 0, 0, "hello", 2, 1)

	fromPos, toPos, err := text.CreateRange(0, 3)
	require.NoError(t, err)
	_, _, err = text.Style(fromPos, toPos, map[string]string{"bold": "true"}, ticketAt(3, 0, 1), clock.NewVector())
	require.NoError(t, err)

	// Styling splits the boundary but removes nothing.
	assert.Equal(t, "hello", text.String())
	assert.Equal(t, `[{"attrs":{"bold":"true"},"val":"hel"},{"val":"lo"}]`, text.Marshal())
}

func TestTextEditRespectsVersionVector(t *testing.T) {
	text := newTestText()
	editText(t, text, 0, 0, "ab", 2, 1)

	// Actor 2 inserts concurrently; actor 3's delete has not observed it.
	fromPos, toPos, err := text.CreateRange(1, 1)
	require.NoError(t, err)
	_, _, _, err = text.Edit(fromPos, toPos, "X", nil, ticketAt(5, 0, 2), clock.NewVector())
	require.NoError(t, err)
	assert.Equal(t, "aXb", text.String())

	versions := clock.NewVector()
	versions.Set(clock.ActorID{1}, 2)
	versions.Set(clock.ActorID{3}, 6)
	fromPos, toPos, err = text.CreateRange(0, 3)
	require.NoError(t, err)
	_, removedPairs, _, err := text.Edit(fromPos, toPos, "", nil, ticketAt(6, 0, 3), versions)
	require.NoError(t, err)

	// The unseen insertion from actor 2 survives the delete.
	assert.Equal(t, "X", text.String())
	assert.Len(t, removedPairs, 2)
}

func TestTextDeepCopy(t *testing.T) {
	text := newTestText()
	editText(t, text, 0, 0, "abcd", 2, 1)
	editText(t, text, 1, 2, "", 3, 1)

	copied := text.DeepCopy().(*crdt.Text)
	assert.Equal(t, text.String(), copied.String())
	assert.Equal(t, len(text.Nodes()), len(copied.Nodes()))

	// Editing the copy leaves the original untouched.
	editText(t, copied, 0, 1, "z", 4, 1)
	assert.Equal(t, "acd", text.String())
	assert.Equal(t, "zcd", copied.String())
}
