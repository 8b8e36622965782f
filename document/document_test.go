package document_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/document"
)

// deliver applies src's buffered changes to dst the way a broker relay
// would: dst keeps its own checkpoint.
func deliver(t *testing.T, src, dst *document.Document) {
	t.Helper()
	pack := src.CreateChangePack(false)
	relay := change.NewPack(dst.Key(), dst.Checkpoint(), pack.Changes, pack.VersionVector)
	require.NoError(t, dst.ApplyChangePack(relay))
}

func newAttachedDoc(t *testing.T, key string, actorByte byte) *document.Document {
	t.Helper()
	doc := document.New(key)
	doc.SetActor(clock.ActorID{actorByte})
	return doc
}

func TestDocumentUpdateCommit(t *testing.T) {
	doc := newAttachedDoc(t, "d1", 1)

	err := doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "v").SetInteger("n", 7)
		return nil
	}, "initial")
	require.NoError(t, err)

	assert.Equal(t, `{"k":"v","n":7}`, doc.Marshal())
	assert.True(t, doc.HasLocalChanges())
	require.Len(t, doc.LocalChanges(), 1)
	assert.Equal(t, "initial", doc.LocalChanges()[0].Message())
}

func TestDocumentUpdateRollback(t *testing.T) {
	doc := newAttachedDoc(t, "d1", 1)
	require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "v")
		return nil
	}))

	boom := errors.New("boom")
	err := doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "overwritten")
		root.Delete("k")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The live root is untouched and no change was buffered.
	assert.Equal(t, `{"k":"v"}`, doc.Marshal())
	assert.Len(t, doc.LocalChanges(), 1)

	// The next update works against a fresh clone.
	require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k2", "v2")
		return nil
	}))
	assert.Equal(t, `{"k":"v","k2":"v2"}`, doc.Marshal())
}

// Object set/remove convergence: the set with the larger ticket wins on
// both replicas.
func TestDocumentSetConvergence(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "a")
		return nil
	}))
	require.NoError(t, docB.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "b")
		return nil
	}))

	deliver(t, docA, docB)
	deliver(t, docB, docA)

	assert.Equal(t, docA.ToSortedJSON(), docB.ToSortedJSON())
	// Equal lamports: the larger actor's write wins.
	assert.Equal(t, `{"k":"b"}`, docA.ToSortedJSON())
	assert.Equal(t, 1, docA.GarbageLen())
	assert.Equal(t, 1, docB.GarbageLen())
}

func TestDocumentTextConvergence(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		text := root.SetNewText("t")
		return text.Edit(0, 0, "hello")
	}))
	deliver(t, docA, docB)

	// Concurrent edits at both replicas.
	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		text, err := root.GetText("t")
		if err != nil {
			return err
		}
		return text.Edit(5, 5, " world")
	}))
	require.NoError(t, docB.Update(func(root *document.Object, p *document.Presence) error {
		text, err := root.GetText("t")
		if err != nil {
			return err
		}
		return text.Edit(0, 1, "H")
	}))

	deliver(t, docA, docB)
	deliver(t, docB, docA)
	assert.Equal(t, docA.ToSortedJSON(), docB.ToSortedJSON())
}

func TestDocumentEventsOrderAndPaths(t *testing.T) {
	doc := newAttachedDoc(t, "d1", 1)

	var rootEvents []document.EventType
	unsubscribeRoot := doc.Subscribe("$", func(event document.Event) {
		rootEvents = append(rootEvents, event.Type)
	})
	defer unsubscribeRoot()

	var scoped []document.Event
	unsubscribeScoped := doc.Subscribe("$.todos", func(event document.Event) {
		if len(event.Operations) > 0 {
			scoped = append(scoped, event)
		}
	})
	defer unsubscribeScoped()

	require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetNewObject("todos")
		return nil
	}))
	require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("other", "x")
		return nil
	}))

	assert.Equal(t, []document.EventType{document.LocalChangeEvent, document.LocalChangeEvent}, rootEvents)
	// The scoped subscriber only saw the todos change.
	require.Len(t, scoped, 1)
	assert.Equal(t, "$.todos", scoped[0].Operations[0].Path)
}

func TestDocumentRemoteChangeEvent(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "v")
		return nil
	}))

	var remote []document.Event
	unsubscribe := docB.Subscribe("$", func(event document.Event) {
		if event.Type == document.RemoteChangeEvent {
			remote = append(remote, event)
		}
	})
	defer unsubscribe()

	deliver(t, docA, docB)
	require.Len(t, remote, 1)
	assert.Equal(t, clock.ActorID{1}, remote[0].Actor)
}

func TestDocumentCheckpointMonotonic(t *testing.T) {
	doc := newAttachedDoc(t, "d1", 1)
	require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "v")
		return nil
	}))

	ack := change.NewPack("d1", change.Checkpoint{ServerSeq: 10, ClientSeq: 1}, nil, doc.VersionVector())
	require.NoError(t, doc.ApplyChangePack(ack))
	assert.Equal(t, change.Checkpoint{ServerSeq: 10, ClientSeq: 1}, doc.Checkpoint())
	assert.False(t, doc.HasLocalChanges())

	// A stale pack cannot regress the checkpoint.
	stale := change.NewPack("d1", change.Checkpoint{ServerSeq: 4, ClientSeq: 0}, nil, doc.VersionVector())
	require.NoError(t, doc.ApplyChangePack(stale))
	assert.Equal(t, change.Checkpoint{ServerSeq: 10, ClientSeq: 1}, doc.Checkpoint())
}

func TestDocumentGCOnPack(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.SetString("k", "v")
		return nil
	}))
	deliver(t, docA, docB)
	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.Delete("k")
		return nil
	}))
	deliver(t, docA, docB)

	assert.Equal(t, 1, docB.GarbageLen())

	minVector := docA.VersionVector().Min(docB.VersionVector())
	gcPack := change.NewPack("d1", docB.Checkpoint(), nil, docB.VersionVector())
	gcPack.MinSyncedVersions = minVector
	require.NoError(t, docB.ApplyChangePack(gcPack))
	assert.Equal(t, 0, docB.GarbageLen())
	assert.Equal(t, `{}`, docB.ToSortedJSON())
}

func TestDocumentRemovedByPack(t *testing.T) {
	doc := newAttachedDoc(t, "d1", 1)
	doc.SetStatus(document.StatusAttached)

	pack := change.NewPack("d1", doc.Checkpoint(), nil, doc.VersionVector())
	pack.IsRemoved = true
	require.NoError(t, doc.ApplyChangePack(pack))
	assert.Equal(t, document.StatusRemoved, doc.Status())

	err := doc.Update(func(root *document.Object, p *document.Presence) error { return nil })
	assert.ErrorIs(t, err, document.ErrDocumentRemoved)
}

func TestDocumentPresenceDelivery(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		p.Set("name", "amy")
		root.SetString("k", "v")
		return nil
	}))
	deliver(t, docA, docB)

	assert.Equal(t, "amy", docB.PresenceOf(clock.ActorID{1})["name"])
}

func TestDocumentCounterConvergence(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.SetNewCounter("c", crdt.LongCnt, 0)
		return nil
	}))
	deliver(t, docA, docB)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		counter, err := root.GetCounter("c")
		if err != nil {
			return err
		}
		counter.Increase(3)
		return nil
	}))
	require.NoError(t, docB.Update(func(root *document.Object, p *document.Presence) error {
		counter, err := root.GetCounter("c")
		if err != nil {
			return err
		}
		counter.Increase(5)
		return nil
	}))

	deliver(t, docA, docB)
	deliver(t, docB, docA)
	assert.Equal(t, `{"c":8}`, docA.ToSortedJSON())
	assert.Equal(t, docA.ToSortedJSON(), docB.ToSortedJSON())
}

func TestDocumentTreeConvergence(t *testing.T) {
	docA := newAttachedDoc(t, "d1", 1)
	docB := newAttachedDoc(t, "d1", 2)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		root.SetNewTree("tree", &document.TreeNodeDef{
			Type: "doc",
			Children: []*document.TreeNodeDef{{
				Type:     "p",
				Children: []*document.TreeNodeDef{{Type: crdt.TextNodeType, Value: "ab"}},
			}},
		})
		return nil
	}))
	deliver(t, docA, docB)

	require.NoError(t, docA.Update(func(root *document.Object, p *document.Presence) error {
		tree, err := root.GetTree("tree")
		if err != nil {
			return err
		}
		return tree.Edit(2, 2, &document.TreeNodeDef{Type: crdt.TextNodeType, Value: "X"}, 0)
	}))
	deliver(t, docA, docB)

	treeXML := func(doc *document.Document) string {
		var xml string
		require.NoError(t, doc.Update(func(root *document.Object, p *document.Presence) error {
			tree, err := root.GetTree("tree")
			if err != nil {
				return err
			}
			xml = tree.XML()
			return nil
		}))
		return xml
	}
	assert.Equal(t, "<doc><p>aXb</p></doc>", treeXML(docA))
	assert.Equal(t, treeXML(docA), treeXML(docB))
}
