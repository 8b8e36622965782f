package persistence_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/persistence"
)

func openStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "docsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openStore(t)

	versions := clock.NewVector()
	versions.Set(clock.ActorID{1}, 9)
	snapshot := persistence.Snapshot{
		Root:       []byte(`{"kind":"object"}`),
		Checkpoint: change.Checkpoint{ServerSeq: 4, ClientSeq: 2},
		Versions:   versions,
	}
	require.NoError(t, store.SaveSnapshot("d1", snapshot))

	loaded, found, err := store.LoadSnapshot("d1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snapshot.Root, loaded.Root)
	assert.Equal(t, snapshot.Checkpoint, loaded.Checkpoint)
	assert.True(t, snapshot.Versions.Equal(loaded.Versions))

	_, found, err = store.LoadSnapshot("unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChangeLogOrderAndPrune(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.AppendChange("d1", 2, []byte("two")))
	require.NoError(t, store.AppendChange("d1", 1, []byte("one")))
	require.NoError(t, store.AppendChange("d1", 3, []byte("three")))
	require.NoError(t, store.AppendChange("other", 1, []byte("foreign")))

	records, err := store.ChangesSince("d1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "one", string(records[0]))
	assert.Equal(t, "three", string(records[2]))

	records, err = store.ChangesSince("d1", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "two", string(records[0]))

	require.NoError(t, store.Prune("d1", 2))
	records, err = store.ChangesSince("d1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "three", string(records[0]))

	// Other documents' logs are untouched.
	records, err = store.ChangesSince("other", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSaveSnapshotPrunesLog(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.AppendChange("d1", 1, []byte("one")))
	require.NoError(t, store.AppendChange("d1", 2, []byte("two")))

	require.NoError(t, store.SaveSnapshot("d1", persistence.Snapshot{
		Root:       []byte("{}"),
		Checkpoint: change.Checkpoint{ClientSeq: 1},
		Versions:   clock.NewVector(),
	}))

	records, err := store.ChangesSince("d1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "two", string(records[0]))
}
