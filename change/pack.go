package change

import (
	"github.com/collabkit/docsync/clock"
)

// Pack is the batch exchanged with the broker: either a list of changes or a
// snapshot, plus the checkpoint and version vector bookkeeping.
type Pack struct {
	// DocumentKey identifies the document.
	DocumentKey string

	// Checkpoint carries the sender's high-water marks.
	Checkpoint Checkpoint

	// Changes are applied in order; empty for a snapshot fast-forward.
	Changes []*Change

	// Snapshot reinitializes the whole document when present.
	Snapshot []byte

	// SnapshotVersions is the version vector the snapshot was taken at.
	SnapshotVersions clock.Vector

	// IsRemoved marks that the document was removed on the server.
	IsRemoved bool

	// VersionVector is the sender's current vector.
	VersionVector clock.Vector

	// MinSyncedTicket hints the garbage collection threshold. Brokers that
	// track vectors send MinSyncedVersions instead.
	MinSyncedTicket *clock.Ticket

	// MinSyncedVersions is the minimum vector across attached actors.
	MinSyncedVersions clock.Vector
}

// NewPack creates a pack of changes.
func NewPack(documentKey string, checkpoint Checkpoint, changes []*Change, versions clock.Vector) *Pack {
	return &Pack{
		DocumentKey:   documentKey,
		Checkpoint:    checkpoint,
		Changes:       changes,
		VersionVector: versions,
	}
}

// HasChanges reports whether the pack carries changes.
func (p *Pack) HasChanges() bool {
	return len(p.Changes) > 0
}

// ChangesLen returns the number of carried changes.
func (p *Pack) ChangesLen() int {
	return len(p.Changes)
}

// OperationsLen returns the number of carried operations.
func (p *Pack) OperationsLen() int {
	total := 0
	for _, c := range p.Changes {
		total += len(c.Operations())
	}
	return total
}
