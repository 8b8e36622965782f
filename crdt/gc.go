package crdt

import "github.com/collabkit/docsync/clock"

// GCParent can physically unlink one of its tombstoned children.
type GCParent interface {
	// Purge drops the child from the parent's internal structures.
	Purge(child GCChild) error
}

// GCChild is an inner node pinned for later collection: a tombstoned text
// node, tree node or attribute node that is no longer reachable from the
// document surface.
type GCChild interface {
	// IDString identifies the child uniquely within the document.
	IDString() string

	// RemovedAt returns the tombstone ticket, nil while live.
	RemovedAt() *clock.Ticket
}

// GCPair links a tombstoned inner node to the parent that must unlink it
// once every replica has observed the removal.
type GCPair struct {
	Parent GCParent
	Child  GCChild
}
