package change

import (
	"github.com/collabkit/docsync/clock"
)

// ID identifies one change: the actor's sequence number, the lamport at
// creation and the causal context the change was made in.
type ID struct {
	clientSeq uint32
	serverSeq uint64
	lamport   uint64
	actor     clock.ActorID
	versions  clock.Vector
}

// NewID builds an ID from its parts.
func NewID(clientSeq uint32, serverSeq uint64, lamport uint64, actor clock.ActorID, versions clock.Vector) ID {
	return ID{
		clientSeq: clientSeq,
		serverSeq: serverSeq,
		lamport:   lamport,
		actor:     actor,
		versions:  versions,
	}
}

// InitialID is the ID state of a fresh document before any change.
func InitialID() ID {
	return ID{lamport: clock.InitialLamport, actor: clock.InitialActor, versions: clock.NewVector()}
}

// Next returns the ID for the following local change: client sequence and
// lamport advance, and the actor's own entry in the vector records the new
// lamport.
func (id ID) Next() ID {
	versions := id.versions.DeepCopy()
	versions.Set(id.actor, id.lamport+1)
	return ID{
		clientSeq: id.clientSeq + 1,
		lamport:   id.lamport + 1,
		actor:     id.actor,
		versions:  versions,
	}
}

// SyncClocks merges a remote ID into the local one: the lamport jumps past
// the maximum of both and the vectors merge.
func (id ID) SyncClocks(other ID) ID {
	lamport := id.lamport
	if other.lamport > lamport {
		lamport = other.lamport
	}
	lamport++

	versions := id.versions.Max(other.versions)
	versions.Set(id.actor, lamport)
	return ID{
		clientSeq: id.clientSeq,
		lamport:   lamport,
		actor:     id.actor,
		versions:  versions,
	}
}

// SetActor stamps the actor, used when a change buffered before activation
// learns its real actor.
func (id ID) SetActor(actor clock.ActorID) ID {
	id.actor = actor
	return id
}

// SetServerSeq records the sequence the server assigned to the change.
func (id ID) SetServerSeq(serverSeq uint64) ID {
	id.serverSeq = serverSeq
	return id
}

// NewTicket mints the change's base ticket with the given delimiter.
func (id ID) NewTicket(delimiter uint32) clock.Ticket {
	return clock.Ticket{Lamport: id.lamport, Delimiter: delimiter, Actor: id.actor}
}

// ClientSeq returns the actor-local sequence number.
func (id ID) ClientSeq() uint32 {
	return id.clientSeq
}

// ServerSeq returns the server-assigned sequence, zero until synced.
func (id ID) ServerSeq() uint64 {
	return id.serverSeq
}

// Lamport returns the lamport at change creation.
func (id ID) Lamport() uint64 {
	return id.lamport
}

// Actor returns the authoring actor.
func (id ID) Actor() clock.ActorID {
	return id.actor
}

// Versions returns the causal context vector.
func (id ID) Versions() clock.Vector {
	return id.versions
}
