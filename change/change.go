package change

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/operations"
	"github.com/collabkit/docsync/presence"
)

// Change is the atomic unit of edit: the operations of one transaction plus
// an optional presence mutation and a human-readable message.
type Change struct {
	id             ID
	operations     []operations.Operation
	presenceChange *presence.Change
	message        string
}

// New creates a change.
func New(id ID, ops []operations.Operation, presenceChange *presence.Change, message string) *Change {
	return &Change{
		id:             id,
		operations:     ops,
		presenceChange: presenceChange,
		message:        message,
	}
}

// ID returns the change's identifier.
func (c *Change) ID() ID {
	return c.id
}

// Operations returns the operations in application order.
func (c *Change) Operations() []operations.Operation {
	return c.operations
}

// PresenceChange returns the piggybacked presence mutation, if any.
func (c *Change) PresenceChange() *presence.Change {
	return c.presenceChange
}

// Message returns the transaction message.
func (c *Change) Message() string {
	return c.message
}

// HasOperations reports whether the change mutates the document.
func (c *Change) HasOperations() bool {
	return len(c.operations) > 0
}

// SetActor stamps the actor into the ID and every operation.
func (c *Change) SetActor(actor clock.ActorID) {
	c.id = c.id.SetActor(actor)
	for _, op := range c.operations {
		op.SetActor(actor)
	}
}

// SetServerSeq records the server-assigned sequence.
func (c *Change) SetServerSeq(serverSeq uint64) {
	c.id = c.id.SetServerSeq(serverSeq)
}

// ApplyTo executes every operation against the root in order, returning the
// aggregated change infos.
func (c *Change) ApplyTo(root *crdt.Root) ([]operations.Info, error) {
	var infos []operations.Info
	for _, op := range c.operations {
		opInfos, err := op.Execute(root, c.id.versions)
		if err != nil {
			return infos, err
		}
		infos = append(infos, opInfos...)
	}
	return infos, nil
}
