package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Remove tombstones an element inside a container.
type Remove struct {
	parentCreatedAt clock.Ticket
	createdAt       clock.Ticket
	executedAt      clock.Ticket
}

// NewRemove creates a Remove operation.
func NewRemove(parentCreatedAt, createdAt, executedAt clock.Ticket) *Remove {
	return &Remove{
		parentCreatedAt: parentCreatedAt,
		createdAt:       createdAt,
		executedAt:      executedAt,
	}
}

// Execute tombstones the target and pins it for collection.
func (o *Remove) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[crdt.Container](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	removedAt := o.executedAt
	elem, err := parent.DeleteByCreatedAt(o.createdAt, &removedAt)
	if err != nil {
		return nil, err
	}
	if elem != nil {
		root.RegisterRemovedElement(elem)
	}

	return []Info{{
		Type: TypeRemove,
		Path: pathOf(root, o.parentCreatedAt),
	}}, nil
}

// TargetCreatedAt returns the removed element's creation ticket.
func (o *Remove) TargetCreatedAt() clock.Ticket {
	return o.createdAt
}

// ExecutedAt returns the operation ticket.
func (o *Remove) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Remove) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the container's creation ticket.
func (o *Remove) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
