package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Add inserts a value into an array after a previous entry.
type Add struct {
	parentCreatedAt clock.Ticket
	prevCreatedAt   clock.Ticket
	value           crdt.Element
	executedAt      clock.Ticket
}

// NewAdd creates an Add operation.
func NewAdd(parentCreatedAt, prevCreatedAt clock.Ticket, value crdt.Element, executedAt clock.Ticket) *Add {
	return &Add{
		parentCreatedAt: parentCreatedAt,
		prevCreatedAt:   prevCreatedAt,
		value:           value,
		executedAt:      executedAt,
	}
}

// Execute inserts a copy of the value after the previous entry.
func (o *Add) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Array](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	value := o.value.DeepCopy()
	if err := parent.InsertAfter(o.prevCreatedAt, value, o.executedAt); err != nil {
		return nil, err
	}
	root.RegisterElement(parent, value)

	return []Info{{
		Type:  TypeAdd,
		Path:  pathOf(root, value.CreatedAt()),
		Index: parent.IndexOf(value.CreatedAt()),
	}}, nil
}

// Value returns the element carried by the operation.
func (o *Add) Value() crdt.Element {
	return o.value
}

// PrevCreatedAt returns the insertion anchor.
func (o *Add) PrevCreatedAt() clock.Ticket {
	return o.prevCreatedAt
}

// ExecutedAt returns the operation ticket.
func (o *Add) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Add) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the target array's creation ticket.
func (o *Add) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
