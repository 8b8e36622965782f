package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// ArraySet atomically replaces an array entry: the new value takes the
// entry's position and the entry is tombstoned with the same ticket. The
// displaced element is deliberately not pinned for collection because the
// pre- and post-images share a creation ticket and would be ambiguous in the
// registry.
type ArraySet struct {
	parentCreatedAt clock.Ticket
	createdAt       clock.Ticket
	value           crdt.Element
	executedAt      clock.Ticket
}

// NewArraySet creates an ArraySet operation.
func NewArraySet(parentCreatedAt, createdAt clock.Ticket, value crdt.Element, executedAt clock.Ticket) *ArraySet {
	return &ArraySet{
		parentCreatedAt: parentCreatedAt,
		createdAt:       createdAt,
		value:           value,
		executedAt:      executedAt,
	}
}

// Execute replaces the target entry with a copy of the value.
func (o *ArraySet) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Array](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	value := o.value.DeepCopy()
	if _, err := parent.Set(o.createdAt, value, o.executedAt); err != nil {
		return nil, err
	}
	root.RegisterElement(parent, value)

	return []Info{{
		Type:  TypeArraySet,
		Path:  pathOf(root, o.parentCreatedAt),
		Index: parent.IndexOf(value.CreatedAt()),
	}}, nil
}

// TargetCreatedAt returns the replaced entry's creation ticket.
func (o *ArraySet) TargetCreatedAt() clock.Ticket {
	return o.createdAt
}

// Value returns the element carried by the operation.
func (o *ArraySet) Value() crdt.Element {
	return o.value
}

// ExecutedAt returns the operation ticket.
func (o *ArraySet) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *ArraySet) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the target array's creation ticket.
func (o *ArraySet) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
