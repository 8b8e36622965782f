package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Set writes a member of an object. A concurrent set on the same key leaves
// the value with the larger creation ticket and tombstones the loser.
type Set struct {
	parentCreatedAt clock.Ticket
	key             string
	value           crdt.Element
	executedAt      clock.Ticket
}

// NewSet creates a Set operation.
func NewSet(parentCreatedAt clock.Ticket, key string, value crdt.Element, executedAt clock.Ticket) *Set {
	return &Set{
		parentCreatedAt: parentCreatedAt,
		key:             key,
		value:           value,
		executedAt:      executedAt,
	}
}

// Execute stores a copy of the value and pins the displaced element for
// collection.
func (o *Set) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Object](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	value := o.value.DeepCopy()
	if displaced := parent.Set(o.key, value); displaced != nil {
		root.RegisterRemovedElement(displaced)
	}
	root.RegisterElement(parent, value)

	return []Info{{
		Type: TypeSet,
		Path: pathOf(root, value.CreatedAt()),
		Key:  o.key,
	}}, nil
}

// Key returns the member key.
func (o *Set) Key() string {
	return o.key
}

// Value returns the element carried by the operation.
func (o *Set) Value() crdt.Element {
	return o.value
}

// ExecutedAt returns the operation ticket.
func (o *Set) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Set) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the target object's creation ticket.
func (o *Set) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
