package operations

import (
	"fmt"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Increase atomically adds a numeric primitive to a counter.
type Increase struct {
	parentCreatedAt clock.Ticket
	value           crdt.Element
	executedAt      clock.Ticket
}

// NewIncrease creates an Increase operation.
func NewIncrease(parentCreatedAt clock.Ticket, value crdt.Element, executedAt clock.Ticket) *Increase {
	return &Increase{
		parentCreatedAt: parentCreatedAt,
		value:           value,
		executedAt:      executedAt,
	}
}

// Execute adds the carried value to the counter.
func (o *Increase) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Counter](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	primitive, ok := o.value.(*crdt.Primitive)
	if !ok {
		return nil, fmt.Errorf("increase by %T: %w", o.value, ErrInvalidArgument)
	}
	if err := parent.Increase(primitive); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
	}

	return []Info{{
		Type:  TypeIncrease,
		Path:  pathOf(root, o.parentCreatedAt),
		Value: primitive.Marshal(),
	}}, nil
}

// Value returns the delta primitive.
func (o *Increase) Value() crdt.Element {
	return o.value
}

// ExecutedAt returns the operation ticket.
func (o *Increase) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Increase) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the counter's creation ticket.
func (o *Increase) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
