package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Move repositions an array entry after a previous entry. Between racing
// moves of the same entry the one with the larger ticket wins.
type Move struct {
	parentCreatedAt clock.Ticket
	prevCreatedAt   clock.Ticket
	createdAt       clock.Ticket
	executedAt      clock.Ticket
}

// NewMove creates a Move operation.
func NewMove(parentCreatedAt, prevCreatedAt, createdAt, executedAt clock.Ticket) *Move {
	return &Move{
		parentCreatedAt: parentCreatedAt,
		prevCreatedAt:   prevCreatedAt,
		createdAt:       createdAt,
		executedAt:      executedAt,
	}
}

// Execute repositions the entry.
func (o *Move) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Array](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	if err := parent.MoveAfter(o.prevCreatedAt, o.createdAt, o.executedAt); err != nil {
		return nil, err
	}

	return []Info{{
		Type:  TypeMove,
		Path:  pathOf(root, o.parentCreatedAt),
		Index: parent.IndexOf(o.createdAt),
	}}, nil
}

// TargetCreatedAt returns the moved entry's creation ticket.
func (o *Move) TargetCreatedAt() clock.Ticket {
	return o.createdAt
}

// PrevCreatedAt returns the move anchor.
func (o *Move) PrevCreatedAt() clock.Ticket {
	return o.prevCreatedAt
}

// ExecutedAt returns the operation ticket.
func (o *Move) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Move) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the target array's creation ticket.
func (o *Move) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
