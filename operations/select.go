package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Select records a caret range on a text element. It mutates no replicated
// state; newer protocol revisions carry selections through presence instead,
// so execution only yields a change record for subscribers.
type Select struct {
	parentCreatedAt clock.Ticket
	from            crdt.RGATreeSplitPos
	to              crdt.RGATreeSplitPos
	executedAt      clock.Ticket
}

// NewSelect creates a Select operation.
func NewSelect(parentCreatedAt clock.Ticket, from, to crdt.RGATreeSplitPos, executedAt clock.Ticket) *Select {
	return &Select{
		parentCreatedAt: parentCreatedAt,
		from:            from,
		to:              to,
		executedAt:      executedAt,
	}
}

// Execute reports the selection without touching the document.
func (o *Select) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Text](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	from, err := parent.Sequence().PosToIndex(o.from)
	if err != nil {
		return nil, err
	}
	to, err := parent.Sequence().PosToIndex(o.to)
	if err != nil {
		return nil, err
	}

	return []Info{{
		Type: TypeSelect,
		Path: pathOf(root, o.parentCreatedAt),
		From: from,
		To:   to,
	}}, nil
}

// ExecutedAt returns the operation ticket.
func (o *Select) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Select) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the text's creation ticket.
func (o *Select) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
