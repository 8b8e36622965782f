package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Edit replaces a positional range of a text element with new content.
type Edit struct {
	parentCreatedAt clock.Ticket
	from            crdt.RGATreeSplitPos
	to              crdt.RGATreeSplitPos
	content         string
	attributes      map[string]string
	executedAt      clock.Ticket
}

// NewEdit creates an Edit operation.
func NewEdit(
	parentCreatedAt clock.Ticket,
	from, to crdt.RGATreeSplitPos,
	content string,
	attributes map[string]string,
	executedAt clock.Ticket,
) *Edit {
	return &Edit{
		parentCreatedAt: parentCreatedAt,
		from:            from,
		to:              to,
		content:         content,
		attributes:      attributes,
		executedAt:      executedAt,
	}
}

// Execute applies the edit and pins tombstoned runs for collection.
func (o *Edit) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Text](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	_, pairs, changes, err := parent.Edit(o.from, o.to, o.content, o.attributes, o.executedAt, versions)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		root.RegisterGCPair(pair)
	}

	path := pathOf(root, o.parentCreatedAt)
	infos := make([]Info, 0, len(changes))
	for _, change := range changes {
		infos = append(infos, Info{
			Type:  TypeEdit,
			Path:  path,
			From:  change.From,
			To:    change.To,
			Value: change.Content,
		})
	}
	return infos, nil
}

// From returns the range start.
func (o *Edit) From() crdt.RGATreeSplitPos {
	return o.from
}

// To returns the range end.
func (o *Edit) To() crdt.RGATreeSplitPos {
	return o.to
}

// Content returns the inserted characters.
func (o *Edit) Content() string {
	return o.content
}

// Attributes returns the style applied to the inserted run.
func (o *Edit) Attributes() map[string]string {
	return o.attributes
}

// ExecutedAt returns the operation ticket.
func (o *Edit) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Edit) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the text's creation ticket.
func (o *Edit) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
