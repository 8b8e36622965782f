package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Style applies attributes to a positional range of a text element without
// touching the characters.
type Style struct {
	parentCreatedAt clock.Ticket
	from            crdt.RGATreeSplitPos
	to              crdt.RGATreeSplitPos
	attributes      map[string]string
	executedAt      clock.Ticket
}

// NewStyle creates a Style operation.
func NewStyle(
	parentCreatedAt clock.Ticket,
	from, to crdt.RGATreeSplitPos,
	attributes map[string]string,
	executedAt clock.Ticket,
) *Style {
	return &Style{
		parentCreatedAt: parentCreatedAt,
		from:            from,
		to:              to,
		attributes:      attributes,
		executedAt:      executedAt,
	}
}

// Execute styles the covered runs.
func (o *Style) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Text](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}
	pairs, changes, err := parent.Style(o.from, o.to, o.attributes, o.executedAt, versions)
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
			Type:       TypeStyle,
			Path:       path,
			From:       change.From,
			To:         change.To,
			Attributes: o.attributes,
		})
	}
	return infos, nil
}

// From returns the range start.
func (o *Style) From() crdt.RGATreeSplitPos {
	return o.from
}

// To returns the range end.
func (o *Style) To() crdt.RGATreeSplitPos {
	return o.to
}

// Attributes returns the applied style.
func (o *Style) Attributes() map[string]string {
	return o.attributes
}

// ExecutedAt returns the operation ticket.
func (o *Style) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *Style) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the text's creation ticket.
func (o *Style) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
