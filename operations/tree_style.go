package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// TreeStyle applies or removes attributes on the element nodes covered by a
// tree range.
type TreeStyle struct {
	parentCreatedAt    clock.Ticket
	from               crdt.TreePos
	to                 crdt.TreePos
	attributes         map[string]string
	attributesToRemove []string
	executedAt         clock.Ticket
}

// NewTreeStyle creates an attribute-setting TreeStyle operation.
func NewTreeStyle(
	parentCreatedAt clock.Ticket,
	from, to crdt.TreePos,
	attributes map[string]string,
	executedAt clock.Ticket,
) *TreeStyle {
	return &TreeStyle{
		parentCreatedAt: parentCreatedAt,
		from:            from,
		to:              to,
		attributes:      attributes,
		executedAt:      executedAt,
	}
}

// NewTreeStyleRemove creates an attribute-removing TreeStyle operation.
func NewTreeStyleRemove(
	parentCreatedAt clock.Ticket,
	from, to crdt.TreePos,
	attributesToRemove []string,
	executedAt clock.Ticket,
) *TreeStyle {
	return &TreeStyle{
		parentCreatedAt:    parentCreatedAt,
		from:               from,
		to:                 to,
		attributesToRemove: attributesToRemove,
		executedAt:         executedAt,
	}
}

// Execute styles the covered element nodes.
func (o *TreeStyle) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Tree](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}

	var changes []crdt.TreeChange
	var pairs []crdt.GCPair
	if len(o.attributesToRemove) > 0 {
		changes, pairs, err = parent.RemoveStyle(o.from, o.to, o.attributesToRemove, o.executedAt, versions)
	} else {
		changes, pairs, err = parent.Style(o.from, o.to, o.attributes, o.executedAt, versions)
	}
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
			Type:       TypeTreeStyle,
			Path:       path,
			From:       change.From,
			To:         change.To,
			Attributes: o.attributes,
		})
	}
	return infos, nil
}

// From returns the range start.
func (o *TreeStyle) From() crdt.TreePos {
	return o.from
}

// To returns the range end.
func (o *TreeStyle) To() crdt.TreePos {
	return o.to
}

// Attributes returns the applied attributes.
func (o *TreeStyle) Attributes() map[string]string {
	return o.attributes
}

// AttributesToRemove returns the removed attribute keys.
func (o *TreeStyle) AttributesToRemove() []string {
	return o.attributesToRemove
}

// ExecutedAt returns the operation ticket.
func (o *TreeStyle) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *TreeStyle) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the tree's creation ticket.
func (o *TreeStyle) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
