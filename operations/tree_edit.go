package operations

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// TreeEdit replaces a positional range of a tree with content nodes,
// optionally splitting ancestor elements first. Split clones draw their
// tickets deterministically from the operation ticket's delimiter, so every
// replica mints identical IDs.
type TreeEdit struct {
	parentCreatedAt clock.Ticket
	from            crdt.TreePos
	to              crdt.TreePos
	contents        []*crdt.TreeNode
	splitLevel      int
	executedAt      clock.Ticket
}

// NewTreeEdit creates a TreeEdit operation.
func NewTreeEdit(
	parentCreatedAt clock.Ticket,
	from, to crdt.TreePos,
	contents []*crdt.TreeNode,
	splitLevel int,
	executedAt clock.Ticket,
) *TreeEdit {
	return &TreeEdit{
		parentCreatedAt: parentCreatedAt,
		from:            from,
		to:              to,
		contents:        contents,
		splitLevel:      splitLevel,
		executedAt:      executedAt,
	}
}

// Execute applies the edit and pins tombstoned subtrees for collection.
func (o *TreeEdit) Execute(root *crdt.Root, versions clock.Vector) ([]Info, error) {
	parent, err := findParent[*crdt.Tree](root, o.parentCreatedAt)
	if err != nil {
		return nil, err
	}

	contents := make([]*crdt.TreeNode, 0, len(o.contents))
	for _, content := range o.contents {
		contents = append(contents, content.DeepCopy())
	}

	delimiter := o.executedAt.Delimiter
	issueNext := func() clock.Ticket {
		delimiter++
		return clock.Ticket{
			Lamport:   o.executedAt.Lamport,
			Delimiter: delimiter,
			Actor:     o.executedAt.Actor,
		}
	}

	changes, pairs, err := parent.Edit(o.from, o.to, contents, o.splitLevel, o.executedAt, issueNext, versions)
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
			Type:  TypeTreeEdit,
			Path:  path,
			From:  change.From,
			To:    change.To,
			Value: change.Value,
		})
	}
	return infos, nil
}

// From returns the range start.
func (o *TreeEdit) From() crdt.TreePos {
	return o.from
}

// To returns the range end.
func (o *TreeEdit) To() crdt.TreePos {
	return o.to
}

// Contents returns the inserted subtrees.
func (o *TreeEdit) Contents() []*crdt.TreeNode {
	return o.contents
}

// SplitLevel returns how many ancestors split at the left boundary.
func (o *TreeEdit) SplitLevel() int {
	return o.splitLevel
}

// ExecutedAt returns the operation ticket.
func (o *TreeEdit) ExecutedAt() clock.Ticket {
	return o.executedAt
}

// SetActor stamps the actor into the operation ticket.
func (o *TreeEdit) SetActor(actor clock.ActorID) {
	o.executedAt = o.executedAt.WithActor(actor)
}

// ParentCreatedAt returns the tree's creation ticket.
func (o *TreeEdit) ParentCreatedAt() clock.Ticket {
	return o.parentCreatedAt
}
