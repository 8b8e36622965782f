package crdt

import (
	"fmt"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/internal/splay"
)

// RGATreeListNode is one slot of the array backbone: a doubly-linked RGA
// entry indexed by a weighted splay tree for random access.
type RGATreeListNode struct {
	elem Element

	prev *RGATreeListNode
	next *RGATreeListNode

	indexNode *splay.Node[*RGATreeListNode]
}

// Element returns the stored element, nil on the head sentinel.
func (n *RGATreeListNode) Element() Element {
	return n.elem
}

// CreatedAt returns the stored element's creation ticket.
func (n *RGATreeListNode) CreatedAt() clock.Ticket {
	if n.elem == nil {
		return clock.InitialTicket
	}
	return n.elem.CreatedAt()
}

// PositionedAt returns the ticket ruling the node's position: the latest
// move ticket, or the creation ticket if never moved.
func (n *RGATreeListNode) PositionedAt() clock.Ticket {
	if n.elem == nil {
		return clock.InitialTicket
	}
	if moved := n.elem.MovedAt(); moved != nil {
		return *moved
	}
	return n.elem.CreatedAt()
}

func (n *RGATreeListNode) isRemoved() bool {
	return n.elem != nil && n.elem.RemovedAt() != nil
}

// Len reports the node's index weight: one for a live entry, zero for the
// sentinel and tombstones.
func (n *RGATreeListNode) Len() int {
	if n.elem == nil || n.isRemoved() {
		return 0
	}
	return 1
}

func (n *RGATreeListNode) String() string {
	if n.elem == nil || n.isRemoved() {
		return ""
	}
	return n.elem.Marshal()
}

// RGATreeList is the move-aware RGA backing the array container.
type RGATreeList struct {
	head               *RGATreeListNode
	last               *RGATreeListNode
	nodeMapByCreatedAt map[clock.Ticket]*RGATreeListNode
	nodeTree           *splay.Tree[*RGATreeListNode]
}

// NewRGATreeList creates an empty list with its head sentinel.
func NewRGATreeList() *RGATreeList {
	head := &RGATreeListNode{}
	tree := splay.NewTree[*RGATreeListNode]()
	head.indexNode = tree.Insert(head)

	return &RGATreeList{
		head:               head,
		last:               head,
		nodeMapByCreatedAt: map[clock.Ticket]*RGATreeListNode{clock.InitialTicket: head},
		nodeTree:           tree,
	}
}

// Len returns the number of live entries.
func (l *RGATreeList) Len() int {
	return l.nodeTree.Len()
}

// Add appends the element at the end of the list.
func (l *RGATreeList) Add(elem Element) error {
	return l.InsertAfter(l.last.CreatedAt(), elem, elem.CreatedAt())
}

// InsertAfter places elem after the entry created at prevCreatedAt,
// skipping entries positioned later than executedAt so that concurrent
// inserts at the same anchor converge with the later write closest to it.
func (l *RGATreeList) InsertAfter(prevCreatedAt clock.Ticket, elem Element, executedAt clock.Ticket) error {
	prev, ok := l.nodeMapByCreatedAt[prevCreatedAt]
	if !ok {
		return fmt.Errorf("insert after %s: %w", prevCreatedAt, ErrElementNotFound)
	}
	if _, dup := l.nodeMapByCreatedAt[elem.CreatedAt()]; dup {
		return nil
	}

	at := prev
	for at.next != nil && at.next.PositionedAt().After(executedAt) {
		at = at.next
	}

	l.insertAfterNode(at, &RGATreeListNode{elem: elem})
	return nil
}

// MoveAfter repositions the entry created at createdAt to follow the entry
// created at prevCreatedAt. A move carrying an older ticket than the entry's
// current movedAt loses and is discarded.
func (l *RGATreeList) MoveAfter(prevCreatedAt, createdAt, executedAt clock.Ticket) error {
	prev, ok := l.nodeMapByCreatedAt[prevCreatedAt]
	if !ok {
		return fmt.Errorf("move after %s: %w", prevCreatedAt, ErrElementNotFound)
	}
	node, ok := l.nodeMapByCreatedAt[createdAt]
	if !ok {
		return fmt.Errorf("move %s: %w", createdAt, ErrElementNotFound)
	}

	if node.elem.MovedAt() != nil && !executedAt.After(*node.elem.MovedAt()) {
		return nil
	}

	at := prev
	if at == node {
		at = node.prev
	}
	l.unlink(node)
	for at.next != nil && at.next.PositionedAt().After(executedAt) {
		at = at.next
	}

	moved := executedAt
	node.elem.SetMovedAt(&moved)
	fresh := &RGATreeListNode{elem: node.elem}
	delete(l.nodeMapByCreatedAt, createdAt)
	l.insertAfterNode(at, fresh)
	return nil
}

// Get returns the idx-th live entry.
func (l *RGATreeList) Get(idx int) (*RGATreeListNode, error) {
	if idx < 0 || idx >= l.Len() {
		return nil, fmt.Errorf("array index %d of %d: %w", idx, l.Len(), ErrOutOfRange)
	}
	splayNode, offset, err := l.nodeTree.Find(idx)
	if err != nil {
		return nil, err
	}
	node := splayNode.Value()
	// The index tree resolves boundaries to the preceding entry; step
	// forward to the live entry actually holding the index.
	if node == l.head || offset > 0 || node.isRemoved() {
		for node.next != nil {
			node = node.next
			if !node.isRemoved() {
				break
			}
		}
	}
	if node == l.head || node.isRemoved() {
		return nil, fmt.Errorf("array index %d: %w", idx, ErrElementNotFound)
	}
	return node, nil
}

// FindByCreatedAt returns the entry created at the ticket.
func (l *RGATreeList) FindByCreatedAt(createdAt clock.Ticket) (*RGATreeListNode, bool) {
	node, ok := l.nodeMapByCreatedAt[createdAt]
	if !ok || node == l.head {
		return nil, false
	}
	return node, true
}

// IndexOf returns the live index of the entry created at the ticket, -1 for
// tombstones and unknown tickets.
func (l *RGATreeList) IndexOf(createdAt clock.Ticket) int {
	node, ok := l.nodeMapByCreatedAt[createdAt]
	if !ok || node == l.head || node.isRemoved() {
		return -1
	}
	return l.nodeTree.IndexOf(node.indexNode)
}

// Delete tombstones the entry created at the ticket.
func (l *RGATreeList) Delete(createdAt clock.Ticket, removedAt *clock.Ticket) (Element, error) {
	node, ok := l.nodeMapByCreatedAt[createdAt]
	if !ok || node == l.head {
		return nil, fmt.Errorf("array delete %s: %w", createdAt, ErrElementNotFound)
	}
	if node.elem.Remove(removedAt) {
		l.nodeTree.UpdateWeight(node.indexNode)
		return node.elem, nil
	}
	return nil, nil
}

// LastCreatedAt returns the creation ticket of the trailing entry, the
// initial ticket when empty.
func (l *RGATreeList) LastCreatedAt() clock.Ticket {
	return l.last.CreatedAt()
}

// Nodes returns every entry in order, tombstones included.
func (l *RGATreeList) Nodes() []*RGATreeListNode {
	var nodes []*RGATreeListNode
	for n := l.head.next; n != nil; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}

// Purge physically drops a tombstoned entry.
func (l *RGATreeList) Purge(elem Element) error {
	node, ok := l.nodeMapByCreatedAt[elem.CreatedAt()]
	if !ok || node == l.head || node.elem != elem {
		return nil
	}
	l.unlink(node)
	delete(l.nodeMapByCreatedAt, elem.CreatedAt())
	return nil
}

func (l *RGATreeList) insertAfterNode(prev, node *RGATreeListNode) {
	node.prev = prev
	node.next = prev.next
	if prev.next != nil {
		prev.next.prev = node
	}
	prev.next = node
	if prev == l.last {
		l.last = node
	}

	node.indexNode = l.nodeTree.InsertAfter(prev.indexNode, node)
	l.nodeMapByCreatedAt[node.CreatedAt()] = node
}

func (l *RGATreeList) unlink(node *RGATreeListNode) {
	node.prev.next = node.next
	if node.next != nil {
		node.next.prev = node.prev
	}
	if l.last == node {
		l.last = node.prev
	}
	l.nodeTree.Delete(node.indexNode)
	node.prev = nil
	node.next = nil
	node.indexNode = nil
}
