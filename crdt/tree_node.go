package crdt

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/collabkit/docsync/clock"
)

// TextNodeType is the node type of opaque text leaves inside a tree.
const TextNodeType = "text"

// TreeNodeID addresses a tree node: its creation ticket plus the offset of
// this piece within the original text insertion. Element nodes always carry
// offset zero.
type TreeNodeID struct {
	CreatedAt clock.Ticket `json:"createdAt"`
	Offset    int          `json:"offset"`
}

// Compare orders IDs by creation ticket, then offset.
func (id TreeNodeID) Compare(other TreeNodeID) int {
	if c := id.CreatedAt.Compare(other.CreatedAt); c != 0 {
		return c
	}
	if id.Offset != other.Offset {
		if id.Offset < other.Offset {
			return -1
		}
		return 1
	}
	return 0
}

// Key returns the canonical string form.
func (id TreeNodeID) Key() string {
	return id.CreatedAt.Key() + ":" + strconv.Itoa(id.Offset)
}

// TreePos addresses a slot in the tree: the parent node plus the left
// sibling boundary. A position whose left sibling equals the parent denotes
// the parent's leftmost slot. Text boundaries fold the character offset into
// the sibling ID's offset.
type TreePos struct {
	ParentID      TreeNodeID `json:"parentID"`
	LeftSiblingID TreeNodeID `json:"leftSiblingID"`
}

// TreeNode is one node of the replicated tree: an element with ordered
// children and attributes, or a text leaf.
type TreeNode struct {
	id       TreeNodeID
	nodeType string
	value    string
	attrs    *RHT

	parent   *TreeNode
	children []*TreeNode

	removedAt *clock.Ticket
}

// NewTreeNode creates a detached node. Element nodes get an attribute table;
// text nodes carry their value.
func NewTreeNode(id TreeNodeID, nodeType string, attrs *RHT, value string) *TreeNode {
	if attrs == nil {
		attrs = NewRHT()
	}
	return &TreeNode{id: id, nodeType: nodeType, attrs: attrs, value: value}
}

// ID returns the node's ID.
func (n *TreeNode) ID() TreeNodeID {
	return n.id
}

// Type returns the node type.
func (n *TreeNode) Type() string {
	return n.nodeType
}

// Value returns the text content of a text leaf.
func (n *TreeNode) Value() string {
	return n.value
}

// Attrs returns the attribute table of an element node.
func (n *TreeNode) Attrs() *RHT {
	return n.attrs
}

// Parent returns the current parent node.
func (n *TreeNode) Parent() *TreeNode {
	return n.parent
}

// Children returns all child nodes including tombstones.
func (n *TreeNode) Children() []*TreeNode {
	return n.children
}

// IsText reports whether the node is a text leaf.
func (n *TreeNode) IsText() bool {
	return n.nodeType == TextNodeType
}

// IsRemoved reports whether the node is tombstoned.
func (n *TreeNode) IsRemoved() bool {
	return n.removedAt != nil
}

// RemovedAt returns the tombstone ticket, nil while live.
func (n *TreeNode) RemovedAt() *clock.Ticket {
	return n.removedAt
}

// SetRemovedAt writes the tombstone ticket directly; used when decoding
// persisted state.
func (n *TreeNode) SetRemovedAt(t *clock.Ticket) {
	n.removedAt = t
}

// IDString identifies the node for garbage bookkeeping.
func (n *TreeNode) IDString() string {
	return n.id.Key()
}

// Len returns the node's content length: characters for text, the summed
// padded lengths of live children for elements. Tombstoned nodes weigh zero.
func (n *TreeNode) Len() int {
	if n.removedAt != nil {
		return 0
	}
	if n.IsText() {
		return utf8.RuneCountInString(n.value)
	}
	total := 0
	for _, child := range n.children {
		total += child.PaddedLen()
	}
	return total
}

// PaddedLen returns the length the node occupies inside its parent: text
// counts characters, elements add two for the open and close tokens.
func (n *TreeNode) PaddedLen() int {
	if n.removedAt != nil {
		return 0
	}
	if n.IsText() {
		return n.Len()
	}
	return n.Len() + 2
}

// textLen returns the character count regardless of tombstoning.
func (n *TreeNode) textLen() int {
	return utf8.RuneCountInString(n.value)
}

func (n *TreeNode) liveChildren() []*TreeNode {
	var live []*TreeNode
	for _, child := range n.children {
		if child.removedAt == nil {
			live = append(live, child)
		}
	}
	return live
}

// hasTextChildren reports whether the element's live content is text.
func (n *TreeNode) hasTextChildren() bool {
	for _, child := range n.children {
		if child.removedAt == nil {
			return child.IsText()
		}
	}
	return false
}

// canDelete reports whether an edit may tombstone this node.
func (n *TreeNode) canDelete(executedAt clock.Ticket, versions clock.Vector) bool {
	existed := false
	if versions.Len() > 0 {
		existed = versions.Get(n.id.CreatedAt.Actor) >= n.id.CreatedAt.Lamport
	} else {
		existed = executedAt.After(n.id.CreatedAt)
	}
	if !existed {
		return false
	}
	return n.removedAt == nil || executedAt.After(*n.removedAt)
}

// splitText splits a text leaf at the character offset, leaving the first
// piece in place and returning the remainder as the next sibling.
func (n *TreeNode) splitText(offset int) *TreeNode {
	runes := []rune(n.value)
	right := NewTreeNode(
		TreeNodeID{CreatedAt: n.id.CreatedAt, Offset: n.id.Offset + offset},
		TextNodeType,
		nil,
		string(runes[offset:]),
	)
	n.value = string(runes[:offset])
	if n.removedAt != nil {
		removed := *n.removedAt
		right.removedAt = &removed
	}

	right.parent = n.parent
	idx := n.indexInParent()
	n.parent.children = append(n.parent.children, nil)
	copy(n.parent.children[idx+2:], n.parent.children[idx+1:])
	n.parent.children[idx+1] = right
	return right
}

func (n *TreeNode) indexInParent() int {
	for i, child := range n.parent.children {
		if child == n {
			return i
		}
	}
	return -1
}

// Append attaches children at the end.
func (n *TreeNode) Append(children ...*TreeNode) {
	for _, child := range children {
		child.parent = n
		n.children = append(n.children, child)
	}
}

// insertAfterChild places node after the given left sibling; a nil left
// sibling means the leftmost slot.
func (n *TreeNode) insertAfterChild(left, node *TreeNode) {
	node.parent = n
	idx := 0
	if left != nil {
		idx = left.indexInParent() + 1
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = node
}

// removeChild physically drops the child from the node.
func (n *TreeNode) removeChild(child *TreeNode) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// DeepCopy clones the subtree.
func (n *TreeNode) DeepCopy() *TreeNode {
	copied := NewTreeNode(n.id, n.nodeType, n.attrs.DeepCopy(), n.value)
	if n.removedAt != nil {
		removed := *n.removedAt
		copied.removedAt = &removed
	}
	for _, child := range n.children {
		copied.Append(child.DeepCopy())
	}
	return copied
}

// toXML renders the live subtree.
func (n *TreeNode) toXML(sb *strings.Builder) {
	if n.removedAt != nil {
		return
	}
	if n.IsText() {
		sb.WriteString(n.value)
		return
	}
	sb.WriteString("<" + n.nodeType)
	if n.attrs.Len() > 0 {
		keys := make([]string, 0, n.attrs.Len())
		for k := range n.attrs.Elements() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := n.attrs.Get(k)
			sb.WriteString(" " + k + `="` + v + `"`)
		}
	}
	sb.WriteString(">")
	for _, child := range n.children {
		child.toXML(sb)
	}
	sb.WriteString("</" + n.nodeType + ">")
}

// marshalJSON renders the live subtree as JSON.
func (n *TreeNode) marshalJSON(sb *strings.Builder) {
	sb.WriteString("{")
	sb.WriteString(`"type":` + strconv.Quote(n.nodeType))
	if n.IsText() {
		sb.WriteString(`,"value":` + strconv.Quote(n.value))
	} else {
		if n.attrs.Len() > 0 {
			sb.WriteString(`,"attributes":` + n.attrs.Marshal())
		}
		sb.WriteString(`,"children":[`)
		first := true
		for _, child := range n.children {
			if child.removedAt != nil {
				continue
			}
			if !first {
				sb.WriteString(",")
			}
			first = false
			child.marshalJSON(sb)
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
}
