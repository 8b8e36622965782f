package crdt

import (
	"fmt"
	"strings"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/internal/llrb"
)

// TreeChange reports one observable mutation on the flattened tree content.
type TreeChange struct {
	From       int
	To         int
	Value      string
	Attributes map[string]string
	SplitLevel int
}

// Tree is the replicated hierarchical leaf: a rooted ordered tree of element
// and text nodes with position-based edits and per-node attributes.
type Tree struct {
	elementMeta
	root        *TreeNode
	nodeMapByID *llrb.Tree[TreeNodeID, *TreeNode]
}

// NewTree creates a tree element over the given root node.
func NewTree(root *TreeNode, createdAt clock.Ticket) *Tree {
	t := &Tree{
		elementMeta: elementMeta{createdAt: createdAt},
		root:        root,
		nodeMapByID: llrb.New[TreeNodeID, *TreeNode](func(a, b TreeNodeID) int { return a.Compare(b) }),
	}
	t.registerSubtree(root)
	return t
}

// Root returns the root node.
func (t *Tree) Root() *TreeNode {
	return t.root
}

// Size returns the flattened content length of the root.
func (t *Tree) Size() int {
	return t.root.Len()
}

// FindPos maps a flattened index to a stable position.
func (t *Tree) FindPos(index int) (TreePos, error) {
	if index < 0 || index > t.Size() {
		return TreePos{}, fmt.Errorf("tree index %d of %d: %w", index, t.Size(), ErrOutOfRange)
	}

	node := t.root
	rem := index
	for {
		live := node.liveChildren()
		slot := 0
		descended := false
		for _, child := range live {
			if rem == 0 {
				return t.slotPos(node, live, slot), nil
			}
			padded := child.PaddedLen()
			if rem < padded {
				if child.IsText() {
					return TreePos{
						ParentID: node.id,
						LeftSiblingID: TreeNodeID{
							CreatedAt: child.id.CreatedAt,
							Offset:    child.id.Offset + rem,
						},
					}, nil
				}
				node = child
				rem--
				descended = true
				break
			}
			rem -= padded
			slot++
		}
		if descended {
			continue
		}
		if rem == 0 {
			return t.slotPos(node, live, slot), nil
		}
		return TreePos{}, fmt.Errorf("tree index %d: %w", index, ErrOutOfRange)
	}
}

func (t *Tree) slotPos(parent *TreeNode, live []*TreeNode, slot int) TreePos {
	if slot == 0 {
		return TreePos{ParentID: parent.id, LeftSiblingID: parent.id}
	}
	prev := live[slot-1]
	if prev.IsText() {
		return TreePos{
			ParentID: parent.id,
			LeftSiblingID: TreeNodeID{
				CreatedAt: prev.id.CreatedAt,
				Offset:    prev.id.Offset + prev.textLen(),
			},
		}
	}
	return TreePos{ParentID: parent.id, LeftSiblingID: prev.id}
}

// PosToIndex maps a position back to a flattened index.
func (t *Tree) PosToIndex(pos TreePos) (int, error) {
	parent, left, err := t.resolvePos(pos)
	if err != nil {
		return 0, err
	}
	if left != nil && left.IsText() {
		rel := pos.LeftSiblingID.Offset - left.id.Offset
		if rel < left.textLen() {
			return t.indexOfNode(left) + rel, nil
		}
	}
	return t.boundaryIndex(parent, left), nil
}

// PathToIndex maps a path of child slots (with a trailing character offset
// inside text content) to a flattened index.
func (t *Tree) PathToIndex(path []int) (int, error) {
	node := t.root
	index := 0
	for i, p := range path {
		last := i == len(path)-1
		if p < 0 {
			return 0, fmt.Errorf("tree path segment %d: %w", p, ErrOutOfRange)
		}
		if node.hasTextChildren() {
			if !last || p > node.Len() {
				return 0, fmt.Errorf("tree path offset %d: %w", p, ErrOutOfRange)
			}
			return index + p, nil
		}
		live := node.liveChildren()
		if p > len(live) {
			return 0, fmt.Errorf("tree path slot %d of %d: %w", p, len(live), ErrOutOfRange)
		}
		for k := 0; k < p; k++ {
			index += live[k].PaddedLen()
		}
		if last {
			return index, nil
		}
		if p == len(live) {
			return 0, fmt.Errorf("tree path slot %d: %w", p, ErrOutOfRange)
		}
		node = live[p]
		index++
	}
	return index, nil
}

// IndexToPath maps a flattened index to a path.
func (t *Tree) IndexToPath(index int) ([]int, error) {
	if index < 0 || index > t.Size() {
		return nil, fmt.Errorf("tree index %d of %d: %w", index, t.Size(), ErrOutOfRange)
	}

	node := t.root
	rem := index
	var path []int
	for {
		if node.hasTextChildren() {
			return append(path, rem), nil
		}
		live := node.liveChildren()
		slot := 0
		descended := false
		for _, child := range live {
			if rem == 0 {
				return append(path, slot), nil
			}
			padded := child.PaddedLen()
			if rem < padded {
				path = append(path, slot)
				node = child
				rem--
				descended = true
				break
			}
			rem -= padded
			slot++
		}
		if !descended {
			return append(path, slot), nil
		}
	}
}

// PathToPos maps a path to a stable position.
func (t *Tree) PathToPos(path []int) (TreePos, error) {
	index, err := t.PathToIndex(path)
	if err != nil {
		return TreePos{}, err
	}
	return t.FindPos(index)
}

// Edit replaces the positional range with the content nodes, splitting up to
// splitLevel ancestor elements at the left boundary first. Split clones and
// their bookkeeping consume tickets from issueNext.
func (t *Tree) Edit(
	from, to TreePos,
	contents []*TreeNode,
	splitLevel int,
	executedAt clock.Ticket,
	issueNext func() clock.Ticket,
	versions clock.Vector,
) ([]TreeChange, []GCPair, error) {
	fromParent, fromLeft, err := t.FindNodesAndSplitText(from, executedAt)
	if err != nil {
		return nil, nil, err
	}
	toParent, toLeft, err := t.FindNodesAndSplitText(to, executedAt)
	if err != nil {
		return nil, nil, err
	}

	fromIdx := t.boundaryIndex(fromParent, fromLeft)
	toIdx := t.boundaryIndex(toParent, toLeft)
	if fromIdx > toIdx {
		return nil, nil, fmt.Errorf("tree edit range [%d,%d]: %w", fromIdx, toIdx, ErrOutOfRange)
	}

	var pairs []GCPair
	if fromIdx < toIdx {
		for _, target := range t.coveredNodes(fromIdx, toIdx) {
			pairs = append(pairs, t.removeSubtree(target, executedAt, versions)...)
		}
	}

	insertParent, insertLeft := fromParent, fromLeft
	for level := 0; level < splitLevel && insertParent != t.root; level++ {
		t.splitElement(insertParent, insertLeft, issueNext())
		insertLeft = insertParent
		insertParent = insertParent.parent
	}

	var value string
	if len(contents) > 0 {
		var sb strings.Builder
		for _, content := range contents {
			content.toXML(&sb)
		}
		value = sb.String()

		left := insertLeft
		for _, content := range contents {
			insertParent.insertAfterChild(left, content)
			t.registerSubtree(content)
			left = content
		}
	}

	change := TreeChange{From: fromIdx, To: toIdx, Value: value, SplitLevel: splitLevel}
	return []TreeChange{change}, pairs, nil
}

// Style applies attributes to every element node whose open token falls in
// the range.
func (t *Tree) Style(
	from, to TreePos,
	attrs map[string]string,
	executedAt clock.Ticket,
	versions clock.Vector,
) ([]TreeChange, []GCPair, error) {
	return t.style(from, to, attrs, nil, executedAt, versions)
}

// RemoveStyle removes the attribute keys from every element node in range.
func (t *Tree) RemoveStyle(
	from, to TreePos,
	keys []string,
	executedAt clock.Ticket,
	versions clock.Vector,
) ([]TreeChange, []GCPair, error) {
	return t.style(from, to, nil, keys, executedAt, versions)
}

func (t *Tree) style(
	from, to TreePos,
	attrs map[string]string,
	removeKeys []string,
	executedAt clock.Ticket,
	versions clock.Vector,
) ([]TreeChange, []GCPair, error) {
	fromParent, fromLeft, err := t.FindNodesAndSplitText(from, executedAt)
	if err != nil {
		return nil, nil, err
	}
	toParent, toLeft, err := t.FindNodesAndSplitText(to, executedAt)
	if err != nil {
		return nil, nil, err
	}

	fromIdx := t.boundaryIndex(fromParent, fromLeft)
	toIdx := t.boundaryIndex(toParent, toLeft)

	var pairs []GCPair
	var changes []TreeChange
	t.walkStyleTargets(t.root, 0, fromIdx, toIdx, func(node *TreeNode, openIdx int) {
		if versions.Len() > 0 && versions.Get(node.id.CreatedAt.Actor) < node.id.CreatedAt.Lamport {
			return
		}
		for k, v := range attrs {
			if displaced := node.attrs.Set(k, v, executedAt); displaced != nil {
				pairs = append(pairs, GCPair{Parent: node.attrs, Child: displaced})
			}
		}
		for _, k := range removeKeys {
			if removed := node.attrs.Remove(k, executedAt); removed != nil {
				pairs = append(pairs, GCPair{Parent: node.attrs, Child: removed})
			}
		}
		changes = append(changes, TreeChange{From: openIdx, To: openIdx + node.PaddedLen(), Attributes: attrs})
	})
	return changes, pairs, nil
}

// walkStyleTargets visits live element nodes whose open token index lies in
// [fromIdx, toIdx).
func (t *Tree) walkStyleTargets(parent *TreeNode, start, fromIdx, toIdx int, visit func(node *TreeNode, openIdx int)) {
	childStart := start
	for _, child := range parent.children {
		if child.removedAt != nil {
			continue
		}
		padded := child.PaddedLen()
		if !child.IsText() {
			if fromIdx <= childStart && childStart < toIdx {
				visit(child, childStart)
			}
			if childStart < toIdx && fromIdx < childStart+padded {
				t.walkStyleTargets(child, childStart+1, fromIdx, toIdx, visit)
			}
		}
		childStart += padded
	}
}

// FindNodesAndSplitText resolves a position to its parent node and left
// boundary node (nil for the leftmost slot), splitting a text node when the
// boundary falls inside one. Concurrent insertions at the same slot keep the
// later write closest to the anchor.
func (t *Tree) FindNodesAndSplitText(pos TreePos, executedAt clock.Ticket) (*TreeNode, *TreeNode, error) {
	parent, left, err := t.resolvePosForEdit(pos)
	if err != nil {
		return nil, nil, err
	}

	// RGA tie-break among siblings inserted at the same slot.
	idx := -1
	if left != nil {
		idx = left.indexInParent()
	}
	for idx+1 < len(parent.children) {
		next := parent.children[idx+1]
		if !next.id.CreatedAt.After(executedAt) {
			break
		}
		left = next
		idx++
	}
	return parent, left, nil
}

func (t *Tree) resolvePosForEdit(pos TreePos) (*TreeNode, *TreeNode, error) {
	parent, ok := t.nodeMapByID.Get(pos.ParentID)
	if !ok {
		return nil, nil, fmt.Errorf("tree position parent %s: %w", pos.ParentID.Key(), ErrElementNotFound)
	}
	if pos.LeftSiblingID == pos.ParentID {
		return parent, nil, nil
	}

	left, err := t.findFloorNode(pos.LeftSiblingID)
	if err != nil {
		return nil, nil, err
	}
	if left.IsText() {
		rel := pos.LeftSiblingID.Offset - left.id.Offset
		if rel < 0 || rel > left.textLen() {
			return nil, nil, fmt.Errorf("tree position offset %d: %w", rel, ErrOutOfRange)
		}
		if rel > 0 && rel < left.textLen() {
			right := left.splitText(rel)
			t.nodeMapByID.Put(right.id, right)
		}
		if rel == 0 {
			// Boundary before this piece: anchor at the previous sibling.
			prevIdx := left.indexInParent() - 1
			if prevIdx < 0 {
				left = nil
			} else {
				left = left.parent.children[prevIdx]
			}
		}
	}
	if left != nil && left.parent != parent {
		parent = left.parent
	}
	return parent, left, nil
}

// resolvePos resolves without splitting, for read-only index queries.
func (t *Tree) resolvePos(pos TreePos) (*TreeNode, *TreeNode, error) {
	parent, ok := t.nodeMapByID.Get(pos.ParentID)
	if !ok {
		return nil, nil, fmt.Errorf("tree position parent %s: %w", pos.ParentID.Key(), ErrElementNotFound)
	}
	if pos.LeftSiblingID == pos.ParentID {
		return parent, nil, nil
	}
	left, err := t.findFloorNode(pos.LeftSiblingID)
	if err != nil {
		return nil, nil, err
	}
	if left.parent != parent && left.parent != nil {
		parent = left.parent
	}
	return parent, left, nil
}

func (t *Tree) findFloorNode(id TreeNodeID) (*TreeNode, error) {
	key, node, ok := t.nodeMapByID.Floor(id)
	if !ok || (key.Compare(id) != 0 && key.CreatedAt.Compare(id.CreatedAt) != 0) {
		return nil, fmt.Errorf("tree node %s: %w", id.Key(), ErrElementNotFound)
	}
	return node, nil
}

// boundaryIndex computes the flattened index of the slot after left inside
// parent; a nil left denotes the parent's content start.
func (t *Tree) boundaryIndex(parent, left *TreeNode) int {
	if left == nil {
		return t.contentStartIndex(parent)
	}
	return t.indexOfNode(left) + left.PaddedLen()
}

func (t *Tree) contentStartIndex(node *TreeNode) int {
	if node == t.root {
		return 0
	}
	return t.indexOfNode(node) + 1
}

func (t *Tree) indexOfNode(node *TreeNode) int {
	index := 0
	for cur := node; cur.parent != nil; cur = cur.parent {
		for _, sib := range cur.parent.children {
			if sib == cur {
				break
			}
			index += sib.PaddedLen()
		}
		if cur.parent != t.root {
			index++
		}
	}
	return index
}

// coveredNodes returns the top-most live nodes whose whole token range lies
// inside [fromIdx, toIdx].
func (t *Tree) coveredNodes(fromIdx, toIdx int) []*TreeNode {
	var covered []*TreeNode
	var walk func(parent *TreeNode, start int)
	walk = func(parent *TreeNode, start int) {
		childStart := start
		for _, child := range parent.children {
			if child.removedAt != nil {
				continue
			}
			padded := child.PaddedLen()
			childEnd := childStart + padded
			if fromIdx <= childStart && childEnd <= toIdx {
				covered = append(covered, child)
			} else if childStart < toIdx && fromIdx < childEnd && !child.IsText() {
				walk(child, childStart+1)
			}
			childStart = childEnd
		}
	}
	walk(t.root, 0)
	return covered
}

// removeSubtree tombstones the node and its live descendants that the edit
// may causally delete, returning the garbage pairs.
func (t *Tree) removeSubtree(node *TreeNode, executedAt clock.Ticket, versions clock.Vector) []GCPair {
	var pairs []GCPair
	var walk func(n *TreeNode, parentRemoved bool)
	walk = func(n *TreeNode, parentRemoved bool) {
		if n.canDelete(executedAt, versions) {
			tombstone := executedAt
			n.removedAt = &tombstone
			if !parentRemoved {
				pairs = append(pairs, GCPair{Parent: t, Child: n})
			}
		}
		for _, child := range n.children {
			walk(child, n.removedAt != nil)
		}
	}
	walk(node, false)
	return pairs
}

// splitElement clones the element after the boundary child: children after
// boundary move into the clone, which becomes the element's next sibling.
func (t *Tree) splitElement(node, boundary *TreeNode, id clock.Ticket) *TreeNode {
	clone := NewTreeNode(TreeNodeID{CreatedAt: id}, node.nodeType, node.attrs.DeepCopy(), "")

	idx := 0
	if boundary != nil {
		idx = boundary.indexInParent() + 1
	}
	moved := node.children[idx:]
	node.children = node.children[:idx:idx]
	clone.Append(moved...)

	node.parent.insertAfterChild(node, clone)
	t.nodeMapByID.Put(clone.id, clone)
	return clone
}

func (t *Tree) registerSubtree(node *TreeNode) {
	t.nodeMapByID.Put(node.id, node)
	for _, child := range node.children {
		t.registerSubtree(child)
	}
}

// Purge physically unlinks a tombstoned subtree.
func (t *Tree) Purge(child GCChild) error {
	node, ok := child.(*TreeNode)
	if !ok {
		return fmt.Errorf("tree purge: %w", ErrInvalidType)
	}
	if node.parent == nil {
		return nil
	}
	node.parent.removeChild(node)
	t.deregisterSubtree(node)
	return nil
}

func (t *Tree) deregisterSubtree(node *TreeNode) {
	t.nodeMapByID.Remove(node.id)
	for _, child := range node.children {
		t.deregisterSubtree(child)
	}
}

// ToXML renders the live tree.
func (t *Tree) ToXML() string {
	var sb strings.Builder
	t.root.toXML(&sb)
	return sb.String()
}

// Marshal renders the live tree as JSON.
func (t *Tree) Marshal() string {
	var sb strings.Builder
	t.root.marshalJSON(&sb)
	return sb.String()
}

// ToSortedJSON is identical to Marshal; children are ordered and attributes
// render sorted.
func (t *Tree) ToSortedJSON() string {
	return t.Marshal()
}

// DeepCopy returns an independent copy of the whole tree.
func (t *Tree) DeepCopy() Element {
	copied := &Tree{
		root:        t.root.DeepCopy(),
		nodeMapByID: llrb.New[TreeNodeID, *TreeNode](func(a, b TreeNodeID) int { return a.Compare(b) }),
	}
	t.elementMeta.copyTo(&copied.elementMeta)
	copied.registerSubtree(copied.root)
	return copied
}

// DataSize accounts text bytes and per-node metadata.
func (t *Tree) DataSize() DataSize {
	size := DataSize{Meta: t.metaSize()}
	var walk func(n *TreeNode)
	walk = func(n *TreeNode) {
		size.Meta += ticketWeight
		if n.removedAt == nil {
			if n.IsText() {
				size.Data += len(n.value)
			} else {
				size.Add(n.attrs.DataSize())
			}
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(t.root)
	return size
}
