package crdt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/internal/llrb"
	"github.com/collabkit/docsync/internal/splay"
)

// RGATreeSplitNodeID addresses a split node: the insertion ticket plus the
// offset of this piece within the original insertion.
type RGATreeSplitNodeID struct {
	CreatedAt clock.Ticket `json:"createdAt"`
	Offset    int          `json:"offset"`
}

// Compare orders IDs by creation ticket, then offset.
func (id RGATreeSplitNodeID) Compare(other RGATreeSplitNodeID) int {
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
func (id RGATreeSplitNodeID) Key() string {
	return id.CreatedAt.Key() + ":" + strconv.Itoa(id.Offset)
}

// RGATreeSplitPos addresses a boundary inside a node's content.
type RGATreeSplitPos struct {
	ID             RGATreeSplitNodeID `json:"id"`
	RelativeOffset int                `json:"relativeOffset"`
}

// AbsoluteID folds the relative offset into the node ID.
func (p RGATreeSplitPos) AbsoluteID() RGATreeSplitNodeID {
	return RGATreeSplitNodeID{
		CreatedAt: p.ID.CreatedAt,
		Offset:    p.ID.Offset + p.RelativeOffset,
	}
}

// SplitValue is content storable in a split node: it knows its length and can
// split itself at an offset, leaving the receiver with the left half.
type SplitValue[V any] interface {
	Len() int
	String() string
	Split(offset int) V
	DeepCopy() V
}

// ContentChange reports one observable edit on the flattened content.
type ContentChange struct {
	From    int
	To      int
	Content string
}

// RGATreeSplitNode is a run of content in the split sequence.
type RGATreeSplitNode[V SplitValue[V]] struct {
	id        RGATreeSplitNodeID
	value     V
	removedAt *clock.Ticket

	prev    *RGATreeSplitNode[V]
	next    *RGATreeSplitNode[V]
	insPrev *RGATreeSplitNode[V]
	insNext *RGATreeSplitNode[V]

	indexNode *splay.Node[*RGATreeSplitNode[V]]
}

// NewRGATreeSplitNode creates a detached node.
func NewRGATreeSplitNode[V SplitValue[V]](id RGATreeSplitNodeID, value V) *RGATreeSplitNode[V] {
	return &RGATreeSplitNode[V]{id: id, value: value}
}

// ID returns the node's split ID.
func (n *RGATreeSplitNode[V]) ID() RGATreeSplitNodeID {
	return n.id
}

// Value returns the content run.
func (n *RGATreeSplitNode[V]) Value() V {
	return n.value
}

// Next returns the following node in sequence order.
func (n *RGATreeSplitNode[V]) Next() *RGATreeSplitNode[V] {
	return n.next
}

// RemovedAt returns the tombstone ticket, nil while live.
func (n *RGATreeSplitNode[V]) RemovedAt() *clock.Ticket {
	return n.removedAt
}

// IDString identifies the node for garbage bookkeeping.
func (n *RGATreeSplitNode[V]) IDString() string {
	return n.id.Key()
}

// IsRemoved reports whether the node is tombstoned.
func (n *RGATreeSplitNode[V]) IsRemoved() bool {
	return n.removedAt != nil
}

func (n *RGATreeSplitNode[V]) contentLen() int {
	return n.value.Len()
}

func (n *RGATreeSplitNode[V]) createdAt() clock.Ticket {
	return n.id.CreatedAt
}

// Len is the index weight: live content length, zero when tombstoned.
func (n *RGATreeSplitNode[V]) Len() int {
	if n.removedAt != nil {
		return 0
	}
	return n.contentLen()
}

func (n *RGATreeSplitNode[V]) String() string {
	if n.removedAt != nil {
		return ""
	}
	return n.value.String()
}

// canDelete reports whether this edit may tombstone the node: the editor
// must have observed the node's insertion, and any existing tombstone must
// be older.
func (n *RGATreeSplitNode[V]) canDelete(executedAt clock.Ticket, versions clock.Vector) bool {
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

func (n *RGATreeSplitNode[V]) split(offset int) *RGATreeSplitNode[V] {
	right := &RGATreeSplitNode[V]{
		id: RGATreeSplitNodeID{
			CreatedAt: n.id.CreatedAt,
			Offset:    n.id.Offset + offset,
		},
		value: n.value.Split(offset),
	}
	if n.removedAt != nil {
		removed := *n.removedAt
		right.removedAt = &removed
	}
	return right
}

// RGATreeSplit is the splittable RGA sequence backing the text type: a
// doubly-linked list of runs with a weighted splay index and an ID-ordered
// registry for position resolution.
type RGATreeSplit[V SplitValue[V]] struct {
	head        *RGATreeSplitNode[V]
	treeByIndex *splay.Tree[*RGATreeSplitNode[V]]
	treeByID    *llrb.Tree[RGATreeSplitNodeID, *RGATreeSplitNode[V]]
}

// NewRGATreeSplit creates the sequence with a zero-length head sentinel.
func NewRGATreeSplit[V SplitValue[V]](initialValue V) *RGATreeSplit[V] {
	head := NewRGATreeSplitNode(RGATreeSplitNodeID{CreatedAt: clock.InitialTicket}, initialValue)
	treeByIndex := splay.NewTree[*RGATreeSplitNode[V]]()
	head.indexNode = treeByIndex.Insert(head)

	treeByID := llrb.New[RGATreeSplitNodeID, *RGATreeSplitNode[V]](
		func(a, b RGATreeSplitNodeID) int { return a.Compare(b) },
	)
	treeByID.Put(head.id, head)

	return &RGATreeSplit[V]{
		head:        head,
		treeByIndex: treeByIndex,
		treeByID:    treeByID,
	}
}

// Len returns the live content length.
func (s *RGATreeSplit[V]) Len() int {
	return s.treeByIndex.Len()
}

// Head returns the sentinel node.
func (s *RGATreeSplit[V]) Head() *RGATreeSplitNode[V] {
	return s.head
}

// FindNodePos maps a content index to a position.
func (s *RGATreeSplit[V]) FindNodePos(index int) (RGATreeSplitPos, error) {
	node, offset, err := s.treeByIndex.Find(index)
	if err != nil {
		return RGATreeSplitPos{}, fmt.Errorf("find position %d: %w", index, ErrOutOfRange)
	}
	if node == nil {
		return RGATreeSplitPos{ID: s.head.id}, nil
	}
	return RGATreeSplitPos{ID: node.id, RelativeOffset: offset}, nil
}

// PosToIndex maps a position back to a content index.
func (s *RGATreeSplit[V]) PosToIndex(pos RGATreeSplitPos) (int, error) {
	node, err := s.findFloorNodePreferToLeft(pos.AbsoluteID())
	if err != nil {
		return 0, err
	}
	index := s.treeByIndex.IndexOf(node.indexNode)
	if !node.IsRemoved() {
		index += pos.AbsoluteID().Offset - node.id.Offset
	}
	return index, nil
}

// Edit replaces the range between from and to with content. Returned are the
// caret position after the edit, the nodes tombstoned by it, and the
// flattened content changes for subscribers.
func (s *RGATreeSplit[V]) Edit(
	from, to RGATreeSplitPos,
	content V,
	hasContent bool,
	executedAt clock.Ticket,
	versions clock.Vector,
) (RGATreeSplitPos, []*RGATreeSplitNode[V], []ContentChange, error) {
	_, toRight, err := s.findNodeWithSplit(to, executedAt)
	if err != nil {
		return RGATreeSplitPos{}, nil, nil, err
	}
	fromLeft, fromRight, err := s.findNodeWithSplit(from, executedAt)
	if err != nil {
		return RGATreeSplitPos{}, nil, nil, err
	}

	fromIdx := s.boundaryIndex(fromRight)
	toIdx := s.boundaryIndex(toRight)

	var removed []*RGATreeSplitNode[V]
	for node := fromRight; node != nil && node != toRight; node = node.next {
		if !node.canDelete(executedAt, versions) {
			continue
		}
		tombstone := executedAt
		node.removedAt = &tombstone
		s.treeByIndex.UpdateWeight(node.indexNode)
		removed = append(removed, node)
	}

	var changes []ContentChange
	if fromIdx < toIdx {
		changes = append(changes, ContentChange{From: fromIdx, To: toIdx})
	}

	caret := RGATreeSplitPos{ID: fromLeft.id, RelativeOffset: fromLeft.contentLen()}
	if hasContent {
		inserted := s.InsertAfter(fromLeft, NewRGATreeSplitNode(RGATreeSplitNodeID{CreatedAt: executedAt}, content))
		caret = RGATreeSplitPos{ID: inserted.id, RelativeOffset: inserted.contentLen()}
		changes = append(changes, ContentChange{From: fromIdx, To: fromIdx, Content: content.String()})
	}
	return caret, removed, changes, nil
}

// FindEditRange splits both boundaries and returns (fromLeft, fromRight,
// toRight) for callers that walk the covered runs, e.g. styling.
func (s *RGATreeSplit[V]) FindEditRange(
	from, to RGATreeSplitPos,
	executedAt clock.Ticket,
) (*RGATreeSplitNode[V], *RGATreeSplitNode[V], *RGATreeSplitNode[V], error) {
	_, toRight, err := s.findNodeWithSplit(to, executedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	fromLeft, fromRight, err := s.findNodeWithSplit(from, executedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	return fromLeft, fromRight, toRight, nil
}

// InsertAfter links the node immediately after prev.
func (s *RGATreeSplit[V]) InsertAfter(prev, node *RGATreeSplitNode[V]) *RGATreeSplitNode[V] {
	node.prev = prev
	node.next = prev.next
	if prev.next != nil {
		prev.next.prev = node
	}
	prev.next = node

	node.indexNode = s.treeByIndex.InsertAfter(prev.indexNode, node)
	s.treeByID.Put(node.id, node)
	return node
}

// SetRemovedAt writes the tombstone ticket directly; used when decoding
// persisted state.
func (n *RGATreeSplitNode[V]) SetRemovedAt(t *clock.Ticket) {
	n.removedAt = t
}

// RebuildInsertionChains relinks insPrev/insNext across pieces of the same
// insertion, identified by a shared creation ticket and ascending offsets.
// Called after decoding a persisted sequence.
func (s *RGATreeSplit[V]) RebuildInsertionChains() {
	chains := make(map[clock.Ticket][]*RGATreeSplitNode[V])
	for n := s.head.next; n != nil; n = n.next {
		chains[n.id.CreatedAt] = append(chains[n.id.CreatedAt], n)
	}
	for _, chain := range chains {
		sort.Slice(chain, func(i, j int) bool { return chain[i].id.Offset < chain[j].id.Offset })
		for i := 0; i < len(chain); i++ {
			if i > 0 {
				chain[i].insPrev = chain[i-1]
			}
			if i+1 < len(chain) {
				chain[i].insNext = chain[i+1]
			}
		}
	}
}

// Nodes returns every run in sequence order, tombstones included, excluding
// the sentinel.
func (s *RGATreeSplit[V]) Nodes() []*RGATreeSplitNode[V] {
	var nodes []*RGATreeSplitNode[V]
	for n := s.head.next; n != nil; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}

// Purge physically unlinks a tombstoned run.
func (s *RGATreeSplit[V]) Purge(child GCChild) error {
	node, ok := child.(*RGATreeSplitNode[V])
	if !ok {
		return fmt.Errorf("split purge: %w", ErrInvalidType)
	}
	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	}
	if node.insPrev != nil {
		node.insPrev.insNext = node.insNext
	}
	if node.insNext != nil {
		node.insNext.insPrev = node.insPrev
	}
	s.treeByIndex.Delete(node.indexNode)
	s.treeByID.Remove(node.id)
	node.prev = nil
	node.next = nil
	node.insPrev = nil
	node.insNext = nil
	return nil
}

// DeepCopy rebuilds an independent sequence preserving tombstones and
// insertion links.
func (s *RGATreeSplit[V]) DeepCopy() *RGATreeSplit[V] {
	copied := NewRGATreeSplit(s.head.value.DeepCopy())
	byID := map[RGATreeSplitNodeID]*RGATreeSplitNode[V]{s.head.id: copied.head}

	prevCopy := copied.head
	for n := s.head.next; n != nil; n = n.next {
		c := NewRGATreeSplitNode(n.id, n.value.DeepCopy())
		if n.removedAt != nil {
			removed := *n.removedAt
			c.removedAt = &removed
		}
		copied.InsertAfter(prevCopy, c)
		byID[n.id] = c
		prevCopy = c
	}
	for n := s.head.next; n != nil; n = n.next {
		c := byID[n.id]
		if n.insPrev != nil {
			c.insPrev = byID[n.insPrev.id]
		}
		if n.insNext != nil {
			c.insNext = byID[n.insNext.id]
		}
	}
	return copied
}

// String concatenates the live content.
func (s *RGATreeSplit[V]) String() string {
	var sb strings.Builder
	for n := s.head.next; n != nil; n = n.next {
		if n.removedAt == nil {
			sb.WriteString(n.value.String())
		}
	}
	return sb.String()
}

// IndexOfNode returns the flattened index where the node's content starts.
func (s *RGATreeSplit[V]) IndexOfNode(node *RGATreeSplitNode[V]) int {
	return s.treeByIndex.IndexOf(node.indexNode)
}

func (s *RGATreeSplit[V]) boundaryIndex(node *RGATreeSplitNode[V]) int {
	if node == nil {
		return s.Len()
	}
	return s.treeByIndex.IndexOf(node.indexNode)
}

func (s *RGATreeSplit[V]) findNodeWithSplit(
	pos RGATreeSplitPos,
	executedAt clock.Ticket,
) (*RGATreeSplitNode[V], *RGATreeSplitNode[V], error) {
	absoluteID := pos.AbsoluteID()
	node, err := s.findFloorNodePreferToLeft(absoluteID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.splitNode(node, absoluteID.Offset-node.id.Offset); err != nil {
		return nil, nil, err
	}
	for node.next != nil && node.next.createdAt().After(executedAt) {
		node = node.next
	}
	return node, node.next, nil
}

func (s *RGATreeSplit[V]) findFloorNodePreferToLeft(id RGATreeSplitNodeID) (*RGATreeSplitNode[V], error) {
	node := s.findFloorNode(id)
	if node == nil {
		return nil, fmt.Errorf("find node %s: %w", id.Key(), ErrElementNotFound)
	}
	if id.Offset > 0 && node.id.Offset == id.Offset {
		if node.insPrev == nil {
			return nil, fmt.Errorf("find node %s: missing insertion link: %w", id.Key(), ErrElementNotFound)
		}
		node = node.insPrev
	}
	return node, nil
}

func (s *RGATreeSplit[V]) findFloorNode(id RGATreeSplitNodeID) *RGATreeSplitNode[V] {
	key, node, ok := s.treeByID.Floor(id)
	if !ok {
		return nil
	}
	if key.Compare(id) != 0 && key.CreatedAt.Compare(id.CreatedAt) != 0 {
		return nil
	}
	return node
}

// splitNode splits the node at the content offset so the boundary falls
// between nodes. Splitting is idempotent for the same (id, offset).
func (s *RGATreeSplit[V]) splitNode(node *RGATreeSplitNode[V], offset int) (*RGATreeSplitNode[V], error) {
	if offset > node.contentLen() {
		return nil, fmt.Errorf("split at %d of %d: %w", offset, node.contentLen(), ErrOutOfRange)
	}
	if offset == 0 {
		return node, nil
	}
	if offset == node.contentLen() {
		return node.next, nil
	}

	right := node.split(offset)
	s.treeByIndex.UpdateWeight(node.indexNode)
	s.InsertAfter(node, right)

	right.insPrev = node
	right.insNext = node.insNext
	if node.insNext != nil {
		node.insNext.insPrev = right
	}
	node.insNext = right

	return right, nil
}
