package crdt

import (
	"sort"

	"github.com/collabkit/docsync/clock"
)

// ElementRHTNode binds a member key to one candidate element.
type ElementRHTNode struct {
	key  string
	elem Element
}

// Key returns the member key.
func (n *ElementRHTNode) Key() string {
	return n.key
}

// Element returns the candidate element.
func (n *ElementRHTNode) Element() Element {
	return n.elem
}

// ElementRHT stores object members. Each key keeps the candidate with the
// largest creation ticket as its winner; displaced candidates are tombstoned
// and handed back for the removed-element registry.
type ElementRHT struct {
	nodeMapByKey       map[string]*ElementRHTNode
	nodeMapByCreatedAt map[clock.Ticket]*ElementRHTNode
	keyOrder           []string
}

// NewElementRHT creates an empty member table.
func NewElementRHT() *ElementRHT {
	return &ElementRHT{
		nodeMapByKey:       make(map[string]*ElementRHTNode),
		nodeMapByCreatedAt: make(map[clock.Ticket]*ElementRHTNode),
	}
}

// Set registers elem as a candidate under key. The candidate with the larger
// creation ticket wins; the loser is tombstoned with the winner's ticket and
// returned so the caller can pin it for garbage collection.
func (r *ElementRHT) Set(key string, elem Element) Element {
	node := &ElementRHTNode{key: key, elem: elem}
	r.nodeMapByCreatedAt[elem.CreatedAt()] = node

	prev, ok := r.nodeMapByKey[key]
	if !ok {
		r.nodeMapByKey[key] = node
		r.keyOrder = append(r.keyOrder, key)
		return nil
	}

	if elem.CreatedAt().After(prev.elem.CreatedAt()) {
		r.nodeMapByKey[key] = node
		if prev.elem.RemovedAt() == nil {
			removedAt := elem.CreatedAt()
			if prev.elem.Remove(&removedAt) {
				return prev.elem
			}
		}
		return nil
	}

	// Late-arriving loser: tombstone it immediately with the winner's
	// creation ticket so both replicas account the same garbage.
	removedAt := prev.elem.CreatedAt()
	if elem.RemovedAt() == nil && elem.Remove(&removedAt) {
		return elem
	}
	return nil
}

// Get returns the live winner under key.
func (r *ElementRHT) Get(key string) (Element, bool) {
	node, ok := r.nodeMapByKey[key]
	if !ok || node.elem.RemovedAt() != nil {
		return nil, false
	}
	return node.elem, true
}

// GetByCreatedAt returns any candidate by its creation ticket.
func (r *ElementRHT) GetByCreatedAt(createdAt clock.Ticket) (Element, bool) {
	node, ok := r.nodeMapByCreatedAt[createdAt]
	if !ok {
		return nil, false
	}
	return node.elem, true
}

// Has reports whether key resolves to a live element.
func (r *ElementRHT) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// DeleteByCreatedAt tombstones the candidate created at the ticket.
func (r *ElementRHT) DeleteByCreatedAt(createdAt clock.Ticket, removedAt *clock.Ticket) (Element, bool) {
	node, ok := r.nodeMapByCreatedAt[createdAt]
	if !ok {
		return nil, false
	}
	if node.elem.Remove(removedAt) {
		return node.elem, true
	}
	return nil, false
}

// Delete tombstones the current winner under key.
func (r *ElementRHT) Delete(key string, removedAt *clock.Ticket) (Element, bool) {
	node, ok := r.nodeMapByKey[key]
	if !ok {
		return nil, false
	}
	if node.elem.Remove(removedAt) {
		return node.elem, true
	}
	return nil, false
}

// SubPathOf returns the member key owning the candidate, for path
// resolution.
func (r *ElementRHT) SubPathOf(createdAt clock.Ticket) (string, bool) {
	node, ok := r.nodeMapByCreatedAt[createdAt]
	if !ok {
		return "", false
	}
	return node.key, true
}

// Candidates returns every candidate, winners and losers, in ascending
// creation-ticket order. Replaying Set over this sequence reproduces the
// table, which is what persistence relies on.
func (r *ElementRHT) Candidates() []*ElementRHTNode {
	nodes := make([]*ElementRHTNode, 0, len(r.nodeMapByCreatedAt))
	for _, node := range r.nodeMapByCreatedAt {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].elem.CreatedAt().Compare(nodes[j].elem.CreatedAt()) < 0
	})
	return nodes
}

// Nodes returns the winner per key in first-insertion order.
func (r *ElementRHT) Nodes() []*ElementRHTNode {
	nodes := make([]*ElementRHTNode, 0, len(r.nodeMapByKey))
	for _, key := range r.keyOrder {
		if node, ok := r.nodeMapByKey[key]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Len returns the number of live keys.
func (r *ElementRHT) Len() int {
	count := 0
	for _, node := range r.nodeMapByKey {
		if node.elem.RemovedAt() == nil {
			count++
		}
	}
	return count
}

// DeepCopy returns an independent copy of every candidate, winners and
// tombstoned losers alike.
func (r *ElementRHT) DeepCopy() *ElementRHT {
	copied := NewElementRHT()
	for createdAt, node := range r.nodeMapByCreatedAt {
		copied.nodeMapByCreatedAt[createdAt] = &ElementRHTNode{key: node.key, elem: node.elem.DeepCopy()}
	}
	for key, node := range r.nodeMapByKey {
		copied.nodeMapByKey[key] = copied.nodeMapByCreatedAt[node.elem.CreatedAt()]
	}
	copied.keyOrder = append([]string(nil), r.keyOrder...)
	return copied
}

// purge drops a tombstoned candidate entirely.
func (r *ElementRHT) purge(elem Element) {
	node, ok := r.nodeMapByCreatedAt[elem.CreatedAt()]
	if !ok || node.elem != elem {
		return
	}
	delete(r.nodeMapByCreatedAt, elem.CreatedAt())

	if winner, ok := r.nodeMapByKey[node.key]; ok && winner == node {
		delete(r.nodeMapByKey, node.key)
		for i, key := range r.keyOrder {
			if key == node.key {
				r.keyOrder = append(r.keyOrder[:i], r.keyOrder[i+1:]...)
				break
			}
		}
	}
}
