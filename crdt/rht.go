package crdt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/collabkit/docsync/clock"
)

// RHTNode is one key's current record in a replicated hash table.
type RHTNode struct {
	key       string
	value     string
	updatedAt clock.Ticket
	removed   bool
}

// Key returns the attribute key.
func (n *RHTNode) Key() string {
	return n.key
}

// Value returns the attribute value.
func (n *RHTNode) Value() string {
	return n.value
}

// UpdatedAt returns the ticket of the winning write.
func (n *RHTNode) UpdatedAt() clock.Ticket {
	return n.updatedAt
}

// IsRemoved reports whether the key is tombstoned.
func (n *RHTNode) IsRemoved() bool {
	return n.removed
}

// IDString identifies the node for garbage bookkeeping.
func (n *RHTNode) IDString() string {
	return n.updatedAt.Key() + ":" + n.key
}

// RemovedAt returns the tombstone ticket, nil while live.
func (n *RHTNode) RemovedAt() *clock.Ticket {
	if !n.removed {
		return nil
	}
	removed := n.updatedAt
	return &removed
}

// RHT is a replicated hash table with last-write-wins resolution per key.
// Removed keys are retained as tombstones so that a late-arriving set with a
// larger ticket still converges identically on every replica.
type RHT struct {
	nodes           map[string]*RHTNode
	numberOfRemoved int
}

// NewRHT creates an empty table.
func NewRHT() *RHT {
	return &RHT{nodes: make(map[string]*RHTNode)}
}

// Set writes the value under key when executedAt is later than the current
// record. It returns the displaced tombstone node, if any, for garbage
// bookkeeping.
func (r *RHT) Set(key, value string, executedAt clock.Ticket) *RHTNode {
	cur, ok := r.nodes[key]
	if ok && !executedAt.After(cur.updatedAt) {
		return nil
	}
	var displaced *RHTNode
	if ok && cur.removed {
		r.numberOfRemoved--
		displaced = cur
	}
	r.nodes[key] = &RHTNode{key: key, value: value, updatedAt: executedAt}
	return displaced
}

// Remove tombstones the key when executedAt is later than the current
// record's ticket and returns the tombstoned node. A remove that loses the
// race returns nil but the table still converges once the winning set
// arrives.
func (r *RHT) Remove(key string, executedAt clock.Ticket) *RHTNode {
	cur, ok := r.nodes[key]
	if ok && !executedAt.After(cur.updatedAt) {
		return nil
	}
	if !ok {
		// Tombstone for a key never seen; retained for convergence with a
		// late-arriving set.
		node := &RHTNode{key: key, updatedAt: executedAt, removed: true}
		r.nodes[key] = node
		r.numberOfRemoved++
		return node
	}
	if !cur.removed {
		r.numberOfRemoved++
	}
	node := &RHTNode{key: key, value: cur.value, updatedAt: executedAt, removed: true}
	r.nodes[key] = node
	return node
}

// SetInternal restores a record verbatim, tombstone state included. Used
// when decoding persisted state, not by operations.
func (r *RHT) SetInternal(key, value string, updatedAt clock.Ticket, removed bool) {
	if cur, ok := r.nodes[key]; ok && cur.removed {
		r.numberOfRemoved--
	}
	r.nodes[key] = &RHTNode{key: key, value: value, updatedAt: updatedAt, removed: removed}
	if removed {
		r.numberOfRemoved++
	}
}

// Get returns the live value under key.
func (r *RHT) Get(key string) (string, bool) {
	node, ok := r.nodes[key]
	if !ok || node.removed {
		return "", false
	}
	return node.value, true
}

// Has reports whether the key is live.
func (r *RHT) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Len returns the number of live keys.
func (r *RHT) Len() int {
	return len(r.nodes) - r.numberOfRemoved
}

// Elements returns the live key-value pairs.
func (r *RHT) Elements() map[string]string {
	elements := make(map[string]string, r.Len())
	for key, node := range r.nodes {
		if !node.removed {
			elements[key] = node.value
		}
	}
	return elements
}

// Nodes returns every record including tombstones, sorted by key.
func (r *RHT) Nodes() []*RHTNode {
	nodes := make([]*RHTNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].key < nodes[j].key })
	return nodes
}

// Purge physically drops a tombstoned record if it is still the current one.
func (r *RHT) Purge(child GCChild) error {
	node, ok := child.(*RHTNode)
	if !ok {
		return fmt.Errorf("rht purge: %w", ErrInvalidType)
	}
	cur, ok := r.nodes[node.key]
	if !ok || cur != node {
		return nil
	}
	delete(r.nodes, node.key)
	if cur.removed {
		r.numberOfRemoved--
	}
	return nil
}

// DeepCopy returns an independent copy including tombstones.
func (r *RHT) DeepCopy() *RHT {
	copied := NewRHT()
	for key, node := range r.nodes {
		copied.nodes[key] = &RHTNode{
			key:       node.key,
			value:     node.value,
			updatedAt: node.updatedAt,
			removed:   node.removed,
		}
	}
	copied.numberOfRemoved = r.numberOfRemoved
	return copied
}

// Marshal renders the live pairs as a JSON object with sorted keys.
func (r *RHT) Marshal() string {
	keys := make([]string, 0, r.Len())
	for key, node := range r.nodes {
		if !node.removed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.Quote(key))
		sb.WriteString(":")
		sb.WriteString(strconv.Quote(r.nodes[key].value))
	}
	sb.WriteString("}")
	return sb.String()
}

// DataSize accounts live attribute payloads and tombstone metadata.
func (r *RHT) DataSize() DataSize {
	var size DataSize
	for _, node := range r.nodes {
		if node.removed {
			size.Meta += ticketWeight
			continue
		}
		size.Data += len(node.key) + len(node.value)
		size.Meta += ticketWeight
	}
	return size
}
