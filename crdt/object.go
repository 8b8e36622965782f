package crdt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/collabkit/docsync/clock"
)

// Object is the replicated map container. Members resolve by creation-ticket
// priority inside an ElementRHT.
type Object struct {
	elementMeta
	members *ElementRHT
}

// NewObject creates an object with the given member table.
func NewObject(members *ElementRHT, createdAt clock.Ticket) *Object {
	return &Object{
		elementMeta: elementMeta{createdAt: createdAt},
		members:     members,
	}
}

// Set stores the element under key and returns the displaced element, if
// any, for the removed-element registry.
func (o *Object) Set(key string, elem Element) Element {
	return o.members.Set(key, elem)
}

// Get returns the live member under key.
func (o *Object) Get(key string) (Element, bool) {
	return o.members.Get(key)
}

// Has reports whether key resolves to a live member.
func (o *Object) Has(key string) bool {
	return o.members.Has(key)
}

// Delete tombstones the member under key.
func (o *Object) Delete(key string, removedAt *clock.Ticket) (Element, bool) {
	return o.members.Delete(key, removedAt)
}

// DeleteByCreatedAt tombstones the member created at the ticket.
func (o *Object) DeleteByCreatedAt(createdAt clock.Ticket, removedAt *clock.Ticket) (Element, error) {
	elem, ok := o.members.DeleteByCreatedAt(createdAt, removedAt)
	if !ok {
		return nil, fmt.Errorf("object delete %s: %w", createdAt, ErrElementNotFound)
	}
	return elem, nil
}

// SubPathOf returns the member key for path resolution.
func (o *Object) SubPathOf(createdAt clock.Ticket) (string, bool) {
	return o.members.SubPathOf(createdAt)
}

// MemberNodes returns every member candidate, losers included, in ascending
// creation-ticket order.
func (o *Object) MemberNodes() []*ElementRHTNode {
	return o.members.Candidates()
}

// Keys returns the live member keys in first-insertion order.
func (o *Object) Keys() []string {
	var keys []string
	for _, node := range o.members.Nodes() {
		if node.elem.RemovedAt() == nil {
			keys = append(keys, node.key)
		}
	}
	return keys
}

// Len returns the number of live members.
func (o *Object) Len() int {
	return o.members.Len()
}

// Descendants walks every member transitively.
func (o *Object) Descendants(callback func(elem Element, parent Container) bool) {
	for _, node := range o.members.nodeMapByCreatedAt {
		if callback(node.elem, o) {
			return
		}
		if container, ok := node.elem.(Container); ok {
			container.Descendants(callback)
		}
	}
}

// Purge physically drops a tombstoned member.
func (o *Object) Purge(elem Element) error {
	o.members.purge(elem)
	return nil
}

// Marshal renders live members in first-insertion order.
func (o *Object) Marshal() string {
	return o.marshal(false)
}

// ToSortedJSON renders live members with sorted keys, recursively canonical.
func (o *Object) ToSortedJSON() string {
	return o.marshal(true)
}

func (o *Object) marshal(sorted bool) string {
	type member struct {
		key  string
		elem Element
	}
	var live []member
	for _, node := range o.members.Nodes() {
		if node.elem.RemovedAt() == nil {
			live = append(live, member{key: node.key, elem: node.elem})
		}
	}
	if sorted {
		for i := 1; i < len(live); i++ {
			for j := i; j > 0 && live[j].key < live[j-1].key; j-- {
				live[j], live[j-1] = live[j-1], live[j]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("{")
	for i, m := range live {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(strconv.Quote(m.key))
		sb.WriteString(":")
		if sorted {
			sb.WriteString(m.elem.ToSortedJSON())
		} else {
			sb.WriteString(m.elem.Marshal())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// DeepCopy returns an independent copy of the object and all members.
func (o *Object) DeepCopy() Element {
	copied := &Object{members: o.members.DeepCopy()}
	o.elementMeta.copyTo(&copied.elementMeta)
	return copied
}

// DataSize accounts the object's own metadata; members account themselves.
func (o *Object) DataSize() DataSize {
	return DataSize{Meta: o.metaSize()}
}
