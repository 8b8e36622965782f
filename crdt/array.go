package crdt

import (
	"strings"

	"github.com/collabkit/docsync/clock"
)

// Array is the replicated ordered-sequence container.
type Array struct {
	elementMeta
	elements *RGATreeList
}

// NewArray creates an array over the given backbone.
func NewArray(elements *RGATreeList, createdAt clock.Ticket) *Array {
	return &Array{
		elementMeta: elementMeta{createdAt: createdAt},
		elements:    elements,
	}
}

// Add appends the element.
func (a *Array) Add(elem Element) error {
	return a.elements.Add(elem)
}

// InsertAfter places elem after the entry created at prevCreatedAt.
func (a *Array) InsertAfter(prevCreatedAt clock.Ticket, elem Element, executedAt clock.Ticket) error {
	return a.elements.InsertAfter(prevCreatedAt, elem, executedAt)
}

// MoveAfter repositions an entry; the later executedAt wins a race.
func (a *Array) MoveAfter(prevCreatedAt, createdAt, executedAt clock.Ticket) error {
	return a.elements.MoveAfter(prevCreatedAt, createdAt, executedAt)
}

// Get returns the idx-th live element.
func (a *Array) Get(idx int) (Element, error) {
	node, err := a.elements.Get(idx)
	if err != nil {
		return nil, err
	}
	return node.Element(), nil
}

// FindPrevCreatedAt returns the creation ticket of the entry preceding the
// entry created at the ticket, for building insert-before operations.
func (a *Array) FindPrevCreatedAt(createdAt clock.Ticket) (clock.Ticket, error) {
	node, ok := a.elements.FindByCreatedAt(createdAt)
	if !ok {
		return clock.InitialTicket, ErrElementNotFound
	}
	for prev := node.prev; prev != nil; prev = prev.prev {
		if prev.elem == nil || !prev.isRemoved() {
			return prev.CreatedAt(), nil
		}
	}
	return clock.InitialTicket, nil
}

// IndexOf returns the live index of the entry created at the ticket.
func (a *Array) IndexOf(createdAt clock.Ticket) int {
	return a.elements.IndexOf(createdAt)
}

// DeleteByCreatedAt tombstones the entry created at the ticket.
func (a *Array) DeleteByCreatedAt(createdAt clock.Ticket, removedAt *clock.Ticket) (Element, error) {
	return a.elements.Delete(createdAt, removedAt)
}

// Delete tombstones the idx-th live element.
func (a *Array) Delete(idx int, removedAt *clock.Ticket) (Element, error) {
	node, err := a.elements.Get(idx)
	if err != nil {
		return nil, err
	}
	return a.elements.Delete(node.CreatedAt(), removedAt)
}

// Set replaces the entry created at target with elem atomically: the new
// element is inserted at the entry's position and the entry is tombstoned
// with the same ticket.
func (a *Array) Set(target clock.Ticket, elem Element, executedAt clock.Ticket) (Element, error) {
	if err := a.elements.InsertAfter(target, elem, executedAt); err != nil {
		return nil, err
	}
	removedAt := executedAt
	return a.elements.Delete(target, &removedAt)
}

// Len returns the number of live elements.
func (a *Array) Len() int {
	return a.elements.Len()
}

// LastCreatedAt returns the creation ticket of the trailing entry.
func (a *Array) LastCreatedAt() clock.Ticket {
	return a.elements.LastCreatedAt()
}

// SubPathOf returns the live index as a path segment.
func (a *Array) SubPathOf(createdAt clock.Ticket) (int, bool) {
	idx := a.elements.IndexOf(createdAt)
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// Nodes returns every entry in order, tombstones included.
func (a *Array) Nodes() []*RGATreeListNode {
	return a.elements.Nodes()
}

// Members returns the live elements in order.
func (a *Array) Members() []Element {
	var members []Element
	for _, node := range a.elements.Nodes() {
		if !node.isRemoved() {
			members = append(members, node.Element())
		}
	}
	return members
}

// Descendants walks every entry transitively, tombstones included.
func (a *Array) Descendants(callback func(elem Element, parent Container) bool) {
	for _, node := range a.elements.Nodes() {
		if callback(node.Element(), a) {
			return
		}
		if container, ok := node.Element().(Container); ok {
			container.Descendants(callback)
		}
	}
}

// Purge physically drops a tombstoned entry.
func (a *Array) Purge(elem Element) error {
	return a.elements.Purge(elem)
}

// Marshal renders the live elements as a JSON array.
func (a *Array) Marshal() string {
	return a.marshal(false)
}

// ToSortedJSON renders the array with canonical children.
func (a *Array) ToSortedJSON() string {
	return a.marshal(true)
}

func (a *Array) marshal(sorted bool) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, member := range a.Members() {
		if i > 0 {
			sb.WriteString(",")
		}
		if sorted {
			sb.WriteString(member.ToSortedJSON())
		} else {
			sb.WriteString(member.Marshal())
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// DeepCopy returns an independent copy of the array and all entries.
func (a *Array) DeepCopy() Element {
	elements := NewRGATreeList()
	for _, node := range a.elements.Nodes() {
		copied := node.Element().DeepCopy()
		if err := elements.InsertAfter(elements.LastCreatedAt(), copied, copied.CreatedAt()); err != nil {
			continue
		}
	}
	copiedArray := &Array{elements: elements}
	a.elementMeta.copyTo(&copiedArray.elementMeta)
	return copiedArray
}

// DataSize accounts the array's own metadata; entries account themselves.
func (a *Array) DataSize() DataSize {
	return DataSize{Meta: a.metaSize()}
}
