// Package crdt implements the replicated data types of the document: the
// object and array containers, text, tree and counter leaves, and the root
// registry that owns every element and drives garbage collection.
package crdt

import (
	"errors"

	"github.com/collabkit/docsync/clock"
)

// Errors returned by CRDT structures.
var (
	// ErrElementNotFound is returned when a ticket does not resolve to a
	// live element.
	ErrElementNotFound = errors.New("element not found")

	// ErrOutOfRange is returned for positions outside the addressable range.
	ErrOutOfRange = errors.New("index out of range")

	// ErrInvalidType is returned when an element has an unexpected kind.
	ErrInvalidType = errors.New("invalid element type")
)

// Element is a node of the replicated document graph. Every element carries
// its creation ticket and, once tombstoned, the removal ticket.
type Element interface {
	// Marshal renders the element as JSON in natural member order.
	Marshal() string

	// ToSortedJSON renders the element as canonical JSON with sorted object
	// keys, byte-identical across converged replicas.
	ToSortedJSON() string

	// DeepCopy returns a structurally independent copy preserving all
	// tickets.
	DeepCopy() Element

	// CreatedAt returns the creation ticket.
	CreatedAt() clock.Ticket

	// MovedAt returns the latest move ticket, nil if never moved.
	MovedAt() *clock.Ticket

	// SetMovedAt records the latest move ticket.
	SetMovedAt(t *clock.Ticket)

	// RemovedAt returns the tombstone ticket, nil while live.
	RemovedAt() *clock.Ticket

	// Remove tombstones the element when removedAt is later than both the
	// creation ticket and any existing tombstone. Reports whether the
	// element transitioned to removed.
	Remove(removedAt *clock.Ticket) bool

	// SetRemovedAt writes the tombstone ticket directly; used when decoding
	// persisted state, not by operations.
	SetRemovedAt(t *clock.Ticket)

	// DataSize returns the accounted size of this element alone.
	DataSize() DataSize
}

// Container is an element owning child elements addressable by creation
// ticket.
type Container interface {
	Element

	// Descendants walks every child element transitively, including
	// tombstoned ones, until the callback returns true to stop.
	Descendants(callback func(elem Element, parent Container) bool)

	// DeleteByCreatedAt tombstones the child created at the ticket and
	// returns it.
	DeleteByCreatedAt(createdAt clock.Ticket, removedAt *clock.Ticket) (Element, error)

	// Purge physically drops a tombstoned child from the container.
	Purge(elem Element) error
}

// elementMeta carries the three lifecycle tickets shared by all elements.
type elementMeta struct {
	createdAt clock.Ticket
	movedAt   *clock.Ticket
	removedAt *clock.Ticket
}

func (m *elementMeta) CreatedAt() clock.Ticket {
	return m.createdAt
}

func (m *elementMeta) MovedAt() *clock.Ticket {
	return m.movedAt
}

func (m *elementMeta) SetMovedAt(t *clock.Ticket) {
	m.movedAt = t
}

func (m *elementMeta) RemovedAt() *clock.Ticket {
	return m.removedAt
}

func (m *elementMeta) SetRemovedAt(t *clock.Ticket) {
	m.removedAt = t
}

func (m *elementMeta) Remove(removedAt *clock.Ticket) bool {
	if removedAt == nil || !removedAt.After(m.createdAt) {
		return false
	}
	if m.removedAt != nil && !removedAt.After(*m.removedAt) {
		return false
	}
	m.removedAt = removedAt
	return true
}

func (m *elementMeta) metaSize() int {
	size := ticketWeight
	if m.movedAt != nil {
		size += ticketWeight
	}
	if m.removedAt != nil {
		size += ticketWeight
	}
	return size
}

func (m *elementMeta) copyTo(dst *elementMeta) {
	dst.createdAt = m.createdAt
	if m.movedAt != nil {
		moved := *m.movedAt
		dst.movedAt = &moved
	}
	if m.removedAt != nil {
		removed := *m.removedAt
		dst.removedAt = &removed
	}
}
