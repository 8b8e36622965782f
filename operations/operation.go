// Package operations defines the units of mutation exchanged between
// replicas. Every operation self-applies to a document root and reports the
// observable changes it made.
package operations

import (
	"errors"
	"fmt"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Operation failure kinds.
var (
	// ErrInvalidArgument marks a bad position, value or parent kind.
	ErrInvalidArgument = errors.New("invalid operation argument")

	// ErrParentNotFound marks an operation whose parent element is absent.
	ErrParentNotFound = errors.New("parent element not found")
)

// Info describes one observable change produced by executing an operation.
type Info struct {
	Type       string
	Path       string
	Key        string
	Index      int
	From       int
	To         int
	Value      string
	Attributes map[string]string
}

// Change kinds reported by Info.Type.
const (
	TypeSet       = "set"
	TypeAdd       = "add"
	TypeMove      = "move"
	TypeRemove    = "remove"
	TypeArraySet  = "array-set"
	TypeIncrease  = "increase"
	TypeEdit      = "edit"
	TypeStyle     = "style"
	TypeSelect    = "select"
	TypeTreeEdit  = "tree-edit"
	TypeTreeStyle = "tree-style"
)

// Operation is a value type that applies itself to a root. Execution either
// returns the observable changes or a typed failure; it never partially
// applies.
type Operation interface {
	// Execute applies the operation. The version vector carries the
	// causal context of the originating change for acceptance checks.
	Execute(root *crdt.Root, versions clock.Vector) ([]Info, error)

	// ExecutedAt returns the operation's ticket.
	ExecutedAt() clock.Ticket

	// SetActor stamps the actor into the operation's ticket. Only the
	// embedded executedAt is rewritten.
	SetActor(actor clock.ActorID)

	// ParentCreatedAt returns the creation ticket of the target parent.
	ParentCreatedAt() clock.Ticket
}

func findParent[T any](root *crdt.Root, createdAt clock.Ticket) (T, error) {
	var zero T
	elem := root.FindByCreatedAt(createdAt)
	if elem == nil {
		return zero, fmt.Errorf("parent %s: %w", createdAt, ErrParentNotFound)
	}
	parent, ok := elem.(T)
	if !ok {
		return zero, fmt.Errorf("parent %s has kind %T: %w", createdAt, elem, ErrInvalidArgument)
	}
	return parent, nil
}

func pathOf(root *crdt.Root, createdAt clock.Ticket) string {
	path, err := root.CreatePath(createdAt)
	if err != nil {
		return ""
	}
	return path
}
