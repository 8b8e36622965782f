package crdt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/internal/llrb"
)

type rootPair struct {
	parent Container
	elem   Element
}

// Root owns every element of a document: the live registry keyed by creation
// ticket, the removed-element registry pinned for garbage collection, and
// the pairs of tombstoned inner nodes awaiting unlinking.
type Root struct {
	object            *Object
	elementPairMap    *llrb.Tree[clock.Ticket, rootPair]
	removedElementMap map[clock.Ticket]Element
	gcPairMap         map[string]GCPair
}

// NewRoot creates a root over the object, registering it and every
// descendant.
func NewRoot(object *Object) *Root {
	root := &Root{
		object: object,
		elementPairMap: llrb.New[clock.Ticket, rootPair](
			func(a, b clock.Ticket) int { return a.Compare(b) },
		),
		removedElementMap: make(map[clock.Ticket]Element),
		gcPairMap:         make(map[string]GCPair),
	}
	root.registerPair(nil, object)
	object.Descendants(func(elem Element, parent Container) bool {
		root.registerPair(parent, elem)
		if elem.RemovedAt() != nil {
			root.removedElementMap[elem.CreatedAt()] = elem
		}
		return false
	})
	return root
}

// Object returns the document's top-level object.
func (r *Root) Object() *Object {
	return r.object
}

// FindByCreatedAt returns the element created at the ticket.
func (r *Root) FindByCreatedAt(createdAt clock.Ticket) Element {
	pair, ok := r.elementPairMap.Get(createdAt)
	if !ok {
		return nil
	}
	return pair.elem
}

// RegisterElement places the element, and every descendant of a container,
// into the live registry.
func (r *Root) RegisterElement(parent Container, elem Element) {
	r.registerPair(parent, elem)
	if container, ok := elem.(Container); ok {
		container.Descendants(func(descendant Element, p Container) bool {
			r.registerPair(p, descendant)
			return false
		})
	}
}

func (r *Root) registerPair(parent Container, elem Element) {
	r.elementPairMap.Put(elem.CreatedAt(), rootPair{parent: parent, elem: elem})
}

// RegisterRemovedElement pins a tombstoned element until garbage collection.
func (r *Root) RegisterRemovedElement(elem Element) {
	r.removedElementMap[elem.CreatedAt()] = elem
}

// RegisterGCPair pins a tombstoned inner node. Re-registering the same child
// replaces the earlier pair.
func (r *Root) RegisterGCPair(pair GCPair) {
	r.gcPairMap[pair.Child.IDString()] = pair
}

// ElementMapLen returns the size of the live registry.
func (r *Root) ElementMapLen() int {
	return r.elementPairMap.Len()
}

// GarbageLen counts elements and inner nodes awaiting collection.
func (r *Root) GarbageLen() int {
	seen := make(map[clock.Ticket]bool)
	for createdAt, elem := range r.removedElementMap {
		seen[createdAt] = true
		if container, ok := elem.(Container); ok {
			container.Descendants(func(descendant Element, _ Container) bool {
				seen[descendant.CreatedAt()] = true
				return false
			})
		}
	}
	return len(seen) + len(r.gcPairMap)
}

// CreatePath returns the dotted path of the element created at the ticket.
func (r *Root) CreatePath(createdAt clock.Ticket) (string, error) {
	var segments []string
	at := createdAt
	for {
		pair, ok := r.elementPairMap.Get(at)
		if !ok {
			return "", fmt.Errorf("create path %s: %w", at, ErrElementNotFound)
		}
		if pair.parent == nil {
			break
		}
		switch parent := pair.parent.(type) {
		case *Object:
			key, ok := parent.SubPathOf(at)
			if !ok {
				return "", fmt.Errorf("create path %s: %w", at, ErrElementNotFound)
			}
			segments = append(segments, escapePathSegment(key))
		case *Array:
			idx, ok := parent.SubPathOf(at)
			if !ok {
				return "", fmt.Errorf("create path %s: %w", at, ErrElementNotFound)
			}
			segments = append(segments, strconv.Itoa(idx))
		default:
			return "", fmt.Errorf("create path %s: %w", at, ErrInvalidType)
		}
		at = pair.parent.CreatedAt()
	}

	var sb strings.Builder
	sb.WriteString("$")
	for i := len(segments) - 1; i >= 0; i-- {
		sb.WriteString(".")
		sb.WriteString(segments[i])
	}
	return sb.String(), nil
}

func escapePathSegment(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '\\':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// GarbageCollect purges every removed element and pinned inner node whose
// tombstone has been observed by all actors in minVector, returning the
// number of purged entries.
func (r *Root) GarbageCollect(minVector clock.Vector) (int, error) {
	count := 0

	for createdAt, elem := range r.removedElementMap {
		removedAt := elem.RemovedAt()
		if removedAt == nil || !minVector.AfterOrEqual(*removedAt) {
			continue
		}
		pair, ok := r.elementPairMap.Get(createdAt)
		if ok && pair.parent != nil {
			if err := pair.parent.Purge(elem); err != nil {
				return count, err
			}
		}
		count += r.deregisterElement(elem)
		delete(r.removedElementMap, createdAt)
	}

	for key, pair := range r.gcPairMap {
		removedAt := pair.Child.RemovedAt()
		if removedAt == nil || !minVector.AfterOrEqual(*removedAt) {
			continue
		}
		if err := pair.Parent.Purge(pair.Child); err != nil {
			return count, err
		}
		delete(r.gcPairMap, key)
		count++
	}

	return count, nil
}

// GarbageCollectByTicket purges entries whose tombstone is at or before the
// minimum synced ticket, for brokers that report a single ticket instead of
// a vector.
func (r *Root) GarbageCollectByTicket(min clock.Ticket) (int, error) {
	count := 0

	for createdAt, elem := range r.removedElementMap {
		removedAt := elem.RemovedAt()
		if removedAt == nil || removedAt.After(min) {
			continue
		}
		pair, ok := r.elementPairMap.Get(createdAt)
		if ok && pair.parent != nil {
			if err := pair.parent.Purge(elem); err != nil {
				return count, err
			}
		}
		count += r.deregisterElement(elem)
		delete(r.removedElementMap, createdAt)
	}

	for key, pair := range r.gcPairMap {
		removedAt := pair.Child.RemovedAt()
		if removedAt == nil || removedAt.After(min) {
			continue
		}
		if err := pair.Parent.Purge(pair.Child); err != nil {
			return count, err
		}
		delete(r.gcPairMap, key)
		count++
	}

	return count, nil
}

func (r *Root) deregisterElement(elem Element) int {
	count := 0
	deregister := func(e Element) {
		r.elementPairMap.Remove(e.CreatedAt())
		delete(r.removedElementMap, e.CreatedAt())
		count++
	}
	deregister(elem)
	if container, ok := elem.(Container); ok {
		container.Descendants(func(descendant Element, _ Container) bool {
			deregister(descendant)
			return false
		})
	}
	return count
}

// DocSize aggregates the live footprint and the garbage awaiting collection.
func (r *Root) DocSize() DocSize {
	var size DocSize
	r.elementPairMap.Ascend(func(_ clock.Ticket, pair rootPair) bool {
		if pair.elem.RemovedAt() == nil {
			size.Live.Add(pair.elem.DataSize())
		}
		return true
	})
	for _, elem := range r.removedElementMap {
		size.GC.Add(elem.DataSize())
	}
	for range r.gcPairMap {
		size.GC.Meta += ticketWeight
	}
	return size
}

// DeepCopy rebuilds an independent root from a deep copy of the object tree.
// Garbage pairs are not carried over; collection always runs against the
// live root.
func (r *Root) DeepCopy() *Root {
	return NewRoot(r.object.DeepCopy().(*Object))
}
