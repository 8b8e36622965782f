package clock

import (
	"fmt"
	"math"
)

// Reserved lamport values. Initial precedes every issued ticket and Max
// follows every issued ticket.
const (
	InitialLamport   uint64 = 0
	MaxLamport       uint64 = math.MaxUint64
	InitialDelimiter uint32 = 0
	MaxDelimiter     uint32 = math.MaxUint32
)

// Ticket is a Lamport timestamp extended with a per-change delimiter and the
// issuing actor. Tickets identify every element and every structural edit.
type Ticket struct {
	Lamport   uint64  `json:"lamport"`
	Delimiter uint32  `json:"delimiter"`
	Actor     ActorID `json:"actor"`
}

var (
	// InitialTicket precedes every ticket issued by any actor.
	InitialTicket = Ticket{Lamport: InitialLamport, Delimiter: InitialDelimiter, Actor: InitialActor}

	// MaxTicket follows every ticket issued by any actor.
	MaxTicket = Ticket{Lamport: MaxLamport, Delimiter: MaxDelimiter, Actor: MaxActor}
)

// NewTicket builds a ticket. Reserved lamport values are rejected so that
// issued tickets never collide with Initial or Max.
func NewTicket(lamport uint64, delimiter uint32, actor ActorID) (Ticket, error) {
	if lamport == InitialLamport || lamport == MaxLamport {
		return Ticket{}, fmt.Errorf("ticket lamport %d is reserved", lamport)
	}
	return Ticket{Lamport: lamport, Delimiter: delimiter, Actor: actor}, nil
}

// Compare orders tickets lexicographically on (lamport, actor, delimiter).
func (t Ticket) Compare(other Ticket) int {
	if t.Lamport != other.Lamport {
		if t.Lamport < other.Lamport {
			return -1
		}
		return 1
	}
	if c := t.Actor.Compare(other.Actor); c != 0 {
		return c
	}
	if t.Delimiter != other.Delimiter {
		if t.Delimiter < other.Delimiter {
			return -1
		}
		return 1
	}
	return 0
}

// After reports whether t is strictly later than other.
func (t Ticket) After(other Ticket) bool {
	return t.Compare(other) > 0
}

// AfterOrEqual reports whether t is later than or equal to other.
func (t Ticket) AfterOrEqual(other Ticket) bool {
	return t.Compare(other) >= 0
}

// WithActor returns a copy of the ticket stamped with the given actor. Used
// when a change buffered before activation learns its real actor.
func (t Ticket) WithActor(actor ActorID) Ticket {
	t.Actor = actor
	return t
}

// Key returns the canonical string form, usable as a map key in serialized
// structures.
func (t Ticket) Key() string {
	return fmt.Sprintf("%d:%d:%s", t.Lamport, t.Delimiter, t.Actor)
}

// String returns the same form as Key.
func (t Ticket) String() string {
	return t.Key()
}
