// Package clock implements the logical-time machinery shared by every
// replicated type: actor identifiers, Lamport tickets and version vectors.
package clock

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ActorIDSize is the width of an actor identifier in bytes.
const ActorIDSize = 16

// ActorID uniquely identifies one client activation.
type ActorID [ActorIDSize]byte

var (
	// InitialActor is the zero actor used by tickets that precede every
	// issued ticket.
	InitialActor = ActorID{}

	// MaxActor follows every real actor in the total order.
	MaxActor = ActorID{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// NewActorID mints a fresh random actor identifier.
func NewActorID() ActorID {
	return ActorID(uuid.New())
}

// ActorIDFromHex parses the hex form produced by String.
func ActorIDFromHex(s string) (ActorID, error) {
	var id ActorID
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse actor id: %v", err)
	}
	if len(decoded) != ActorIDSize {
		return id, fmt.Errorf("parse actor id: want %d bytes, got %d", ActorIDSize, len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

// ActorIDFromBytes builds an ActorID from a raw 16-byte slice.
func ActorIDFromBytes(b []byte) (ActorID, error) {
	var id ActorID
	if len(b) != ActorIDSize {
		return id, fmt.Errorf("parse actor id: want %d bytes, got %d", ActorIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the hex form of the actor ID.
func (id ActorID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare orders actors bytewise. Returns -1, 0 or 1.
func (id ActorID) Compare(other ActorID) int {
	return bytes.Compare(id[:], other[:])
}

// Bytes returns a copy of the raw identifier bytes.
func (id ActorID) Bytes() []byte {
	b := make([]byte, ActorIDSize)
	copy(b, id[:])
	return b
}

// MarshalJSON encodes the actor ID as its hex string.
func (id ActorID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the hex string form.
func (id *ActorID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ActorIDFromHex(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
