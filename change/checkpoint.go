// Package change defines the units of exchange between a document and its
// broker: individual changes with their IDs, the checkpoint high-water
// marks, and the packs that batch them.
package change

import "fmt"

// Checkpoint pairs the server and client sequence high-water marks of a
// document. Neither field ever regresses.
type Checkpoint struct {
	ServerSeq uint64 `json:"serverSeq"`
	ClientSeq uint32 `json:"clientSeq"`
}

// InitialCheckpoint is the checkpoint of a never-synchronized document.
var InitialCheckpoint = Checkpoint{}

// NextClientSeq returns a checkpoint with the client sequence advanced.
func (c Checkpoint) NextClientSeq() Checkpoint {
	c.ClientSeq++
	return c
}

// NextServerSeq returns a checkpoint with the server sequence set, when it
// is ahead.
func (c Checkpoint) NextServerSeq(serverSeq uint64) Checkpoint {
	if serverSeq > c.ServerSeq {
		c.ServerSeq = serverSeq
	}
	return c
}

// Forward merges the checkpoints field-wise, keeping the maxima.
func (c Checkpoint) Forward(other Checkpoint) Checkpoint {
	if other.ServerSeq > c.ServerSeq {
		c.ServerSeq = other.ServerSeq
	}
	if other.ClientSeq > c.ClientSeq {
		c.ClientSeq = other.ClientSeq
	}
	return c
}

// Equals reports field-wise equality.
func (c Checkpoint) Equals(other Checkpoint) bool {
	return c == other
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("serverSeq=%d clientSeq=%d", c.ServerSeq, c.ClientSeq)
}
