package change

import (
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/operations"
	"github.com/collabkit/docsync/presence"
)

// Context is the scratchpad of one transaction: it issues tickets with a
// monotonically increasing delimiter, accumulates the queued operations and
// builds the resulting change on commit.
type Context struct {
	id             ID
	message        string
	operations     []operations.Operation
	delimiter      uint32
	presenceChange *presence.Change
}

// NewContext opens a transaction context for the next change ID.
func NewContext(id ID, message string) *Context {
	return &Context{id: id, message: message}
}

// ID returns the change ID being built.
func (c *Context) ID() ID {
	return c.id
}

// IssueTimeTicket mints the next ticket of the transaction.
func (c *Context) IssueTimeTicket() clock.Ticket {
	c.delimiter++
	return c.id.NewTicket(c.delimiter)
}

// LastTimeTicket returns the most recently issued ticket.
func (c *Context) LastTimeTicket() clock.Ticket {
	return c.id.NewTicket(c.delimiter)
}

// Push queues an operation.
func (c *Context) Push(op operations.Operation) {
	c.operations = append(c.operations, op)
}

// SetPresenceChange attaches a presence mutation to the change.
func (c *Context) SetPresenceChange(pc *presence.Change) {
	c.presenceChange = pc
}

// HasChange reports whether committing would produce a change worth keeping.
func (c *Context) HasChange() bool {
	return len(c.operations) > 0 || c.presenceChange != nil
}

// HasOperations reports whether any document mutation was queued.
func (c *Context) HasOperations() bool {
	return len(c.operations) > 0
}

// ToChange seals the context into a change.
func (c *Context) ToChange() *Change {
	return New(c.id, c.operations, c.presenceChange, c.message)
}
