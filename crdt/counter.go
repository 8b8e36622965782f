package crdt

import (
	"fmt"
	"strconv"

	"github.com/collabkit/docsync/clock"
)

// CounterType tags the arithmetic width of a counter.
type CounterType int

// Counter widths.
const (
	IntCnt CounterType = iota
	LongCnt
)

// Counter is a replicated numeric accumulator. Concurrent increases commute
// by construction.
type Counter struct {
	elementMeta
	counterType CounterType
	value       int64
}

// NewCounter creates a counter of the given width.
func NewCounter(counterType CounterType, value int64, createdAt clock.Ticket) *Counter {
	c := &Counter{
		elementMeta: elementMeta{createdAt: createdAt},
		counterType: counterType,
		value:       value,
	}
	if counterType == IntCnt {
		c.value = int64(int32(value))
	}
	return c
}

// CounterType returns the width tag.
func (c *Counter) CounterType() CounterType {
	return c.counterType
}

// Value returns the current accumulated value.
func (c *Counter) Value() int64 {
	return c.value
}

// Increase adds the numeric primitive to the counter. Non-numeric primitives
// are rejected.
func (c *Counter) Increase(p *Primitive) error {
	if !p.IsNumeric() {
		return fmt.Errorf("counter increase: %w: %v", ErrInvalidType, p.ValueType())
	}
	delta, err := p.AsInt64()
	if err != nil {
		return err
	}
	if c.counterType == IntCnt {
		c.value = int64(int32(c.value) + int32(delta))
		return nil
	}
	c.value += delta
	return nil
}

// Marshal renders the current value.
func (c *Counter) Marshal() string {
	return strconv.FormatInt(c.value, 10)
}

// ToSortedJSON is identical to Marshal for counters.
func (c *Counter) ToSortedJSON() string {
	return c.Marshal()
}

// DeepCopy returns an independent copy preserving tickets.
func (c *Counter) DeepCopy() Element {
	copied := &Counter{counterType: c.counterType, value: c.value}
	c.elementMeta.copyTo(&copied.elementMeta)
	return copied
}

// DataSize accounts the value width plus ticket metadata.
func (c *Counter) DataSize() DataSize {
	data := 8
	if c.counterType == IntCnt {
		data = 4
	}
	return DataSize{Data: data, Meta: c.metaSize()}
}
