package crdt

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/collabkit/docsync/clock"
)

// ValueType tags the concrete kind of a primitive value.
type ValueType int

// Primitive value kinds.
const (
	ValueNull ValueType = iota
	ValueBoolean
	ValueInteger
	ValueLong
	ValueDouble
	ValueString
	ValueBytes
	ValueDate
)

// Primitive is an immutable scalar leaf. Changing a primitive means
// replacing it with a newer element.
type Primitive struct {
	elementMeta
	valueType ValueType
	value     interface{}
}

// NewPrimitive creates a primitive from a Go value. Supported kinds are nil,
// bool, int32, int, int64, float64, string, []byte and time.Time.
func NewPrimitive(value interface{}, createdAt clock.Ticket) (*Primitive, error) {
	p := &Primitive{elementMeta: elementMeta{createdAt: createdAt}}
	switch v := value.(type) {
	case nil:
		p.valueType = ValueNull
		p.value = nil
	case bool:
		p.valueType = ValueBoolean
		p.value = v
	case int32:
		p.valueType = ValueInteger
		p.value = v
	case int:
		p.valueType = ValueInteger
		p.value = int32(v)
	case int64:
		p.valueType = ValueLong
		p.value = v
	case float64:
		p.valueType = ValueDouble
		p.value = v
	case string:
		p.valueType = ValueString
		p.value = v
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		p.valueType = ValueBytes
		p.value = buf
	case time.Time:
		p.valueType = ValueDate
		p.value = v
	default:
		return nil, fmt.Errorf("primitive: unsupported value type %T", value)
	}
	return p, nil
}

// ValueType returns the kind tag.
func (p *Primitive) ValueType() ValueType {
	return p.valueType
}

// Value returns the underlying Go value.
func (p *Primitive) Value() interface{} {
	return p.value
}

// IsNumeric reports whether the primitive can feed a counter.
func (p *Primitive) IsNumeric() bool {
	switch p.valueType {
	case ValueInteger, ValueLong, ValueDouble:
		return true
	default:
		return false
	}
}

// AsInt64 converts a numeric primitive to int64.
func (p *Primitive) AsInt64() (int64, error) {
	switch p.valueType {
	case ValueInteger:
		return int64(p.value.(int32)), nil
	case ValueLong:
		return p.value.(int64), nil
	case ValueDouble:
		return int64(p.value.(float64)), nil
	default:
		return 0, fmt.Errorf("primitive: %w: not numeric", ErrInvalidType)
	}
}

// Marshal renders the value as JSON.
func (p *Primitive) Marshal() string {
	switch p.valueType {
	case ValueNull:
		return "null"
	case ValueBoolean:
		if p.value.(bool) {
			return "true"
		}
		return "false"
	case ValueInteger:
		return strconv.FormatInt(int64(p.value.(int32)), 10)
	case ValueLong:
		return strconv.FormatInt(p.value.(int64), 10)
	case ValueDouble:
		return strconv.FormatFloat(p.value.(float64), 'f', -1, 64)
	case ValueString:
		return strconv.Quote(p.value.(string))
	case ValueBytes:
		return strconv.Quote(base64.StdEncoding.EncodeToString(p.value.([]byte)))
	case ValueDate:
		return strconv.Quote(p.value.(time.Time).UTC().Format(time.RFC3339Nano))
	default:
		return "null"
	}
}

// ToSortedJSON is identical to Marshal for scalars.
func (p *Primitive) ToSortedJSON() string {
	return p.Marshal()
}

// DeepCopy returns an independent copy preserving tickets.
func (p *Primitive) DeepCopy() Element {
	copied := &Primitive{valueType: p.valueType}
	p.elementMeta.copyTo(&copied.elementMeta)
	if b, ok := p.value.([]byte); ok {
		buf := make([]byte, len(b))
		copy(buf, b)
		copied.value = buf
	} else {
		copied.value = p.value
	}
	return copied
}

// DataSize accounts the payload bytes plus ticket metadata.
func (p *Primitive) DataSize() DataSize {
	var data int
	switch p.valueType {
	case ValueNull:
		data = 0
	case ValueBoolean:
		data = 1
	case ValueInteger:
		data = 4
	case ValueLong, ValueDouble, ValueDate:
		data = 8
	case ValueString:
		data = len(p.value.(string))
	case ValueBytes:
		data = len(p.value.([]byte))
	}
	return DataSize{Data: data, Meta: p.metaSize()}
}
