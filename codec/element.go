// Package codec adapts the logical exchange shapes to bytes. The document
// core never depends on a wire format; this package is the JSON adapter used
// for snapshots, durable state and pack exchange.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
)

// Element kind tags on the wire.
const (
	kindObject    = "object"
	kindArray     = "array"
	kindPrimitive = "primitive"
	kindCounter   = "counter"
	kindText      = "text"
	kindTree      = "tree"
)

type wireElement struct {
	Kind      string        `json:"kind"`
	CreatedAt clock.Ticket  `json:"createdAt"`
	MovedAt   *clock.Ticket `json:"movedAt,omitempty"`
	RemovedAt *clock.Ticket `json:"removedAt,omitempty"`

	// primitive
	ValueType int    `json:"valueType,omitempty"`
	Value     string `json:"value,omitempty"`

	// counter
	CounterType  int   `json:"counterType,omitempty"`
	CounterValue int64 `json:"counterValue,omitempty"`

	// object
	Members []wireMember `json:"members,omitempty"`

	// array
	Entries []*wireElement `json:"entries,omitempty"`

	// text
	TextNodes []wireTextNode `json:"textNodes,omitempty"`

	// tree
	TreeRoot *wireTreeNode `json:"treeRoot,omitempty"`
}

type wireMember struct {
	Key     string       `json:"key"`
	Element *wireElement `json:"element"`
}

type wireTextNode struct {
	ID        crdt.RGATreeSplitNodeID `json:"id"`
	Value     string                  `json:"value"`
	Attrs     []wireRHTNode           `json:"attrs,omitempty"`
	RemovedAt *clock.Ticket           `json:"removedAt,omitempty"`
}

type wireRHTNode struct {
	Key       string       `json:"key"`
	Value     string       `json:"value"`
	UpdatedAt clock.Ticket `json:"updatedAt"`
	Removed   bool         `json:"removed,omitempty"`
}

type wireTreeNode struct {
	ID        crdt.TreeNodeID `json:"id"`
	Type      string          `json:"type"`
	Value     string          `json:"value,omitempty"`
	Attrs     []wireRHTNode   `json:"attrs,omitempty"`
	RemovedAt *clock.Ticket   `json:"removedAt,omitempty"`
	Children  []*wireTreeNode `json:"children,omitempty"`
}

func toWireElement(elem crdt.Element) (*wireElement, error) {
	wire := &wireElement{
		CreatedAt: elem.CreatedAt(),
		MovedAt:   elem.MovedAt(),
		RemovedAt: elem.RemovedAt(),
	}
	switch e := elem.(type) {
	case *crdt.Primitive:
		wire.Kind = kindPrimitive
		wire.ValueType = int(e.ValueType())
		wire.Value = encodePrimitiveValue(e)
	case *crdt.Counter:
		wire.Kind = kindCounter
		wire.CounterType = int(e.CounterType())
		wire.CounterValue = e.Value()
	case *crdt.Object:
		wire.Kind = kindObject
		for _, node := range e.MemberNodes() {
			member, err := toWireElement(node.Element())
			if err != nil {
				return nil, err
			}
			wire.Members = append(wire.Members, wireMember{Key: node.Key(), Element: member})
		}
	case *crdt.Array:
		wire.Kind = kindArray
		for _, node := range e.Nodes() {
			entry, err := toWireElement(node.Element())
			if err != nil {
				return nil, err
			}
			wire.Entries = append(wire.Entries, entry)
		}
	case *crdt.Text:
		wire.Kind = kindText
		for _, node := range e.Nodes() {
			wire.TextNodes = append(wire.TextNodes, wireTextNode{
				ID:        node.ID(),
				Value:     node.Value().String(),
				Attrs:     toWireRHT(node.Value().Attrs()),
				RemovedAt: node.RemovedAt(),
			})
		}
	case *crdt.Tree:
		wire.Kind = kindTree
		wire.TreeRoot = toWireTreeNode(e.Root())
	default:
		return nil, fmt.Errorf("codec: unsupported element %T", elem)
	}
	return wire, nil
}

func fromWireElement(wire *wireElement) (crdt.Element, error) {
	var elem crdt.Element
	switch wire.Kind {
	case kindPrimitive:
		value, err := decodePrimitiveValue(crdt.ValueType(wire.ValueType), wire.Value)
		if err != nil {
			return nil, err
		}
		prim, err := crdt.NewPrimitive(value, wire.CreatedAt)
		if err != nil {
			return nil, err
		}
		elem = prim
	case kindCounter:
		elem = crdt.NewCounter(crdt.CounterType(wire.CounterType), wire.CounterValue, wire.CreatedAt)
	case kindObject:
		members := crdt.NewElementRHT()
		obj := crdt.NewObject(members, wire.CreatedAt)
		for _, member := range wire.Members {
			child, err := fromWireElement(member.Element)
			if err != nil {
				return nil, err
			}
			obj.Set(member.Key, child)
		}
		elem = obj
	case kindArray:
		list := crdt.NewRGATreeList()
		arr := crdt.NewArray(list, wire.CreatedAt)
		for _, entry := range wire.Entries {
			child, err := fromWireElement(entry)
			if err != nil {
				return nil, err
			}
			if err := list.InsertAfter(list.LastCreatedAt(), child, child.CreatedAt()); err != nil {
				return nil, err
			}
		}
		elem = arr
	case kindText:
		split := crdt.NewRGATreeSplit(crdt.NewTextValue("", crdt.NewRHT()))
		prev := split.Head()
		for _, wireNode := range wire.TextNodes {
			value := crdt.NewTextValue(wireNode.Value, fromWireRHT(wireNode.Attrs))
			node := crdt.NewRGATreeSplitNode(wireNode.ID, value)
			node.SetRemovedAt(wireNode.RemovedAt)
			split.InsertAfter(prev, node)
			prev = node
		}
		split.RebuildInsertionChains()
		elem = crdt.NewText(split, wire.CreatedAt)
	case kindTree:
		root := fromWireTreeNode(wire.TreeRoot)
		elem = crdt.NewTree(root, wire.CreatedAt)
	default:
		return nil, fmt.Errorf("codec: unknown element kind %q", wire.Kind)
	}

	elem.SetMovedAt(wire.MovedAt)
	elem.SetRemovedAt(wire.RemovedAt)
	return elem, nil
}

func toWireRHT(rht *crdt.RHT) []wireRHTNode {
	var nodes []wireRHTNode
	for _, node := range rht.Nodes() {
		nodes = append(nodes, wireRHTNode{
			Key:       node.Key(),
			Value:     node.Value(),
			UpdatedAt: node.UpdatedAt(),
			Removed:   node.IsRemoved(),
		})
	}
	return nodes
}

func fromWireRHT(nodes []wireRHTNode) *crdt.RHT {
	rht := crdt.NewRHT()
	for _, node := range nodes {
		rht.SetInternal(node.Key, node.Value, node.UpdatedAt, node.Removed)
	}
	return rht
}

func toWireTreeNode(node *crdt.TreeNode) *wireTreeNode {
	wire := &wireTreeNode{
		ID:        node.ID(),
		Type:      node.Type(),
		Value:     node.Value(),
		Attrs:     toWireRHT(node.Attrs()),
		RemovedAt: node.RemovedAt(),
	}
	for _, child := range node.Children() {
		wire.Children = append(wire.Children, toWireTreeNode(child))
	}
	return wire
}

func fromWireTreeNode(wire *wireTreeNode) *crdt.TreeNode {
	node := crdt.NewTreeNode(wire.ID, wire.Type, fromWireRHT(wire.Attrs), wire.Value)
	node.SetRemovedAt(wire.RemovedAt)
	for _, child := range wire.Children {
		node.Append(fromWireTreeNode(child))
	}
	return node
}

func encodePrimitiveValue(p *crdt.Primitive) string {
	switch p.ValueType() {
	case crdt.ValueNull:
		return ""
	case crdt.ValueBoolean:
		if p.Value().(bool) {
			return "true"
		}
		return "false"
	case crdt.ValueInteger:
		return strconv.FormatInt(int64(p.Value().(int32)), 10)
	case crdt.ValueLong:
		return strconv.FormatInt(p.Value().(int64), 10)
	case crdt.ValueDouble:
		return strconv.FormatFloat(p.Value().(float64), 'g', -1, 64)
	case crdt.ValueString:
		return p.Value().(string)
	case crdt.ValueBytes:
		return base64.StdEncoding.EncodeToString(p.Value().([]byte))
	case crdt.ValueDate:
		return p.Value().(time.Time).UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func decodePrimitiveValue(valueType crdt.ValueType, value string) (interface{}, error) {
	switch valueType {
	case crdt.ValueNull:
		return nil, nil
	case crdt.ValueBoolean:
		return value == "true", nil
	case crdt.ValueInteger:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("codec: integer %q: %v", value, err)
		}
		return int32(n), nil
	case crdt.ValueLong:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("codec: long %q: %v", value, err)
		}
		return n, nil
	case crdt.ValueDouble:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("codec: double %q: %v", value, err)
		}
		return f, nil
	case crdt.ValueString:
		return value, nil
	case crdt.ValueBytes:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("codec: bytes %q: %v", value, err)
		}
		return b, nil
	case crdt.ValueDate:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("codec: date %q: %v", value, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("codec: unknown value type %d", valueType)
	}
}

// EncodeRoot serializes a document root, tombstones included.
func EncodeRoot(root *crdt.Root) ([]byte, error) {
	wire, err := toWireElement(root.Object())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

// DecodeRoot rebuilds a document root from EncodeRoot bytes.
func DecodeRoot(data []byte) (*crdt.Root, error) {
	var wire wireElement
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("codec: decode root: %v", err)
	}
	elem, err := fromWireElement(&wire)
	if err != nil {
		return nil, err
	}
	obj, ok := elem.(*crdt.Object)
	if !ok {
		return nil, fmt.Errorf("codec: snapshot root is %T", elem)
	}
	return crdt.NewRoot(obj), nil
}
