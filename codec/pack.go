package codec

import (
	"encoding/json"
	"fmt"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/operations"
	"github.com/collabkit/docsync/presence"
)

// Numeric opcodes on the wire.
const (
	opcodeSet = iota
	opcodeAdd
	opcodeMove
	opcodeRemove
	opcodeEdit
	opcodeStyle
	opcodeSelect
	opcodeIncrease
	opcodeTreeEdit
	opcodeTreeStyle
	opcodeArraySet
)

type wireOperation struct {
	Opcode          int          `json:"op"`
	ParentCreatedAt clock.Ticket `json:"parentCreatedAt"`
	ExecutedAt      clock.Ticket `json:"executedAt"`

	PrevCreatedAt   *clock.Ticket `json:"prevCreatedAt,omitempty"`
	TargetCreatedAt *clock.Ticket `json:"targetCreatedAt,omitempty"`
	Key             string        `json:"key,omitempty"`
	Value           *wireElement  `json:"value,omitempty"`

	From     *crdt.RGATreeSplitPos `json:"from,omitempty"`
	To       *crdt.RGATreeSplitPos `json:"to,omitempty"`
	TreeFrom *crdt.TreePos         `json:"treeFrom,omitempty"`
	TreeTo   *crdt.TreePos         `json:"treeTo,omitempty"`

	Content            string            `json:"content,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	AttributesToRemove []string          `json:"attributesToRemove,omitempty"`
	Contents           []*wireTreeNode   `json:"contents,omitempty"`
	SplitLevel         int               `json:"splitLevel,omitempty"`
}

type wireChange struct {
	ClientSeq      uint32           `json:"clientSeq"`
	ServerSeq      uint64           `json:"serverSeq,omitempty"`
	Lamport        uint64           `json:"lamport"`
	Actor          clock.ActorID    `json:"actor"`
	Versions       clock.Vector     `json:"versionVector"`
	Message        string           `json:"message,omitempty"`
	PresenceChange *presence.Change `json:"presenceChange,omitempty"`
	Operations     []wireOperation  `json:"operations"`
}

type wirePack struct {
	DocumentKey       string            `json:"docKey"`
	Checkpoint        change.Checkpoint `json:"checkpoint"`
	IsRemoved         bool              `json:"isRemoved,omitempty"`
	Changes           []wireChange      `json:"changes,omitempty"`
	Snapshot          []byte            `json:"snapshot,omitempty"`
	SnapshotVersions  clock.Vector      `json:"snapshotVersions"`
	VersionVector     clock.Vector      `json:"versionVector"`
	MinSyncedTicket   *clock.Ticket     `json:"minSyncedTicket,omitempty"`
	MinSyncedVersions clock.Vector      `json:"minSyncedVersions"`
}

func toWireOperation(op operations.Operation) (wireOperation, error) {
	wire := wireOperation{
		ParentCreatedAt: op.ParentCreatedAt(),
		ExecutedAt:      op.ExecutedAt(),
	}
	switch o := op.(type) {
	case *operations.Set:
		wire.Opcode = opcodeSet
		wire.Key = o.Key()
		value, err := toWireElement(o.Value())
		if err != nil {
			return wire, err
		}
		wire.Value = value
	case *operations.Add:
		wire.Opcode = opcodeAdd
		prev := o.PrevCreatedAt()
		wire.PrevCreatedAt = &prev
		value, err := toWireElement(o.Value())
		if err != nil {
			return wire, err
		}
		wire.Value = value
	case *operations.Move:
		wire.Opcode = opcodeMove
		prev := o.PrevCreatedAt()
		target := o.TargetCreatedAt()
		wire.PrevCreatedAt = &prev
		wire.TargetCreatedAt = &target
	case *operations.Remove:
		wire.Opcode = opcodeRemove
		target := o.TargetCreatedAt()
		wire.TargetCreatedAt = &target
	case *operations.ArraySet:
		wire.Opcode = opcodeArraySet
		target := o.TargetCreatedAt()
		wire.TargetCreatedAt = &target
		value, err := toWireElement(o.Value())
		if err != nil {
			return wire, err
		}
		wire.Value = value
	case *operations.Increase:
		wire.Opcode = opcodeIncrease
		value, err := toWireElement(o.Value())
		if err != nil {
			return wire, err
		}
		wire.Value = value
	case *operations.Edit:
		wire.Opcode = opcodeEdit
		from, to := o.From(), o.To()
		wire.From = &from
		wire.To = &to
		wire.Content = o.Content()
		wire.Attributes = o.Attributes()
	case *operations.Style:
		wire.Opcode = opcodeStyle
		from, to := o.From(), o.To()
		wire.From = &from
		wire.To = &to
		wire.Attributes = o.Attributes()
	case *operations.Select:
		wire.Opcode = opcodeSelect
	case *operations.TreeEdit:
		wire.Opcode = opcodeTreeEdit
		from, to := o.From(), o.To()
		wire.TreeFrom = &from
		wire.TreeTo = &to
		wire.SplitLevel = o.SplitLevel()
		for _, content := range o.Contents() {
			wire.Contents = append(wire.Contents, toWireTreeNode(content))
		}
	case *operations.TreeStyle:
		wire.Opcode = opcodeTreeStyle
		from, to := o.From(), o.To()
		wire.TreeFrom = &from
		wire.TreeTo = &to
		wire.Attributes = o.Attributes()
		wire.AttributesToRemove = o.AttributesToRemove()
	default:
		return wire, fmt.Errorf("codec: unsupported operation %T", op)
	}
	return wire, nil
}

func fromWireOperation(wire wireOperation) (operations.Operation, error) {
	switch wire.Opcode {
	case opcodeSet:
		value, err := fromWireElement(wire.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewSet(wire.ParentCreatedAt, wire.Key, value, wire.ExecutedAt), nil
	case opcodeAdd:
		value, err := fromWireElement(wire.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewAdd(wire.ParentCreatedAt, *wire.PrevCreatedAt, value, wire.ExecutedAt), nil
	case opcodeMove:
		return operations.NewMove(wire.ParentCreatedAt, *wire.PrevCreatedAt, *wire.TargetCreatedAt, wire.ExecutedAt), nil
	case opcodeRemove:
		return operations.NewRemove(wire.ParentCreatedAt, *wire.TargetCreatedAt, wire.ExecutedAt), nil
	case opcodeArraySet:
		value, err := fromWireElement(wire.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewArraySet(wire.ParentCreatedAt, *wire.TargetCreatedAt, value, wire.ExecutedAt), nil
	case opcodeIncrease:
		value, err := fromWireElement(wire.Value)
		if err != nil {
			return nil, err
		}
		return operations.NewIncrease(wire.ParentCreatedAt, value, wire.ExecutedAt), nil
	case opcodeEdit:
		return operations.NewEdit(wire.ParentCreatedAt, *wire.From, *wire.To, wire.Content, wire.Attributes, wire.ExecutedAt), nil
	case opcodeStyle:
		return operations.NewStyle(wire.ParentCreatedAt, *wire.From, *wire.To, wire.Attributes, wire.ExecutedAt), nil
	case opcodeSelect:
		var from, to crdt.RGATreeSplitPos
		if wire.From != nil {
			from = *wire.From
		}
		if wire.To != nil {
			to = *wire.To
		}
		return operations.NewSelect(wire.ParentCreatedAt, from, to, wire.ExecutedAt), nil
	case opcodeTreeEdit:
		var contents []*crdt.TreeNode
		for _, content := range wire.Contents {
			contents = append(contents, fromWireTreeNode(content))
		}
		return operations.NewTreeEdit(wire.ParentCreatedAt, *wire.TreeFrom, *wire.TreeTo, contents, wire.SplitLevel, wire.ExecutedAt), nil
	case opcodeTreeStyle:
		if len(wire.AttributesToRemove) > 0 {
			return operations.NewTreeStyleRemove(wire.ParentCreatedAt, *wire.TreeFrom, *wire.TreeTo, wire.AttributesToRemove, wire.ExecutedAt), nil
		}
		return operations.NewTreeStyle(wire.ParentCreatedAt, *wire.TreeFrom, *wire.TreeTo, wire.Attributes, wire.ExecutedAt), nil
	default:
		return nil, fmt.Errorf("codec: unknown opcode %d", wire.Opcode)
	}
}

func toWireChange(c *change.Change) (wireChange, error) {
	wire := wireChange{
		ClientSeq:      c.ID().ClientSeq(),
		ServerSeq:      c.ID().ServerSeq(),
		Lamport:        c.ID().Lamport(),
		Actor:          c.ID().Actor(),
		Versions:       c.ID().Versions(),
		Message:        c.Message(),
		PresenceChange: c.PresenceChange(),
	}
	for _, op := range c.Operations() {
		wireOp, err := toWireOperation(op)
		if err != nil {
			return wire, err
		}
		wire.Operations = append(wire.Operations, wireOp)
	}
	return wire, nil
}

func fromWireChange(wire wireChange) (*change.Change, error) {
	versions := wire.Versions
	if versions.Len() == 0 {
		versions = clock.NewVector()
	}
	id := change.NewID(wire.ClientSeq, wire.ServerSeq, wire.Lamport, wire.Actor, versions)

	var ops []operations.Operation
	for _, wireOp := range wire.Operations {
		op, err := fromWireOperation(wireOp)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return change.New(id, ops, wire.PresenceChange, wire.Message), nil
}

// Marshal serializes a change pack.
func Marshal(pack *change.Pack) ([]byte, error) {
	wire := wirePack{
		DocumentKey:       pack.DocumentKey,
		Checkpoint:        pack.Checkpoint,
		IsRemoved:         pack.IsRemoved,
		Snapshot:          pack.Snapshot,
		SnapshotVersions:  pack.SnapshotVersions,
		VersionVector:     pack.VersionVector,
		MinSyncedTicket:   pack.MinSyncedTicket,
		MinSyncedVersions: pack.MinSyncedVersions,
	}
	for _, c := range pack.Changes {
		wireC, err := toWireChange(c)
		if err != nil {
			return nil, err
		}
		wire.Changes = append(wire.Changes, wireC)
	}
	return json.Marshal(wire)
}

// Unmarshal rebuilds a change pack from Marshal bytes.
func Unmarshal(data []byte) (*change.Pack, error) {
	var wire wirePack
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("codec: decode pack: %v", err)
	}

	pack := &change.Pack{
		DocumentKey:       wire.DocumentKey,
		Checkpoint:        wire.Checkpoint,
		IsRemoved:         wire.IsRemoved,
		Snapshot:          wire.Snapshot,
		SnapshotVersions:  wire.SnapshotVersions,
		VersionVector:     wire.VersionVector,
		MinSyncedTicket:   wire.MinSyncedTicket,
		MinSyncedVersions: wire.MinSyncedVersions,
	}
	for _, wireC := range wire.Changes {
		c, err := fromWireChange(wireC)
		if err != nil {
			return nil, err
		}
		pack.Changes = append(pack.Changes, c)
	}
	return pack, nil
}

// MarshalChange serializes one change, for the durable pending-change log.
func MarshalChange(c *change.Change) ([]byte, error) {
	wire, err := toWireChange(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

// UnmarshalChange rebuilds one change from MarshalChange bytes.
func UnmarshalChange(data []byte) (*change.Change, error) {
	var wire wireChange
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("codec: decode change: %v", err)
	}
	return fromWireChange(wire)
}
