package crdt

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/collabkit/docsync/clock"
)

// TextValue is one styled run of characters inside the text sequence.
type TextValue struct {
	value string
	attrs *RHT
}

// NewTextValue creates a run with the given attributes.
func NewTextValue(value string, attrs *RHT) *TextValue {
	return &TextValue{value: value, attrs: attrs}
}

// Len returns the run length in characters.
func (t *TextValue) Len() int {
	return utf8.RuneCountInString(t.value)
}

// String returns the raw characters.
func (t *TextValue) String() string {
	return t.value
}

// Attrs returns the run's attribute table.
func (t *TextValue) Attrs() *RHT {
	return t.attrs
}

// Split leaves the first offset characters in the receiver and returns the
// remainder as a new run with a copied attribute table.
func (t *TextValue) Split(offset int) *TextValue {
	runes := []rune(t.value)
	t.value = string(runes[:offset])
	return NewTextValue(string(runes[offset:]), t.attrs.DeepCopy())
}

// DeepCopy returns an independent copy of the run.
func (t *TextValue) DeepCopy() *TextValue {
	return NewTextValue(t.value, t.attrs.DeepCopy())
}

// Marshal renders the run as {"attrs":{...},"val":"..."}.
func (t *TextValue) Marshal() string {
	var sb strings.Builder
	sb.WriteString("{")
	if t.attrs.Len() > 0 {
		sb.WriteString(`"attrs":`)
		sb.WriteString(t.attrs.Marshal())
		sb.WriteString(",")
	}
	sb.WriteString(`"val":`)
	sb.WriteString(strconv.Quote(t.value))
	sb.WriteString("}")
	return sb.String()
}

// Text is the replicated rich-text leaf: a splittable character sequence
// with per-run attributes.
type Text struct {
	elementMeta
	rgaTreeSplit *RGATreeSplit[*TextValue]
}

// NewText creates a text element over the given sequence.
func NewText(rgaTreeSplit *RGATreeSplit[*TextValue], createdAt clock.Ticket) *Text {
	return &Text{
		elementMeta:  elementMeta{createdAt: createdAt},
		rgaTreeSplit: rgaTreeSplit,
	}
}

// Edit replaces the positional range with content, returning the caret
// position, the garbage pairs produced by tombstoned runs, and the
// flattened changes.
func (t *Text) Edit(
	from, to RGATreeSplitPos,
	content string,
	attrs map[string]string,
	executedAt clock.Ticket,
	versions clock.Vector,
) (RGATreeSplitPos, []GCPair, []ContentChange, error) {
	value := NewTextValue(content, NewRHT())
	for k, v := range attrs {
		value.attrs.Set(k, v, executedAt)
	}

	caret, removed, changes, err := t.rgaTreeSplit.Edit(from, to, value, content != "", executedAt, versions)
	if err != nil {
		return RGATreeSplitPos{}, nil, nil, err
	}

	pairs := make([]GCPair, 0, len(removed))
	for _, node := range removed {
		pairs = append(pairs, GCPair{Parent: t.rgaTreeSplit, Child: node})
	}
	return caret, pairs, changes, nil
}

// Style applies the attributes to every live run covered by the range. Text
// content is never tombstoned by styling.
func (t *Text) Style(
	from, to RGATreeSplitPos,
	attrs map[string]string,
	executedAt clock.Ticket,
	versions clock.Vector,
) ([]GCPair, []ContentChange, error) {
	_, fromRight, toRight, err := t.rgaTreeSplit.FindEditRange(from, to, executedAt)
	if err != nil {
		return nil, nil, err
	}

	var pairs []GCPair
	var changes []ContentChange
	for node := fromRight; node != nil && node != toRight; node = node.Next() {
		if node.IsRemoved() {
			continue
		}
		if versions.Len() > 0 && versions.Get(node.ID().CreatedAt.Actor) < node.ID().CreatedAt.Lamport {
			continue
		}
		start := t.rgaTreeSplit.IndexOfNode(node)
		for k, v := range attrs {
			if displaced := node.Value().attrs.Set(k, v, executedAt); displaced != nil {
				pairs = append(pairs, GCPair{Parent: node.Value().attrs, Child: displaced})
			}
		}
		changes = append(changes, ContentChange{From: start, To: start + node.Len()})
	}
	return pairs, changes, nil
}

// CreateRange maps index boundaries to stable positions.
func (t *Text) CreateRange(from, to int) (RGATreeSplitPos, RGATreeSplitPos, error) {
	fromPos, err := t.rgaTreeSplit.FindNodePos(from)
	if err != nil {
		return RGATreeSplitPos{}, RGATreeSplitPos{}, err
	}
	if from == to {
		return fromPos, fromPos, nil
	}
	toPos, err := t.rgaTreeSplit.FindNodePos(to)
	if err != nil {
		return RGATreeSplitPos{}, RGATreeSplitPos{}, err
	}
	return fromPos, toPos, nil
}

// String returns the live plain text.
func (t *Text) String() string {
	return t.rgaTreeSplit.String()
}

// Len returns the live character count.
func (t *Text) Len() int {
	return t.rgaTreeSplit.Len()
}

// Nodes returns every run in order, tombstones included.
func (t *Text) Nodes() []*RGATreeSplitNode[*TextValue] {
	return t.rgaTreeSplit.Nodes()
}

// Sequence exposes the underlying split sequence.
func (t *Text) Sequence() *RGATreeSplit[*TextValue] {
	return t.rgaTreeSplit
}

// Marshal renders the live runs as a JSON array of spans.
func (t *Text) Marshal() string {
	var sb strings.Builder
	sb.WriteString("[")
	first := true
	for _, node := range t.rgaTreeSplit.Nodes() {
		if node.IsRemoved() {
			continue
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(node.Value().Marshal())
	}
	sb.WriteString("]")
	return sb.String()
}

// ToSortedJSON is identical to Marshal; runs are ordered and attributes are
// already rendered sorted.
func (t *Text) ToSortedJSON() string {
	return t.Marshal()
}

// DeepCopy returns an independent copy of the text with all runs.
func (t *Text) DeepCopy() Element {
	copied := &Text{rgaTreeSplit: t.rgaTreeSplit.DeepCopy()}
	t.elementMeta.copyTo(&copied.elementMeta)
	return copied
}

// DataSize accounts live characters and per-run metadata.
func (t *Text) DataSize() DataSize {
	size := DataSize{Meta: t.metaSize()}
	for _, node := range t.rgaTreeSplit.Nodes() {
		if node.IsRemoved() {
			size.Meta += ticketWeight
			continue
		}
		size.Data += len(node.Value().String())
		size.Meta += ticketWeight
		size.Add(node.Value().attrs.DataSize())
	}
	return size
}
