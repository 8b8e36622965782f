package document

import (
	"fmt"
	"time"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/operations"
	"github.com/collabkit/docsync/presence"
)

// Object is the mutable view over an object handed to update callbacks.
// Mutators apply eagerly to the transaction's clone and queue the matching
// operation for commit.
type Object struct {
	ctx  *change.Context
	root *crdt.Root
	obj  *crdt.Object
}

func newObjectView(ctx *change.Context, root *crdt.Root, obj *crdt.Object) *Object {
	return &Object{ctx: ctx, root: root, obj: obj}
}

func (o *Object) setPrimitive(key string, value interface{}) *Object {
	ticket := o.ctx.IssueTimeTicket()
	prim, err := crdt.NewPrimitive(value, ticket)
	if err != nil {
		return o
	}
	o.setElement(key, prim, ticket)
	return o
}

func (o *Object) setElement(key string, elem crdt.Element, ticket clock.Ticket) {
	if displaced := o.obj.Set(key, elem); displaced != nil {
		o.root.RegisterRemovedElement(displaced)
	}
	o.root.RegisterElement(o.obj, elem)
	o.ctx.Push(operations.NewSet(o.obj.CreatedAt(), key, elem.DeepCopy(), ticket))
}

// SetString stores a string member.
func (o *Object) SetString(key, value string) *Object {
	return o.setPrimitive(key, value)
}

// SetInteger stores a 32-bit integer member.
func (o *Object) SetInteger(key string, value int) *Object {
	return o.setPrimitive(key, value)
}

// SetLong stores a 64-bit integer member.
func (o *Object) SetLong(key string, value int64) *Object {
	return o.setPrimitive(key, value)
}

// SetDouble stores a float member.
func (o *Object) SetDouble(key string, value float64) *Object {
	return o.setPrimitive(key, value)
}

// SetBool stores a boolean member.
func (o *Object) SetBool(key string, value bool) *Object {
	return o.setPrimitive(key, value)
}

// SetBytes stores a byte-slice member.
func (o *Object) SetBytes(key string, value []byte) *Object {
	return o.setPrimitive(key, value)
}

// SetDate stores a timestamp member.
func (o *Object) SetDate(key string, value time.Time) *Object {
	return o.setPrimitive(key, value)
}

// SetNull stores an explicit null member.
func (o *Object) SetNull(key string) *Object {
	return o.setPrimitive(key, nil)
}

// SetNewObject creates and stores a nested object, returning its view.
func (o *Object) SetNewObject(key string) *Object {
	ticket := o.ctx.IssueTimeTicket()
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket)
	o.setElement(key, obj, ticket)
	return newObjectView(o.ctx, o.root, obj)
}

// SetNewArray creates and stores a nested array, returning its view.
func (o *Object) SetNewArray(key string) *Array {
	ticket := o.ctx.IssueTimeTicket()
	arr := crdt.NewArray(crdt.NewRGATreeList(), ticket)
	o.setElement(key, arr, ticket)
	return &Array{ctx: o.ctx, root: o.root, arr: arr}
}

// SetNewText creates and stores a text member, returning its view.
func (o *Object) SetNewText(key string) *Text {
	ticket := o.ctx.IssueTimeTicket()
	text := crdt.NewText(crdt.NewRGATreeSplit(crdt.NewTextValue("", crdt.NewRHT())), ticket)
	o.setElement(key, text, ticket)
	return &Text{ctx: o.ctx, root: o.root, text: text}
}

// SetNewCounter creates and stores a counter member, returning its view.
func (o *Object) SetNewCounter(key string, counterType crdt.CounterType, value int64) *Counter {
	ticket := o.ctx.IssueTimeTicket()
	counter := crdt.NewCounter(counterType, value, ticket)
	o.setElement(key, counter, ticket)
	return &Counter{ctx: o.ctx, root: o.root, counter: counter}
}

// SetNewTree creates and stores a tree member built from the definition,
// returning its view.
func (o *Object) SetNewTree(key string, def *TreeNodeDef) *Tree {
	ticket := o.ctx.IssueTimeTicket()
	root := buildTreeNode(o.ctx, def)
	tree := crdt.NewTree(root, ticket)
	o.setElement(key, tree, ticket)
	return &Tree{ctx: o.ctx, root: o.root, tree: tree}
}

// Delete tombstones the member under key.
func (o *Object) Delete(key string) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return
	}
	ticket := o.ctx.IssueTimeTicket()
	removedAt := ticket
	if removed, ok := o.obj.Delete(key, &removedAt); ok {
		o.root.RegisterRemovedElement(removed)
	}
	o.ctx.Push(operations.NewRemove(o.obj.CreatedAt(), elem.CreatedAt(), ticket))
}

// Has reports whether the key is live.
func (o *Object) Has(key string) bool {
	return o.obj.Has(key)
}

// Keys returns the live member keys.
func (o *Object) Keys() []string {
	return o.obj.Keys()
}

// GetObject returns the view of a nested object member.
func (o *Object) GetObject(key string) (*Object, error) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("object member %q: %w", key, crdt.ErrElementNotFound)
	}
	obj, ok := elem.(*crdt.Object)
	if !ok {
		return nil, fmt.Errorf("object member %q is %T: %w", key, elem, crdt.ErrInvalidType)
	}
	return newObjectView(o.ctx, o.root, obj), nil
}

// GetArray returns the view of a nested array member.
func (o *Object) GetArray(key string) (*Array, error) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("object member %q: %w", key, crdt.ErrElementNotFound)
	}
	arr, ok := elem.(*crdt.Array)
	if !ok {
		return nil, fmt.Errorf("object member %q is %T: %w", key, elem, crdt.ErrInvalidType)
	}
	return &Array{ctx: o.ctx, root: o.root, arr: arr}, nil
}

// GetText returns the view of a text member.
func (o *Object) GetText(key string) (*Text, error) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("object member %q: %w", key, crdt.ErrElementNotFound)
	}
	text, ok := elem.(*crdt.Text)
	if !ok {
		return nil, fmt.Errorf("object member %q is %T: %w", key, elem, crdt.ErrInvalidType)
	}
	return &Text{ctx: o.ctx, root: o.root, text: text}, nil
}

// GetCounter returns the view of a counter member.
func (o *Object) GetCounter(key string) (*Counter, error) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("object member %q: %w", key, crdt.ErrElementNotFound)
	}
	counter, ok := elem.(*crdt.Counter)
	if !ok {
		return nil, fmt.Errorf("object member %q is %T: %w", key, elem, crdt.ErrInvalidType)
	}
	return &Counter{ctx: o.ctx, root: o.root, counter: counter}, nil
}

// GetTree returns the view of a tree member.
func (o *Object) GetTree(key string) (*Tree, error) {
	elem, ok := o.obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("object member %q: %w", key, crdt.ErrElementNotFound)
	}
	tree, ok := elem.(*crdt.Tree)
	if !ok {
		return nil, fmt.Errorf("object member %q is %T: %w", key, elem, crdt.ErrInvalidType)
	}
	return &Tree{ctx: o.ctx, root: o.root, tree: tree}, nil
}

// Get returns the raw element member, for inspection.
func (o *Object) Get(key string) (crdt.Element, bool) {
	return o.obj.Get(key)
}

// Array is the mutable view over an array.
type Array struct {
	ctx  *change.Context
	root *crdt.Root
	arr  *crdt.Array
}

func (a *Array) addPrimitive(value interface{}) *Array {
	ticket := a.ctx.IssueTimeTicket()
	prim, err := crdt.NewPrimitive(value, ticket)
	if err != nil {
		return a
	}
	prev := a.arr.LastCreatedAt()
	if err := a.arr.InsertAfter(prev, prim, ticket); err != nil {
		return a
	}
	a.root.RegisterElement(a.arr, prim)
	a.ctx.Push(operations.NewAdd(a.arr.CreatedAt(), prev, prim.DeepCopy(), ticket))
	return a
}

// AddString appends string values.
func (a *Array) AddString(values ...string) *Array {
	for _, v := range values {
		a.addPrimitive(v)
	}
	return a
}

// AddInteger appends integer values.
func (a *Array) AddInteger(values ...int) *Array {
	for _, v := range values {
		a.addPrimitive(v)
	}
	return a
}

// AddBool appends boolean values.
func (a *Array) AddBool(values ...bool) *Array {
	for _, v := range values {
		a.addPrimitive(v)
	}
	return a
}

// AddDouble appends float values.
func (a *Array) AddDouble(values ...float64) *Array {
	for _, v := range values {
		a.addPrimitive(v)
	}
	return a
}

// AddNewObject appends a nested object and returns its view.
func (a *Array) AddNewObject() *Object {
	ticket := a.ctx.IssueTimeTicket()
	obj := crdt.NewObject(crdt.NewElementRHT(), ticket)
	prev := a.arr.LastCreatedAt()
	if err := a.arr.InsertAfter(prev, obj, ticket); err != nil {
		return nil
	}
	a.root.RegisterElement(a.arr, obj)
	a.ctx.Push(operations.NewAdd(a.arr.CreatedAt(), prev, obj.DeepCopy(), ticket))
	return newObjectView(a.ctx, a.root, obj)
}

// InsertStringBefore inserts a string before the entry at the index.
func (a *Array) InsertStringBefore(idx int, value string) error {
	next, err := a.arr.Get(idx)
	if err != nil {
		return err
	}
	prev, err := a.arr.FindPrevCreatedAt(next.CreatedAt())
	if err != nil {
		return err
	}
	ticket := a.ctx.IssueTimeTicket()
	prim, err := crdt.NewPrimitive(value, ticket)
	if err != nil {
		return err
	}
	if err := a.arr.InsertAfter(prev, prim, ticket); err != nil {
		return err
	}
	a.root.RegisterElement(a.arr, prim)
	a.ctx.Push(operations.NewAdd(a.arr.CreatedAt(), prev, prim.DeepCopy(), ticket))
	return nil
}

// Delete tombstones the entry at the index.
func (a *Array) Delete(idx int) (crdt.Element, error) {
	target, err := a.arr.Get(idx)
	if err != nil {
		return nil, err
	}
	ticket := a.ctx.IssueTimeTicket()
	removedAt := ticket
	removed, err := a.arr.DeleteByCreatedAt(target.CreatedAt(), &removedAt)
	if err != nil {
		return nil, err
	}
	if removed != nil {
		a.root.RegisterRemovedElement(removed)
	}
	a.ctx.Push(operations.NewRemove(a.arr.CreatedAt(), target.CreatedAt(), ticket))
	return removed, nil
}

// SetString replaces the entry at the index with a string value.
func (a *Array) SetString(idx int, value string) error {
	target, err := a.arr.Get(idx)
	if err != nil {
		return err
	}
	ticket := a.ctx.IssueTimeTicket()
	prim, err := crdt.NewPrimitive(value, ticket)
	if err != nil {
		return err
	}
	if _, err := a.arr.Set(target.CreatedAt(), prim, ticket); err != nil {
		return err
	}
	a.root.RegisterElement(a.arr, prim)
	a.ctx.Push(operations.NewArraySet(a.arr.CreatedAt(), target.CreatedAt(), prim.DeepCopy(), ticket))
	return nil
}

// MoveBefore repositions the entry right before another entry.
func (a *Array) MoveBefore(nextCreatedAt, createdAt clock.Ticket) error {
	prev, err := a.arr.FindPrevCreatedAt(nextCreatedAt)
	if err != nil {
		return err
	}
	return a.moveAfterInternal(prev, createdAt)
}

// MoveAfter repositions the entry right after another entry.
func (a *Array) MoveAfter(prevCreatedAt, createdAt clock.Ticket) error {
	return a.moveAfterInternal(prevCreatedAt, createdAt)
}

// MoveFront repositions the entry at the head of the array.
func (a *Array) MoveFront(createdAt clock.Ticket) error {
	return a.moveAfterInternal(clock.InitialTicket, createdAt)
}

// MoveLast repositions the entry at the tail of the array.
func (a *Array) MoveLast(createdAt clock.Ticket) error {
	return a.moveAfterInternal(a.arr.LastCreatedAt(), createdAt)
}

func (a *Array) moveAfterInternal(prevCreatedAt, createdAt clock.Ticket) error {
	ticket := a.ctx.IssueTimeTicket()
	if err := a.arr.MoveAfter(prevCreatedAt, createdAt, ticket); err != nil {
		return err
	}
	a.ctx.Push(operations.NewMove(a.arr.CreatedAt(), prevCreatedAt, createdAt, ticket))
	return nil
}

// Splice removes deleteCount entries at start and inserts the values there.
// A negative start wraps from the end, a negative deleteCount inserts only,
// and an oversized deleteCount truncates at the end.
func (a *Array) Splice(start, deleteCount int, values ...interface{}) error {
	length := a.arr.Len()
	if start < 0 {
		start = length + start
	}
	if start < 0 {
		start = 0
	}
	if start > length {
		start = length
	}
	if deleteCount < 0 {
		deleteCount = 0
	}
	if deleteCount > length-start {
		deleteCount = length - start
	}

	for i := 0; i < deleteCount; i++ {
		if _, err := a.Delete(start); err != nil {
			return err
		}
	}

	// Anchor inserts after the entry preceding the splice point.
	prev := clock.InitialTicket
	if start > 0 {
		node, err := a.arr.Get(start - 1)
		if err != nil {
			return err
		}
		prev = node.CreatedAt()
	}
	for _, value := range values {
		ticket := a.ctx.IssueTimeTicket()
		prim, err := crdt.NewPrimitive(value, ticket)
		if err != nil {
			return err
		}
		if err := a.arr.InsertAfter(prev, prim, ticket); err != nil {
			return err
		}
		a.root.RegisterElement(a.arr, prim)
		a.ctx.Push(operations.NewAdd(a.arr.CreatedAt(), prev, prim.DeepCopy(), ticket))
		prev = prim.CreatedAt()
	}
	return nil
}

// IndexOf returns the first index holding an equal value, -1 on miss.
func (a *Array) IndexOf(value interface{}) int {
	want, err := crdt.NewPrimitive(value, clock.MaxTicket)
	if err != nil {
		return -1
	}
	for i := 0; i < a.arr.Len(); i++ {
		elem, err := a.arr.Get(i)
		if err != nil {
			return -1
		}
		if elem.Marshal() == want.Marshal() {
			return i
		}
	}
	return -1
}

// LastIndexOf returns the last index holding an equal value at or before
// fromIndex, -1 on miss. A negative fromIndex searches backward from
// length+fromIndex.
func (a *Array) LastIndexOf(value interface{}, fromIndex int) int {
	length := a.arr.Len()
	if fromIndex < 0 {
		fromIndex = length + fromIndex
	}
	if fromIndex >= length {
		fromIndex = length - 1
	}
	want, err := crdt.NewPrimitive(value, clock.MaxTicket)
	if err != nil {
		return -1
	}
	for i := fromIndex; i >= 0; i-- {
		elem, err := a.arr.Get(i)
		if err != nil {
			return -1
		}
		if elem.Marshal() == want.Marshal() {
			return i
		}
	}
	return -1
}

// Get returns the raw element at the index.
func (a *Array) Get(idx int) (crdt.Element, error) {
	return a.arr.Get(idx)
}

// Len returns the number of live entries.
func (a *Array) Len() int {
	return a.arr.Len()
}

// Text is the mutable view over a text element.
type Text struct {
	ctx  *change.Context
	root *crdt.Root
	text *crdt.Text
}

// Edit replaces the character range [from, to) with content.
func (t *Text) Edit(from, to int, content string, attrs ...map[string]string) error {
	if from > to || from < 0 {
		return fmt.Errorf("text edit range [%d,%d): %w", from, to, crdt.ErrOutOfRange)
	}
	fromPos, toPos, err := t.text.CreateRange(from, to)
	if err != nil {
		return err
	}
	var attributes map[string]string
	if len(attrs) > 0 {
		attributes = attrs[0]
	}
	ticket := t.ctx.IssueTimeTicket()
	_, pairs, _, err := t.text.Edit(fromPos, toPos, content, attributes, ticket, t.ctx.ID().Versions())
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		t.root.RegisterGCPair(pair)
	}
	t.ctx.Push(operations.NewEdit(t.text.CreatedAt(), fromPos, toPos, content, attributes, ticket))
	return nil
}

// Style applies attributes to the character range [from, to).
func (t *Text) Style(from, to int, attrs map[string]string) error {
	if from > to || from < 0 {
		return fmt.Errorf("text style range [%d,%d): %w", from, to, crdt.ErrOutOfRange)
	}
	fromPos, toPos, err := t.text.CreateRange(from, to)
	if err != nil {
		return err
	}
	ticket := t.ctx.IssueTimeTicket()
	pairs, _, err := t.text.Style(fromPos, toPos, attrs, ticket, t.ctx.ID().Versions())
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		t.root.RegisterGCPair(pair)
	}
	t.ctx.Push(operations.NewStyle(t.text.CreatedAt(), fromPos, toPos, attrs, ticket))
	return nil
}

// String returns the live plain text.
func (t *Text) String() string {
	return t.text.String()
}

// Len returns the live character count.
func (t *Text) Len() int {
	return t.text.Len()
}

// Counter is the mutable view over a counter.
type Counter struct {
	ctx     *change.Context
	root    *crdt.Root
	counter *crdt.Counter
}

// Increase adds the value to the counter.
func (c *Counter) Increase(value int64) *Counter {
	ticket := c.ctx.IssueTimeTicket()
	prim, err := crdt.NewPrimitive(value, ticket)
	if err != nil {
		return c
	}
	if err := c.counter.Increase(prim); err != nil {
		return c
	}
	c.ctx.Push(operations.NewIncrease(c.counter.CreatedAt(), prim.DeepCopy(), ticket))
	return c
}

// Value returns the current accumulated value.
func (c *Counter) Value() int64 {
	return c.counter.Value()
}

// TreeNodeDef describes a subtree for tree construction and insertion.
type TreeNodeDef struct {
	Type       string
	Value      string
	Attributes map[string]string
	Children   []*TreeNodeDef
}

func buildTreeNode(ctx *change.Context, def *TreeNodeDef) *crdt.TreeNode {
	ticket := ctx.IssueTimeTicket()
	if def.Type == crdt.TextNodeType {
		return crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticket}, crdt.TextNodeType, nil, def.Value)
	}
	attrs := crdt.NewRHT()
	for k, v := range def.Attributes {
		attrs.Set(k, v, ticket)
	}
	node := crdt.NewTreeNode(crdt.TreeNodeID{CreatedAt: ticket}, def.Type, attrs, "")
	for _, childDef := range def.Children {
		node.Append(buildTreeNode(ctx, childDef))
	}
	return node
}

// Tree is the mutable view over a tree element.
type Tree struct {
	ctx  *change.Context
	root *crdt.Root
	tree *crdt.Tree
}

// Edit replaces the flattened range [from, to] with the content definition,
// splitting splitLevel ancestors at the left boundary first. A nil content
// deletes or splits only.
func (t *Tree) Edit(from, to int, content *TreeNodeDef, splitLevel int) error {
	fromPos, err := t.tree.FindPos(from)
	if err != nil {
		return err
	}
	toPos, err := t.tree.FindPos(to)
	if err != nil {
		return err
	}
	return t.editInternal(fromPos, toPos, content, splitLevel)
}

// EditByPath is Edit addressed by tree paths.
func (t *Tree) EditByPath(fromPath, toPath []int, content *TreeNodeDef, splitLevel int) error {
	fromPos, err := t.tree.PathToPos(fromPath)
	if err != nil {
		return err
	}
	toPos, err := t.tree.PathToPos(toPath)
	if err != nil {
		return err
	}
	return t.editInternal(fromPos, toPos, content, splitLevel)
}

func (t *Tree) editInternal(fromPos, toPos crdt.TreePos, content *TreeNodeDef, splitLevel int) error {
	// Content nodes take their tickets first so the operation ticket, and
	// the split-clone tickets derived from it, never collide with them.
	var contents []*crdt.TreeNode
	if content != nil {
		contents = append(contents, buildTreeNode(t.ctx, content))
	}
	ticket := t.ctx.IssueTimeTicket()

	opContents := make([]*crdt.TreeNode, 0, len(contents))
	for _, c := range contents {
		opContents = append(opContents, c.DeepCopy())
	}

	delimiter := ticket.Delimiter
	issueNext := func() clock.Ticket {
		delimiter++
		return clock.Ticket{Lamport: ticket.Lamport, Delimiter: delimiter, Actor: ticket.Actor}
	}
	_, pairs, err := t.tree.Edit(fromPos, toPos, contents, splitLevel, ticket, issueNext, t.ctx.ID().Versions())
	if err != nil {
		return err
	}
	// Reserve the delimiters the split clones used so later mutators in
	// this transaction cannot reuse them.
	for level := 0; level < splitLevel; level++ {
		t.ctx.IssueTimeTicket()
	}
	for _, pair := range pairs {
		t.root.RegisterGCPair(pair)
	}
	t.ctx.Push(operations.NewTreeEdit(t.tree.CreatedAt(), fromPos, toPos, opContents, splitLevel, ticket))
	return nil
}

// Style applies attributes to element nodes in the flattened range.
func (t *Tree) Style(from, to int, attrs map[string]string) error {
	fromPos, err := t.tree.FindPos(from)
	if err != nil {
		return err
	}
	toPos, err := t.tree.FindPos(to)
	if err != nil {
		return err
	}
	ticket := t.ctx.IssueTimeTicket()
	_, pairs, err := t.tree.Style(fromPos, toPos, attrs, ticket, t.ctx.ID().Versions())
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		t.root.RegisterGCPair(pair)
	}
	t.ctx.Push(operations.NewTreeStyle(t.tree.CreatedAt(), fromPos, toPos, attrs, ticket))
	return nil
}

// RemoveStyle removes attribute keys from element nodes in the range.
func (t *Tree) RemoveStyle(from, to int, keys []string) error {
	fromPos, err := t.tree.FindPos(from)
	if err != nil {
		return err
	}
	toPos, err := t.tree.FindPos(to)
	if err != nil {
		return err
	}
	ticket := t.ctx.IssueTimeTicket()
	_, pairs, err := t.tree.RemoveStyle(fromPos, toPos, keys, ticket, t.ctx.ID().Versions())
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		t.root.RegisterGCPair(pair)
	}
	t.ctx.Push(operations.NewTreeStyleRemove(t.tree.CreatedAt(), fromPos, toPos, keys, ticket))
	return nil
}

// XML renders the live tree.
func (t *Tree) XML() string {
	return t.tree.ToXML()
}

// Size returns the flattened content length.
func (t *Tree) Size() int {
	return t.tree.Size()
}

// Presence is the mutable view over the local actor's presence.
type Presence struct {
	ctx      *change.Context
	presence presence.Presence
}

func newPresenceView(ctx *change.Context, p presence.Presence) *Presence {
	return &Presence{ctx: ctx, presence: p}
}

// Set writes one presence key and stages the put.
func (p *Presence) Set(key, value string) {
	p.presence[key] = value
	p.ctx.SetPresenceChange(&presence.Change{ChangeType: presence.Put, Presence: p.presence.DeepCopy()})
}

// Clear stages removal of the whole presence.
func (p *Presence) Clear() {
	for k := range p.presence {
		delete(p.presence, k)
	}
	p.ctx.SetPresenceChange(&presence.Change{ChangeType: presence.Clear})
}

// Get reads one presence key.
func (p *Presence) Get(key string) string {
	return p.presence[key]
}
