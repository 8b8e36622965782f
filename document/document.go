// Package document implements the local replica of a shared document: the
// update transaction, local and remote change application, garbage
// collection and subscription fan-out.
package document

import (
	"errors"
	"fmt"
	"sync"

	goclone "github.com/huandu/go-clone"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/codec"
	"github.com/collabkit/docsync/crdt"
	"github.com/collabkit/docsync/presence"
)

// Document failure kinds.
var (
	// ErrDocumentRemoved is returned when mutating a removed document.
	ErrDocumentRemoved = errors.New("document is removed")
)

// Status is the lifecycle state of a document.
type Status int

// Document lifecycle states.
const (
	StatusDetached Status = iota
	StatusAttached
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusDetached:
		return "detached"
	case StatusAttached:
		return "attached"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// documentClone is the transactional copy of the replica state. Updates run
// against it so a failing callback leaves the live root untouched.
type documentClone struct {
	root      *crdt.Root
	presences map[clock.ActorID]presence.Presence
}

// Document is a local replica. All entry points are serialized through one
// mutex, the document's mailbox: transactions, pack application and garbage
// collection never interleave.
type Document struct {
	key    string
	status Status

	mu sync.Mutex

	root         *crdt.Root
	clone        *documentClone
	changeID     change.ID
	checkpoint   change.Checkpoint
	localChanges []*change.Change

	presences map[clock.ActorID]presence.Presence

	subscribers map[int]*subscription
	nextSubID   int

	disableGC bool
}

// New creates a detached, empty document.
func New(key string) *Document {
	root := crdt.NewRoot(crdt.NewObject(crdt.NewElementRHT(), clock.InitialTicket))
	return &Document{
		key:         key,
		status:      StatusDetached,
		root:        root,
		changeID:    change.InitialID(),
		checkpoint:  change.InitialCheckpoint,
		presences:   make(map[clock.ActorID]presence.Presence),
		subscribers: make(map[int]*subscription),
	}
}

// Key returns the document key.
func (d *Document) Key() string {
	return d.key
}

// Status returns the lifecycle state.
func (d *Document) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// SetStatus transitions the lifecycle state and notifies subscribers.
func (d *Document) SetStatus(status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyStatus(status)
}

func (d *Document) applyStatus(status Status) {
	if d.status == status {
		return
	}
	d.status = status
	d.publish(Event{Type: StatusChangedEvent, Status: status})
}

// SetActor stamps the actor into the document's change ID and any buffered
// local changes. Called on attach, once the client knows its actor.
func (d *Document) SetActor(actor clock.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changeID = d.changeID.SetActor(actor)
	for _, c := range d.localChanges {
		c.SetActor(actor)
	}
	d.clone = nil
}

// ActorID returns the actor editing this replica.
func (d *Document) ActorID() clock.ActorID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changeID.Actor()
}

// SetDisableGC suppresses purging, for debugging.
func (d *Document) SetDisableGC(disable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disableGC = disable
}

// Update runs a transaction: the callback mutates a clone through typed
// views; on success the produced change applies to the live root, is
// buffered for push, and local subscribers fire. On failure the clone is
// discarded and the live root is untouched.
func (d *Document) Update(fn func(root *Object, p *Presence) error, msgAndArgs ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status == StatusRemoved {
		return ErrDocumentRemoved
	}

	var message string
	if len(msgAndArgs) > 0 {
		message = msgAndArgs[0]
	}

	d.ensureClone()
	ctx := change.NewContext(d.changeID.Next(), message)

	actor := d.changeID.Actor()
	if _, ok := d.clone.presences[actor]; !ok {
		d.clone.presences[actor] = presence.Presence{}
	}

	rootView := newObjectView(ctx, d.clone.root, d.clone.root.Object())
	presenceView := newPresenceView(ctx, d.clone.presences[actor])

	if err := fn(rootView, presenceView); err != nil {
		d.clone = nil
		return err
	}
	if !ctx.HasChange() {
		return nil
	}

	c := ctx.ToChange()
	infos, err := c.ApplyTo(d.root)
	if err != nil {
		d.clone = nil
		return fmt.Errorf("apply local change: %v", err)
	}
	if pc := c.PresenceChange(); pc != nil {
		d.applyPresenceChange(actor, pc)
	}

	d.changeID = c.ID()
	d.localChanges = append(d.localChanges, c)

	d.publish(Event{Type: LocalChangeEvent, Message: message, Operations: infos})
	return nil
}

// ensureClone lazily builds the transactional copy. Committed changes keep
// it in sync, so repeated updates avoid repeated deep copies.
func (d *Document) ensureClone() {
	if d.clone != nil {
		return
	}
	d.clone = &documentClone{
		root:      d.root.DeepCopy(),
		presences: goclone.Clone(d.presences).(map[clock.ActorID]presence.Presence),
	}
}

// ApplyChangePack applies an incoming pack: a snapshot fast-forwards the
// whole replica, otherwise the changes apply in causal order. Acked local
// changes are dropped, the checkpoint advances and, when the pack carries a
// garbage threshold, collection runs.
func (d *Document) ApplyChangePack(pack *change.Pack) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(pack.Snapshot) > 0 {
		if err := d.applySnapshot(pack); err != nil {
			return err
		}
	} else {
		for _, c := range pack.Changes {
			if err := d.applyChange(c); err != nil {
				return err
			}
		}
	}

	d.checkpoint = d.checkpoint.Forward(pack.Checkpoint)

	remaining := d.localChanges[:0]
	for _, c := range d.localChanges {
		if c.ID().ClientSeq() > pack.Checkpoint.ClientSeq {
			remaining = append(remaining, c)
		}
	}
	d.localChanges = remaining

	if !d.disableGC {
		if pack.MinSyncedVersions.Len() > 0 {
			if _, err := d.root.GarbageCollect(pack.MinSyncedVersions); err != nil {
				return err
			}
		} else if pack.MinSyncedTicket != nil {
			if _, err := d.root.GarbageCollectByTicket(*pack.MinSyncedTicket); err != nil {
				return err
			}
		}
	}

	if pack.IsRemoved {
		d.applyStatus(StatusRemoved)
	}
	return nil
}

func (d *Document) applySnapshot(pack *change.Pack) error {
	root, err := codec.DecodeRoot(pack.Snapshot)
	if err != nil {
		return err
	}
	d.root = root
	d.clone = nil
	d.changeID = d.changeID.SyncClocks(change.NewID(
		0, 0, pack.SnapshotVersions.MaxLamport(), d.changeID.Actor(), pack.SnapshotVersions,
	))
	d.publish(Event{Type: SnapshotEvent})
	return nil
}

func (d *Document) applyChange(c *change.Change) error {
	if c.ID().Actor() == d.changeID.Actor() {
		// Our own change echoed back; it already applied locally.
		return nil
	}

	// Advance the local clock past the remote change before applying its
	// operations.
	d.changeID = d.changeID.SyncClocks(c.ID())

	if c.HasOperations() {
		d.ensureClone()
		opInfos, err := c.ApplyTo(d.root)
		if err != nil {
			return fmt.Errorf("apply remote change: %v", err)
		}
		if _, err := c.ApplyTo(d.clone.root); err != nil {
			d.clone = nil
		}
		d.publish(Event{
			Type:       RemoteChangeEvent,
			Message:    c.Message(),
			Operations: opInfos,
			Actor:      c.ID().Actor(),
		})
	}

	if pc := c.PresenceChange(); pc != nil {
		d.applyPresenceChange(c.ID().Actor(), pc)
		d.publish(Event{Type: PresenceChangedEvent, Actor: c.ID().Actor()})
	}
	return nil
}

func (d *Document) applyPresenceChange(actor clock.ActorID, pc *presence.Change) {
	switch pc.ChangeType {
	case presence.Put:
		d.presences[actor] = pc.Presence.DeepCopy()
	case presence.Clear:
		delete(d.presences, actor)
	}
}

// CreateChangePack drains the buffered local changes into a pack for push.
func (d *Document) CreateChangePack(forceRemove bool) *change.Pack {
	d.mu.Lock()
	defer d.mu.Unlock()

	changes := make([]*change.Change, len(d.localChanges))
	copy(changes, d.localChanges)

	checkpoint := d.checkpoint
	if len(changes) > 0 {
		checkpoint.ClientSeq = changes[len(changes)-1].ID().ClientSeq()
	}

	pack := change.NewPack(d.key, checkpoint, changes, d.changeID.Versions().DeepCopy())
	pack.IsRemoved = forceRemove || d.status == StatusRemoved
	return pack
}

// LocalChanges returns a copy of the buffered, unpushed changes.
func (d *Document) LocalChanges() []*change.Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	changes := make([]*change.Change, len(d.localChanges))
	copy(changes, d.localChanges)
	return changes
}

// RestoreState reinstalls persisted replica state: the decoded root, the
// checkpoint and vector it was saved at, and the pending local changes to
// replay. Used on restart before attaching.
func (d *Document) RestoreState(root *crdt.Root, checkpoint change.Checkpoint, versions clock.Vector, pending []*change.Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.root = root
	d.clone = nil
	d.checkpoint = d.checkpoint.Forward(checkpoint)

	merged := d.changeID.SyncClocks(change.NewID(
		0, 0, versions.MaxLamport(), d.changeID.Actor(), versions,
	))
	clientSeq := checkpoint.ClientSeq
	for _, c := range pending {
		if c.ID().ClientSeq() > clientSeq {
			clientSeq = c.ID().ClientSeq()
		}
	}
	d.changeID = change.NewID(clientSeq, 0, merged.Lamport(), merged.Actor(), merged.Versions())
	d.localChanges = append([]*change.Change(nil), pending...)
}

// HasLocalChanges reports whether unpushed changes are buffered.
func (d *Document) HasLocalChanges() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.localChanges) > 0
}

// Checkpoint returns the current high-water marks.
func (d *Document) Checkpoint() change.Checkpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkpoint
}

// GarbageCollect purges everything below the minimum vector.
func (d *Document) GarbageCollect(minVector clock.Vector) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disableGC {
		return 0, nil
	}
	return d.root.GarbageCollect(minVector)
}

// GarbageLen counts entries awaiting collection.
func (d *Document) GarbageLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root.GarbageLen()
}

// Marshal renders the document as JSON.
func (d *Document) Marshal() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root.Object().Marshal()
}

// ToSortedJSON renders the canonical form compared across replicas.
func (d *Document) ToSortedJSON() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root.Object().ToSortedJSON()
}

// Root exposes the live root for inspection and snapshot encoding.
func (d *Document) Root() *crdt.Root {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// DocSize aggregates live and garbage footprints.
func (d *Document) DocSize() crdt.DocSize {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root.DocSize()
}

// VersionVector returns a copy of the replica's current vector.
func (d *Document) VersionVector() clock.Vector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changeID.Versions().DeepCopy()
}

// MyPresence returns a copy of the local actor's presence.
func (d *Document) MyPresence() presence.Presence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presences[d.changeID.Actor()].DeepCopy()
}

// PresenceOf returns a copy of the actor's presence.
func (d *Document) PresenceOf(actor clock.ActorID) presence.Presence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presences[actor].DeepCopy()
}

// Subscribe registers a handler for events visible under the JSON path;
// "$" subscribes to the whole document. The returned function unsubscribes.
func (d *Document) Subscribe(path string, handler EventHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextSubID++
	id := d.nextSubID
	d.subscribers[id] = &subscription{id: id, path: path, handler: handler}

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subscribers, id)
	}
}

// NotifySyncStatus publishes a sync success or failure to subscribers.
func (d *Document) NotifySyncStatus(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publish(Event{Type: SyncStatusChangedEvent, Err: err})
}

// NotifyWatchEvent publishes a peer watch or unwatch to subscribers.
func (d *Document) NotifyWatchEvent(eventType EventType, actor clock.ActorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publish(Event{Type: eventType, Actor: actor})
}

func (d *Document) publish(event Event) {
	for _, sub := range d.subscribers {
		if sub.matches(event) {
			sub.handler(event)
		}
	}
}
