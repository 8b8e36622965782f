package document

import (
	"strings"

	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/operations"
)

// EventType classifies document events.
type EventType string

// Document event kinds.
const (
	// LocalChangeEvent fires when a local transaction commits.
	LocalChangeEvent EventType = "local-change"

	// RemoteChangeEvent fires when a remote change applies.
	RemoteChangeEvent EventType = "remote-change"

	// SnapshotEvent fires when the document fast-forwards from a snapshot.
	SnapshotEvent EventType = "snapshot"

	// StatusChangedEvent fires on detached/attached/removed transitions.
	StatusChangedEvent EventType = "status-changed"

	// SyncStatusChangedEvent fires when a sync attempt succeeds or fails.
	SyncStatusChangedEvent EventType = "sync-status-changed"

	// PresenceChangedEvent fires when a peer's presence changes.
	PresenceChangedEvent EventType = "presence-changed"

	// WatchedEvent fires when a peer starts watching the document.
	WatchedEvent EventType = "watched"

	// UnwatchedEvent fires when a peer stops watching the document.
	UnwatchedEvent EventType = "unwatched"
)

// Event is delivered to subscribers in commit order.
type Event struct {
	Type       EventType
	Message    string
	Operations []operations.Info
	Actor      clock.ActorID
	Status     Status
	Err        error
}

// EventHandler consumes document events. Handlers run on the publishing
// goroutine while the document mailbox is held and must not call back into
// the document.
type EventHandler func(event Event)

type subscription struct {
	id      int
	path    string
	handler EventHandler
}

// matches reports whether the event is visible under the subscribed path.
func (s *subscription) matches(event Event) bool {
	if s.path == "" || s.path == "$" {
		return true
	}
	if len(event.Operations) == 0 {
		return true
	}
	for _, info := range event.Operations {
		if info.Path == s.path || strings.HasPrefix(info.Path, s.path+".") {
			return true
		}
	}
	return false
}
