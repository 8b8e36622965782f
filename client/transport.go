package client

import (
	"context"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
)

// WatchEventType classifies events delivered on a watch stream.
type WatchEventType string

// Watch stream event kinds.
const (
	// WatchDocChanged signals that the document changed on the server and
	// a pull is worthwhile.
	WatchDocChanged WatchEventType = "doc-changed"

	// WatchWatched signals that a peer started watching.
	WatchWatched WatchEventType = "watched"

	// WatchUnwatched signals that a peer stopped watching.
	WatchUnwatched WatchEventType = "unwatched"
)

// WatchEvent is one notification from the broker.
type WatchEvent struct {
	Type  WatchEventType
	Actor clock.ActorID
}

// WatchStream delivers watch events until closed.
type WatchStream interface {
	// Next blocks for the next event. A canceled stream returns the
	// context error.
	Next() (WatchEvent, error)

	// Close releases the stream.
	Close() error
}

// Transport is the network adapter: everything the client needs from the
// broker. Implementations handle authentication, routing and retries; the
// client only sequences packs through it.
type Transport interface {
	// Activate registers the client and returns its actor ID.
	Activate(ctx context.Context, clientKey string) (clock.ActorID, error)

	// Deactivate releases the client registration.
	Deactivate(ctx context.Context, actor clock.ActorID) error

	// Attach uploads the document's initial pack and returns the server's.
	Attach(ctx context.Context, actor clock.ActorID, pack *change.Pack) (*change.Pack, error)

	// Detach releases the attachment.
	Detach(ctx context.Context, actor clock.ActorID, pack *change.Pack) (*change.Pack, error)

	// Remove removes the document on the server.
	Remove(ctx context.Context, actor clock.ActorID, pack *change.Pack) (*change.Pack, error)

	// PushPull exchanges local changes for unseen remote ones.
	PushPull(ctx context.Context, actor clock.ActorID, pack *change.Pack) (*change.Pack, error)

	// Watch opens the notification stream for a document.
	Watch(ctx context.Context, actor clock.ActorID, docKey string) (WatchStream, error)

	// Broadcast publishes an application payload to the document's topic.
	Broadcast(ctx context.Context, actor clock.ActorID, docKey, topic string, payload []byte) error
}
