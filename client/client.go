// Package client coordinates attached documents against a broker through
// the Transport adapter: activation, attachment lifecycle, the realtime
// sync and watch loops, and topic broadcast.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/collabkit/docsync/change"
	"github.com/collabkit/docsync/clock"
	"github.com/collabkit/docsync/codec"
	"github.com/collabkit/docsync/document"
	"github.com/collabkit/docsync/internal/logging"
	"github.com/collabkit/docsync/persistence"
)

// Client failure kinds.
var (
	// ErrClientNotActivated is returned when the client is not activated.
	ErrClientNotActivated = errors.New("client is not activated")

	// ErrDocumentNotAttached is returned when the document is not attached.
	ErrDocumentNotAttached = errors.New("document is not attached")

	// ErrDocumentNotDetached is returned when attaching a non-detached
	// document.
	ErrDocumentNotDetached = errors.New("document is not detached")

	// ErrAttachmentTimeout is returned when attach initialization exceeds
	// the configured deadline.
	ErrAttachmentTimeout = errors.New("attachment timed out")

	// ErrRPCFailure wraps transport failures surfaced to callers.
	ErrRPCFailure = errors.New("rpc failure")

	// ErrRemoteNotActivated is returned by transports when the server no
	// longer knows the client; it forces a local deactivate.
	ErrRemoteNotActivated = errors.New("client not activated on server")

	// ErrRemoteNotFound is returned by transports when the server no
	// longer knows the document; it forces a local deactivate.
	ErrRemoteNotFound = errors.New("document not found on server")
)

type status int

const (
	deactivated status = iota
	activated
)

// Client talks to the broker for a set of attached documents.
type Client struct {
	transport Transport
	options   Options
	logger    logging.Logger
	store     *persistence.Store

	mu          sync.Mutex
	key         string
	actor       clock.ActorID
	status      status
	attachments map[string]*Attachment

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewClient creates a client over the transport.
func NewClient(transport Transport, options Options) (*Client, error) {
	options = options.applyDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}
	key := options.Key
	if key == "" {
		key = uuid.New().String()
	}
	return &Client{
		transport:   transport,
		options:     options,
		logger:      options.Logger,
		store:       options.Store,
		key:         key,
		attachments: make(map[string]*Attachment),
	}, nil
}

// Key returns the client key.
func (c *Client) Key() string {
	return c.key
}

// ActorID returns the actor assigned on activation.
func (c *Client) ActorID() clock.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actor
}

// IsActive reports whether the client is activated.
func (c *Client) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == activated
}

// Activate registers the client and starts the sync loop.
func (c *Client) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == activated {
		return nil
	}

	actor, err := c.transport.Activate(ctx, c.key)
	if err != nil {
		return fmt.Errorf("activate: %v: %w", err, ErrRPCFailure)
	}
	c.actor = actor
	c.status = activated

	loopCtx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.loopDone = make(chan struct{})
	go c.runSyncLoop(loopCtx)
	return nil
}

// Deactivate detaches every document locally, stops the loops and releases
// the registration.
func (c *Client) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	if c.status == deactivated {
		c.mu.Unlock()
		return nil
	}
	for key, attachment := range c.attachments {
		attachment.cancel()
		attachment.doc.SetStatus(document.StatusDetached)
		delete(c.attachments, key)
	}
	c.status = deactivated
	cancel := c.loopCancel
	done := c.loopDone
	actor := c.actor
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if err := c.transport.Deactivate(ctx, actor); err != nil {
		return fmt.Errorf("deactivate: %v: %w", err, ErrRPCFailure)
	}
	return nil
}

// Attach uploads the document to the broker and begins synchronizing it in
// the given mode.
func (c *Client) Attach(ctx context.Context, doc *document.Document, mode SyncMode) error {
	c.mu.Lock()
	if c.status != activated {
		c.mu.Unlock()
		return ErrClientNotActivated
	}
	actor := c.actor
	c.mu.Unlock()

	switch doc.Status() {
	case document.StatusRemoved:
		return document.ErrDocumentRemoved
	case document.StatusAttached:
		return ErrDocumentNotDetached
	}

	doc.SetActor(actor)
	doc.SetDisableGC(c.options.DisableGC)

	attachCtx, cancel := context.WithTimeout(ctx, c.options.MaximumAttachmentTimeout)
	defer cancel()

	pack, err := c.transport.Attach(attachCtx, actor, doc.CreateChangePack(false))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("attach %s: %w", doc.Key(), ErrAttachmentTimeout)
		}
		return fmt.Errorf("attach %s: %v: %w", doc.Key(), err, ErrRPCFailure)
	}
	if err := doc.ApplyChangePack(pack); err != nil {
		return err
	}
	if doc.Status() == document.StatusRemoved {
		return document.ErrDocumentRemoved
	}
	doc.SetStatus(document.StatusAttached)

	attachment := newAttachment(doc, mode)
	c.mu.Lock()
	c.attachments[doc.Key()] = attachment
	c.mu.Unlock()

	if mode != SyncModeManual {
		c.runWatchLoop(attachment)
	}
	return nil
}

// Detach releases the attachment, leaving the document detached.
func (c *Client) Detach(ctx context.Context, doc *document.Document) error {
	attachment, err := c.attachmentOf(doc)
	if err != nil {
		return err
	}

	pack, err := c.transport.Detach(ctx, c.ActorID(), doc.CreateChangePack(false))
	if err != nil {
		return fmt.Errorf("detach %s: %v: %w", doc.Key(), err, ErrRPCFailure)
	}
	if err := doc.ApplyChangePack(pack); err != nil {
		return err
	}

	c.teardown(attachment)
	if doc.Status() != document.StatusRemoved {
		doc.SetStatus(document.StatusDetached)
	}
	return nil
}

// Remove removes the document on the broker; every replica transitions to
// removed when it observes the removal.
func (c *Client) Remove(ctx context.Context, doc *document.Document) error {
	attachment, err := c.attachmentOf(doc)
	if err != nil {
		return err
	}

	pack, err := c.transport.Remove(ctx, c.ActorID(), doc.CreateChangePack(true))
	if err != nil {
		return fmt.Errorf("remove %s: %v: %w", doc.Key(), err, ErrRPCFailure)
	}
	pack.IsRemoved = true
	if err := doc.ApplyChangePack(pack); err != nil {
		return err
	}

	c.teardown(attachment)
	return nil
}

// ChangeSyncMode switches the attachment's mode. Entering a realtime mode
// forces a pull and (re)opens the watch stream; leaving realtime closes it.
func (c *Client) ChangeSyncMode(doc *document.Document, mode SyncMode) error {
	attachment, err := c.attachmentOf(doc)
	if err != nil {
		return err
	}

	prev := attachment.SyncMode()
	attachment.setSyncMode(mode)

	if prev == mode {
		return nil
	}
	if mode == SyncModeManual {
		if attachment.watchCancel != nil {
			attachment.watchCancel()
			attachment.watchCancel = nil
		}
		return nil
	}
	if prev == SyncModeManual {
		attachment.remoteChangeEventReceived.Store(true)
		c.runWatchLoop(attachment)
	}
	if mode == SyncModeRealtime {
		attachment.remoteChangeEventReceived.Store(true)
	}
	return nil
}

// Sync pushes and pulls the given documents, or every attached document
// when none are given. Per document at most one exchange is in flight; this
// call waits for the slot.
func (c *Client) Sync(ctx context.Context, docs ...*document.Document) error {
	var attachments []*Attachment
	if len(docs) == 0 {
		c.mu.Lock()
		for _, attachment := range c.attachments {
			attachments = append(attachments, attachment)
		}
		c.mu.Unlock()
	} else {
		for _, doc := range docs {
			attachment, err := c.attachmentOf(doc)
			if err != nil {
				return err
			}
			attachments = append(attachments, attachment)
		}
	}

	for _, attachment := range attachments {
		if err := attachment.acquire(ctx); err != nil {
			return err
		}
		err := c.syncInternal(ctx, attachment)
		attachment.release()
		if err != nil {
			return err
		}
	}
	return nil
}

// Broadcast publishes the payload on the document's topic, retrying with
// exponential backoff.
func (c *Client) Broadcast(ctx context.Context, docKey, topic string, payload []byte) error {
	c.mu.Lock()
	_, attached := c.attachments[docKey]
	actor := c.actor
	active := c.status == activated
	c.mu.Unlock()
	if !active {
		return ErrClientNotActivated
	}
	if !attached {
		return ErrDocumentNotAttached
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.options.InitialRetryInterval
	expo.MaxInterval = c.options.MaxBackoff
	expo.MaxElapsedTime = 0

	var policy backoff.BackOff = expo
	if c.options.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.options.MaxRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	err := backoff.Retry(func() error {
		return c.transport.Broadcast(ctx, actor, docKey, topic, payload)
	}, policy)
	if err != nil {
		return fmt.Errorf("broadcast %s/%s: %v: %w", docKey, topic, err, ErrRPCFailure)
	}
	return nil
}

// PersistDocument flushes the document's pending changes and a fresh
// snapshot to the configured store.
func (c *Client) PersistDocument(doc *document.Document) error {
	if c.store == nil {
		return nil
	}
	for _, pending := range doc.LocalChanges() {
		data, err := codec.MarshalChange(pending)
		if err != nil {
			return err
		}
		if err := c.store.AppendChange(doc.Key(), pending.ID().ClientSeq(), data); err != nil {
			return err
		}
	}
	rootBytes, err := codec.EncodeRoot(doc.Root())
	if err != nil {
		return err
	}
	return c.store.SaveSnapshot(doc.Key(), persistence.Snapshot{
		Root:       rootBytes,
		Checkpoint: doc.Checkpoint(),
		Versions:   doc.VersionVector(),
	})
}

// RestoreDocument reinstalls the document's persisted state, replaying the
// pending-change log above the snapshot's checkpoint. Call before Attach.
func (c *Client) RestoreDocument(doc *document.Document) error {
	if c.store == nil {
		return nil
	}
	snapshot, found, err := c.store.LoadSnapshot(doc.Key())
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	root, err := codec.DecodeRoot(snapshot.Root)
	if err != nil {
		return err
	}
	records, err := c.store.ChangesSince(doc.Key(), snapshot.Checkpoint.ClientSeq)
	if err != nil {
		return err
	}
	var pending []*change.Change
	for _, record := range records {
		pendingChange, err := codec.UnmarshalChange(record)
		if err != nil {
			return err
		}
		if _, err := pendingChange.ApplyTo(root); err != nil {
			return fmt.Errorf("replay pending change: %v", err)
		}
		pending = append(pending, pendingChange)
	}
	doc.RestoreState(root, snapshot.Checkpoint, snapshot.Versions, pending)
	return nil
}

// Attachment returns the attachment for an attached document.
func (c *Client) Attachment(docKey string) (*Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	attachment, ok := c.attachments[docKey]
	return attachment, ok
}

func (c *Client) attachmentOf(doc *document.Document) (*Attachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != activated {
		return nil, ErrClientNotActivated
	}
	attachment, ok := c.attachments[doc.Key()]
	if !ok {
		return nil, ErrDocumentNotAttached
	}
	return attachment, nil
}

func (c *Client) teardown(attachment *Attachment) {
	attachment.cancel()
	c.mu.Lock()
	delete(c.attachments, attachment.docKey)
	c.mu.Unlock()
}

// runSyncLoop drives realtime attachments: every tick, documents that need
// a sync get one, unless an exchange is already in flight.
func (c *Client) runSyncLoop(ctx context.Context) {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.options.SyncLoopDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, attachment := range c.attachmentList() {
				if !attachment.needRealtimeSync() {
					continue
				}
				if !attachment.tryAcquire() {
					continue
				}
				go func(a *Attachment) {
					defer a.release()
					if err := c.syncInternal(ctx, a); err != nil {
						c.logger.Warn("sync failed", map[string]interface{}{
							"doc":   a.docKey,
							"error": err.Error(),
						})
					}
				}(attachment)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) attachmentList() []*Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	attachments := make([]*Attachment, 0, len(c.attachments))
	for _, attachment := range c.attachments {
		attachments = append(attachments, attachment)
	}
	return attachments
}

func (c *Client) syncInternal(ctx context.Context, attachment *Attachment) error {
	doc := attachment.doc

	if c.store != nil {
		if err := c.PersistDocument(doc); err != nil {
			c.logger.Warn("persist before push failed", map[string]interface{}{
				"doc":   doc.Key(),
				"error": err.Error(),
			})
		}
	}

	pack, err := c.transport.PushPull(ctx, c.ActorID(), doc.CreateChangePack(false))
	if err != nil {
		// Re-arm the loop after the reconnect delay instead of hammering
		// every tick.
		attachment.retryAfter.Store(time.Now().Add(c.options.ReconnectStreamDelay).UnixNano())
		doc.NotifySyncStatus(err)
		if errors.Is(err, ErrRemoteNotActivated) || errors.Is(err, ErrRemoteNotFound) {
			c.logger.Warn("server rejected client; deactivating", map[string]interface{}{
				"doc": doc.Key(),
			})
			go func() {
				deactivateCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = c.Deactivate(deactivateCtx)
			}()
		}
		return fmt.Errorf("push pull %s: %v: %w", doc.Key(), err, ErrRPCFailure)
	}

	attachment.retryAfter.Store(0)
	if err := doc.ApplyChangePack(pack); err != nil {
		doc.NotifySyncStatus(err)
		return err
	}
	if attachment.SyncMode() != SyncModeRealtimePushOnly {
		attachment.remoteChangeEventReceived.Store(false)
	}
	doc.NotifySyncStatus(nil)

	if c.store != nil {
		if err := c.PersistDocument(doc); err != nil {
			c.logger.Warn("persist after pull failed", map[string]interface{}{
				"doc":   doc.Key(),
				"error": err.Error(),
			})
		}
	}

	if doc.Status() == document.StatusRemoved {
		c.teardown(attachment)
	}
	return nil
}

// runWatchLoop opens the watch stream and keeps it alive, re-arming with
// the configured delay on transient failures. Cancellation is silent.
func (c *Client) runWatchLoop(attachment *Attachment) {
	ctx, cancel := context.WithCancel(context.Background())
	attachment.watchCancel = cancel
	attachment.watchDone = make(chan struct{})

	go func() {
		defer close(attachment.watchDone)
		for {
			if ctx.Err() != nil || attachment.cancelled.Load() {
				return
			}
			stream, err := c.transport.Watch(ctx, c.ActorID(), attachment.docKey)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("watch stream failed; reconnecting", map[string]interface{}{
					"doc":   attachment.docKey,
					"error": err.Error(),
				})
				if !sleepCtx(ctx, c.options.ReconnectStreamDelay) {
					return
				}
				continue
			}

			c.consumeStream(ctx, attachment, stream)
			if ctx.Err() != nil {
				return
			}
			if !sleepCtx(ctx, c.options.ReconnectStreamDelay) {
				return
			}
		}
	}()
}

func (c *Client) consumeStream(ctx context.Context, attachment *Attachment, stream WatchStream) {
	defer stream.Close()
	for {
		event, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("watch stream interrupted", map[string]interface{}{
					"doc":   attachment.docKey,
					"error": err.Error(),
				})
			}
			return
		}
		switch event.Type {
		case WatchDocChanged:
			attachment.remoteChangeEventReceived.Store(true)
		case WatchWatched:
			attachment.doc.NotifyWatchEvent(document.WatchedEvent, event.Actor)
		case WatchUnwatched:
			attachment.doc.NotifyWatchEvent(document.UnwatchedEvent, event.Actor)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
