package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/collabkit/docsync/document"
)

// SyncMode selects how an attached document synchronizes.
type SyncMode int

// Sync modes.
const (
	// SyncModeManual pushes and pulls only on explicit Sync calls.
	SyncModeManual SyncMode = iota

	// SyncModeRealtime pushes local changes and pulls on remote-change
	// notifications.
	SyncModeRealtime

	// SyncModeRealtimePushOnly pushes local changes but never pulls.
	SyncModeRealtimePushOnly

	// SyncModeRealtimeSyncOff keeps the watch stream but suspends
	// synchronization.
	SyncModeRealtimeSyncOff
)

func (m SyncMode) String() string {
	switch m {
	case SyncModeManual:
		return "manual"
	case SyncModeRealtime:
		return "realtime"
	case SyncModeRealtimePushOnly:
		return "realtime-pushonly"
	case SyncModeRealtimeSyncOff:
		return "realtime-syncoff"
	default:
		return "unknown"
	}
}

// Attachment is the per-document sync state: the mode, the watch stream
// lifecycle and the binary semaphore keeping at most one push-pull in
// flight.
type Attachment struct {
	doc    *document.Document
	docKey string

	syncMode                  atomic.Int32
	remoteChangeEventReceived atomic.Bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}

	syncSemaphore chan struct{}
	cancelled     atomic.Bool

	// retryAfter defers loop-driven syncs until the stored unix-nano time
	// after a push-pull failure.
	retryAfter atomic.Int64
}

func newAttachment(doc *document.Document, mode SyncMode) *Attachment {
	a := &Attachment{
		doc:           doc,
		docKey:        doc.Key(),
		syncSemaphore: make(chan struct{}, 1),
	}
	a.syncMode.Store(int32(mode))
	// Force the first pull after going realtime.
	a.remoteChangeEventReceived.Store(true)
	return a
}

// Document returns the attached document.
func (a *Attachment) Document() *document.Document {
	return a.doc
}

// SyncMode returns the current mode.
func (a *Attachment) SyncMode() SyncMode {
	return SyncMode(a.syncMode.Load())
}

func (a *Attachment) setSyncMode(mode SyncMode) {
	a.syncMode.Store(int32(mode))
}

// needRealtimeSync reports whether the sync loop should push-pull this
// document now.
func (a *Attachment) needRealtimeSync() bool {
	if a.cancelled.Load() {
		return false
	}
	if deadline := a.retryAfter.Load(); deadline != 0 && time.Now().UnixNano() < deadline {
		return false
	}
	switch a.SyncMode() {
	case SyncModeManual, SyncModeRealtimeSyncOff:
		return false
	case SyncModeRealtimePushOnly:
		return a.doc.HasLocalChanges()
	default:
		return a.doc.HasLocalChanges() || a.remoteChangeEventReceived.Load()
	}
}

// acquire takes the sync slot, blocking until free or the context ends.
func (a *Attachment) acquire(ctx context.Context) error {
	select {
	case a.syncSemaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire takes the sync slot without blocking.
func (a *Attachment) tryAcquire() bool {
	select {
	case a.syncSemaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (a *Attachment) release() {
	<-a.syncSemaphore
}

// cancel moves the attachment to its terminal state: the watch stream is
// released and timers die with its context.
func (a *Attachment) cancel() {
	if a.cancelled.Swap(true) {
		return
	}
	if a.watchCancel != nil {
		a.watchCancel()
	}
}
