package client

import (
	"fmt"
	"time"

	"github.com/collabkit/docsync/internal/logging"
	"github.com/collabkit/docsync/persistence"
)

// Options configures a client.
type Options struct {
	// Key identifies the client against the broker. A random key is used
	// when empty.
	Key string

	// SyncLoopDuration is the idle gap between sync loop iterations.
	SyncLoopDuration time.Duration

	// ReconnectStreamDelay is the backoff after a transient watch-stream
	// failure.
	ReconnectStreamDelay time.Duration

	// MaximumAttachmentTimeout bounds attach initialization.
	MaximumAttachmentTimeout time.Duration

	// DisableGC suppresses tombstone purging, for debugging.
	DisableGC bool

	// MaxRetries bounds broadcast retries; zero means unbounded.
	MaxRetries int

	// InitialRetryInterval seeds the broadcast backoff.
	InitialRetryInterval time.Duration

	// MaxBackoff caps the broadcast backoff interval.
	MaxBackoff time.Duration

	// Logger receives sync and watch loop diagnostics.
	Logger logging.Logger

	// Store persists snapshots and pending changes across restarts.
	Store *persistence.Store
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		SyncLoopDuration:         50 * time.Millisecond,
		ReconnectStreamDelay:     1000 * time.Millisecond,
		MaximumAttachmentTimeout: 5000 * time.Millisecond,
		MaxRetries:               0,
		InitialRetryInterval:     1000 * time.Millisecond,
		MaxBackoff:               20000 * time.Millisecond,
		Logger:                   logging.Noop{},
	}
}

// applyDefaults fills zero fields with defaults.
func (o Options) applyDefaults() Options {
	defaults := DefaultOptions()
	if o.SyncLoopDuration == 0 {
		o.SyncLoopDuration = defaults.SyncLoopDuration
	}
	if o.ReconnectStreamDelay == 0 {
		o.ReconnectStreamDelay = defaults.ReconnectStreamDelay
	}
	if o.MaximumAttachmentTimeout == 0 {
		o.MaximumAttachmentTimeout = defaults.MaximumAttachmentTimeout
	}
	if o.InitialRetryInterval == 0 {
		o.InitialRetryInterval = defaults.InitialRetryInterval
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = defaults.MaxBackoff
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	return o
}

// Validate rejects nonsensical configurations.
func (o Options) Validate() error {
	if o.SyncLoopDuration < 0 {
		return fmt.Errorf("sync loop duration must not be negative: %v", o.SyncLoopDuration)
	}
	if o.ReconnectStreamDelay < 0 {
		return fmt.Errorf("reconnect stream delay must not be negative: %v", o.ReconnectStreamDelay)
	}
	if o.MaximumAttachmentTimeout < 0 {
		return fmt.Errorf("attachment timeout must not be negative: %v", o.MaximumAttachmentTimeout)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative: %d", o.MaxRetries)
	}
	return nil
}
