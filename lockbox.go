// Package lockbox provides a pluggable secret store as a Go library.
// It persists, retrieves and deletes string-valued secrets keyed by name.
// Secret-at-rest protection is delegated to a storage backend, and every
// mutation is announced to subscribers.
//
// Backends range from the in-memory store used in tests to the OS keyring,
// HashiCorp Vault, Redis, PostgreSQL and S3. All of them satisfy the same
// contract, so the choice of store is wiring, not code.
//
// Basic usage:
//
//	store, err := lockbox.New(memory.New(),
//	    lockbox.WithNamespace("myapp"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Save(ctx, "api-token", "s3cr3t"); err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := store.Get(ctx, "api-token")
//
// Subscribers observe mutations through change events:
//
//	store.Subscribe(func(ctx context.Context, ev lockbox.Event) {
//	    if ev.Key != nil {
//	        log.Printf("removed %s", *ev.Key)
//	    }
//	})
package lockbox

import (
	"github.com/gannonmg/lockbox/pkg/backend"
	"github.com/gannonmg/lockbox/pkg/codec"
	"github.com/gannonmg/lockbox/pkg/errors"
	"github.com/gannonmg/lockbox/pkg/notify"
)

// Version is the current version of lockbox.
const Version = "1.2.0"

// Re-export backend types for convenience.
// Users can use lockbox.Backend instead of backend.Backend.
type (
	// Backend is the interface all storage adapters implement.
	Backend = backend.Backend

	// BackendConfig contains adapter-specific configuration used by the
	// backends registry.
	BackendConfig = backend.Config

	// BackendFactory creates backend instances from configuration.
	BackendFactory = backend.Factory

	// Class identifies the kind of record an item holds.
	Class = backend.Class
)

// Re-export item class constants.
const (
	ClassGenericPassword  = backend.ClassGenericPassword
	ClassInternetPassword = backend.ClassInternetPassword
	ClassCertificate      = backend.ClassCertificate
	ClassKey              = backend.ClassKey
	ClassIdentity         = backend.ClassIdentity
)

// Re-export codec types.
type (
	// Codec converts secret values to and from stored bytes.
	Codec = codec.Codec

	// UTF8Codec is the default codec, storing values as UTF-8 bytes.
	UTF8Codec = codec.UTF8
)

// Re-export notification types.
type (
	// Event describes a completed mutation of the store. Key is nil for a
	// save and points at the removed key for a removal.
	Event = notify.Event

	// Handler receives change events.
	Handler = notify.Handler

	// Subscription identifies a registered handler for later removal.
	Subscription = notify.Subscription

	// ChangeNotifier fans events out to registered handlers.
	ChangeNotifier = notify.Notifier
)

// Re-export error types.
type (
	// StoreError represents a standardized error from a store operation.
	StoreError = errors.StoreError
)

// Re-export error kind constants.
const (
	KindEncodingFailed     = errors.KindEncodingFailed
	KindCorruptValue       = errors.KindCorruptValue
	KindNotFound           = errors.KindNotFound
	KindBackendUnavailable = errors.KindBackendUnavailable
	KindAddFailed          = errors.KindAddFailed
	KindDeleteFailed       = errors.KindDeleteFailed
)

// Re-export error predicate functions.
var (
	IsEncodingFailed     = errors.IsEncodingFailed
	IsCorruptValue       = errors.IsCorruptValue
	IsNotFound           = errors.IsNotFound
	IsBackendUnavailable = errors.IsBackendUnavailable
	IsAddFailed          = errors.IsAddFailed
	IsDeleteFailed       = errors.IsDeleteFailed
)

// Re-export notifier constructors and event factories.
var (
	// NewNotifier creates a standalone change notifier.
	NewNotifier = notify.New

	// SaveEvent returns the event published after a successful save.
	SaveEvent = notify.SaveEvent

	// RemoveEvent returns the event published after a successful removal.
	RemoveEvent = notify.RemoveEvent
)
