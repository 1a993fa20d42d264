package lockbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gannonmg/lockbox/pkg/backend"
	"github.com/gannonmg/lockbox/pkg/codec"
	lberrors "github.com/gannonmg/lockbox/pkg/errors"
	"github.com/gannonmg/lockbox/pkg/notify"
)

var errEmptyKey = errors.New("key must not be empty")

// Store is the secret store facade. It orchestrates the codec, the backend
// and the change notifier: values are encoded before they reach the backend
// and change events fire after successful mutations.
//
// Store holds no mutable state of its own and is safe to share across
// goroutines. Writes to the same key from concurrent callers are not
// serialized here; the backend's replace sequence decides which write wins,
// so callers that need write atomicity for a key must serialize externally.
//
// Every read goes to the backend. The store keeps no copy of any value, so
// out-of-process changes to a shared credential store are always visible.
// Wrap the backend with middleware.NewCached to trade that freshness for
// speed.
type Store struct {
	backend   backend.Backend
	codec     codec.Codec
	notifier  *notify.Notifier
	namespace string
	logger    *slog.Logger
}

// New creates a Store over the given backend.
//
// Example:
//
//	store, err := lockbox.New(memory.New(),
//	    lockbox.WithNamespace("myapp"),
//	)
func New(b backend.Backend, opts ...Option) (*Store, error) {
	if b == nil {
		return nil, fmt.Errorf("lockbox: backend must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.New(cfg.Logger)
	}

	s := &Store{
		backend:   b,
		codec:     cfg.Codec,
		notifier:  notifier,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
	}

	s.logger.Info("lockbox store initialized",
		"backend", fmt.Sprintf("%T", b),
		"namespace", s.namespace,
	)
	return s, nil
}

// Save stores value under key, replacing any existing value. On success a
// change event with no key is published to subscribers.
//
// A failed save may still have removed the previous value: the backend
// replaces by deleting the old record before inserting the new one, and the
// insert can fail after the delete succeeded.
func (s *Store) Save(ctx context.Context, key, value string) error {
	if key == "" {
		return lberrors.NewAddFailedError(key, errEmptyKey)
	}

	data, err := s.codec.Encode(value)
	if err != nil {
		return lberrors.NewEncodingFailedError(err)
	}

	if err := s.backend.Put(ctx, s.namespace, key, data); err != nil {
		return lberrors.NewAddFailedError(key, err)
	}

	s.notifier.Publish(ctx, notify.SaveEvent())
	s.logger.Debug("secret saved", "namespace", s.namespace, "key", key)
	return nil
}

// Get returns the value stored under key. A missing key reports a not-found
// error and an unreachable backend reports backend-unavailable. Stored
// bytes that do not decode report a corrupt value.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", lberrors.NewNotFoundError(key)
	}

	data, err := s.backend.Get(ctx, s.namespace, key)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return "", lberrors.NewNotFoundError(key)
		}
		return "", lberrors.NewBackendUnavailableError(err)
	}

	value, err := s.codec.Decode(data)
	if err != nil {
		return "", lberrors.NewCorruptValueError(key, err)
	}
	return value, nil
}

// Remove deletes the value stored under key. On success a change event
// carrying the key is published to subscribers.
//
// Removing a key that was never stored is an error: any backend failure on
// delete, not-found included, surfaces as a delete failure whose detail
// carries the backend diagnostic.
func (s *Store) Remove(ctx context.Context, key string) error {
	if key == "" {
		return lberrors.NewDeleteFailedError(key, errEmptyKey.Error(), errEmptyKey)
	}

	if err := s.backend.Delete(ctx, s.namespace, key); err != nil {
		return lberrors.NewDeleteFailedError(key, err.Error(), err)
	}

	s.notifier.Publish(ctx, notify.RemoveEvent(key))
	s.logger.Debug("secret removed", "namespace", s.namespace, "key", key)
	return nil
}

// ClearAll purges every record in the store's namespace across all item
// classes, including records other tooling placed there. It is best effort:
// backend failures are logged and swallowed, and a failing class never
// aborts the sweep of the remaining classes. No error reaches the caller
// and no change event is published.
func (s *Store) ClearAll(ctx context.Context) {
	if err := s.backend.Clear(ctx, s.namespace, backend.AllClasses()); err != nil {
		s.logger.Debug("clear all reported failures",
			"namespace", s.namespace,
			"error", err,
		)
		return
	}
	s.logger.Debug("cleared all secrets", "namespace", s.namespace)
}

// Subscribe registers a handler for change events. The handler runs
// synchronously on the goroutine that performed the mutation.
func (s *Store) Subscribe(h notify.Handler) notify.Subscription {
	return s.notifier.Subscribe(h)
}

// Unsubscribe removes a previously registered handler.
func (s *Store) Unsubscribe(sub notify.Subscription) {
	s.notifier.Unsubscribe(sub)
}

// Notifier returns the store's change notifier, for callers that share one
// notifier between several stores or publish their own events.
func (s *Store) Notifier() *notify.Notifier {
	return s.notifier
}

// Namespace returns the namespace this store writes under.
func (s *Store) Namespace() string {
	return s.namespace
}

// Close releases backend resources when the backend holds any, such as
// connection pools or renewal goroutines. The store itself owns nothing.
func (s *Store) Close() error {
	if closer, ok := s.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close backend: %w", err)
		}
	}
	return nil
}
