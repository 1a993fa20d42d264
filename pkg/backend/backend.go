// Package backend defines the public contract for secret storage adapters.
// Each adapter (in-memory, OS keyring, Vault, Redis, etc.) implements this
// interface to persist raw secret bytes addressed by namespace and key.
package backend

import (
	"context"
	"errors"
)

// Sentinel errors returned by adapters. Callers match them with errors.Is;
// adapters wrap them to attach their own diagnostics.
var (
	// ErrNotFound reports that no record exists for the requested key.
	ErrNotFound = errors.New("backend: secret not found")

	// ErrUnavailable reports that the store could not be queried at all,
	// as opposed to answering with a miss.
	ErrUnavailable = errors.New("backend: store unavailable")
)

// Class identifies the kind of record an item holds. Application writes use
// ClassGenericPassword; the remaining classes exist so bulk purges can also
// sweep records that other tooling placed in the same store.
type Class string

const (
	ClassGenericPassword  Class = "generic-password"
	ClassInternetPassword Class = "internet-password"
	ClassCertificate      Class = "certificate"
	ClassKey              Class = "key"
	ClassIdentity         Class = "identity"
)

// AllClasses returns every recognized item class in purge order.
func AllClasses() []Class {
	return []Class{
		ClassGenericPassword,
		ClassInternetPassword,
		ClassCertificate,
		ClassKey,
		ClassIdentity,
	}
}

// IsValid reports whether c is one of the recognized item classes.
func (c Class) IsValid() bool {
	switch c {
	case ClassGenericPassword, ClassInternetPassword, ClassCertificate, ClassKey, ClassIdentity:
		return true
	}
	return false
}

// Backend defines the interface that all secret storage adapters must
// implement. Operations are blocking and return when the store has accepted
// or rejected the change; adapters perform no internal retries.
type Backend interface {
	// Put stores value under namespace and key, replacing any existing
	// record unconditionally. Implementations must remove a prior record
	// before inserting, since some underlying stores reject duplicate
	// inserts for the same key.
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Get returns the stored bytes for key. It returns ErrNotFound when no
	// record exists and ErrUnavailable when the store cannot be queried.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes the record for key. It returns ErrNotFound when there
	// was nothing to remove, so callers can tell "removed" from "absent".
	Delete(ctx context.Context, namespace, key string) error

	// Clear removes every record in namespace belonging to the given
	// classes. It is best effort: a failure on one class must not stop the
	// sweep of the remaining classes. Per-class failures are joined and
	// returned so callers can log them.
	Clear(ctx context.Context, namespace string, classes []Class) error
}

// Config contains adapter-specific configuration used by the registry.
// Adapters read the fields they understand and translate them into their
// own richer configuration types.
type Config struct {
	Type     string            // adapter name: "memory", "file", "keyring", ...
	Address  string            // network address, DSN, or bucket, depending on the adapter
	Path     string            // filesystem path for file-backed adapters
	Prefix   string            // key prefix or folder inside shared stores
	Settings map[string]string // remaining adapter-specific options
}

// Factory creates backend instances from configuration.
type Factory func(cfg Config) (Backend, error)
