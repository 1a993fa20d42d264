// Package keyring provides a backend on top of the operating system
// credential store: Keychain on macOS, Credential Manager on Windows, and
// the freedesktop.org Secret Service on Linux.
package keyring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/goccy/go-json"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// indexUser is the reserved account name holding the per-namespace index.
// Real records always contain a "/" between class and key, so the name
// cannot collide with one.
const indexUser = "__index__"

// Config holds configuration for the keyring backend.
type Config struct {
	// Prefix is prepended to the namespace to form the keyring service
	// name, separating lockbox entries from other applications that use
	// the same namespace string.
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{}
}

// Backend stores records in the OS credential store. The store has no list
// operation, so the adapter keeps a JSON index entry per namespace to make
// bulk purges possible. The index tracks only entries written through this
// adapter; records placed by other tools are untouched by Clear.
type Backend struct {
	prefix string

	// Guards read-modify-write cycles on the index entry.
	mu sync.Mutex
}

// New creates a keyring backend.
func New(cfg Config) *Backend {
	return &Backend{prefix: cfg.Prefix}
}

// NewFromConfig creates a keyring backend from registry configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	return New(Config{Prefix: cfg.Prefix}), nil
}

// Put stores value under namespace and key, replacing any existing record.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("keyring put: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	service := b.service(namespace)
	user := entryUser(backend.ClassGenericPassword, key)

	// The OS stores replace on Set, but the contract promises a prior
	// record is gone even when the insert then fails.
	if err := gokeyring.Delete(service, user); err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("keyring put: clear previous: %w", mapErr(err))
	}

	encoded := base64.StdEncoding.EncodeToString(value)
	if err := gokeyring.Set(service, user, encoded); err != nil {
		return fmt.Errorf("keyring put: %w", mapErr(err))
	}

	if err := b.indexAdd(service, backend.ClassGenericPassword, key); err != nil {
		return fmt.Errorf("keyring put: %w", err)
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	raw, err := gokeyring.Get(b.service(namespace), entryUser(backend.ClassGenericPassword, key))
	if err != nil {
		return nil, fmt.Errorf("keyring get %q: %w", key, mapErr(err))
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Entry written by something else; hand back its raw bytes.
		return []byte(raw), nil
	}
	return decoded, nil
}

// Delete removes the record for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	service := b.service(namespace)
	if err := gokeyring.Delete(service, entryUser(backend.ClassGenericPassword, key)); err != nil {
		return fmt.Errorf("keyring delete %q: %w", key, mapErr(err))
	}

	if err := b.indexRemove(service, backend.ClassGenericPassword, key); err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// Clear removes every indexed record in namespace belonging to the given
// classes. A failure on one class does not stop the sweep of the rest.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("keyring clear: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	service := b.service(namespace)
	idx, err := b.readIndex(service)
	if err != nil {
		return fmt.Errorf("keyring clear: %w", err)
	}

	var errs []error
	for _, class := range classes {
		for _, key := range idx[string(class)] {
			err := gokeyring.Delete(service, entryUser(class, key))
			if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
				errs = append(errs, fmt.Errorf("keyring clear %s/%s: %w", class, key, mapErr(err)))
				continue
			}
		}
		delete(idx, string(class))
	}

	if err := b.writeIndex(service, idx); err != nil {
		errs = append(errs, fmt.Errorf("keyring clear: %w", err))
	}
	return errors.Join(errs...)
}

func (b *Backend) service(namespace string) string {
	return b.prefix + namespace
}

func entryUser(class backend.Class, key string) string {
	return string(class) + "/" + key
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, gokeyring.ErrNotFound):
		return errors.Join(backend.ErrNotFound, err)
	case errors.Is(err, gokeyring.ErrUnsupportedPlatform):
		return errors.Join(backend.ErrUnavailable, err)
	default:
		return err
	}
}

// index maps class name to the sorted keys stored under it.
type index map[string][]string

func (b *Backend) readIndex(service string) (index, error) {
	raw, err := gokeyring.Get(service, indexUser)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return index{}, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}

	var idx index
	if err := json.Unmarshal([]byte(raw), &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return idx, nil
}

func (b *Backend) writeIndex(service string, idx index) error {
	if len(idx) == 0 {
		err := gokeyring.Delete(service, indexUser)
		if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
			return mapErr(err)
		}
		return nil
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := gokeyring.Set(service, indexUser, string(data)); err != nil {
		return mapErr(err)
	}
	return nil
}

func (b *Backend) indexAdd(service string, class backend.Class, key string) error {
	idx, err := b.readIndex(service)
	if err != nil {
		return err
	}

	keys := idx[string(class)]
	pos := sort.SearchStrings(keys, key)
	if pos < len(keys) && keys[pos] == key {
		return nil
	}
	keys = append(keys, "")
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = key
	idx[string(class)] = keys

	return b.writeIndex(service, idx)
}

func (b *Backend) indexRemove(service string, class backend.Class, key string) error {
	idx, err := b.readIndex(service)
	if err != nil {
		return err
	}

	keys := idx[string(class)]
	pos := sort.SearchStrings(keys, key)
	if pos >= len(keys) || keys[pos] != key {
		return nil
	}
	idx[string(class)] = append(keys[:pos], keys[pos+1:]...)
	if len(idx[string(class)]) == 0 {
		delete(idx, string(class))
	}

	return b.writeIndex(service, idx)
}
