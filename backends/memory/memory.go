// Package memory provides an in-memory backend. It is the development
// default and the hermetic stand-in for the platform credential store in
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Backend stores records in process memory, partitioned by namespace and
// class. Values are copied on write and read so callers cannot mutate
// stored state through shared slices.
type Backend struct {
	mu sync.RWMutex

	// namespace -> class -> key -> value
	items map[string]map[backend.Class]map[string][]byte

	// Statistics
	puts    atomic.Int64
	gets    atomic.Int64
	deletes atomic.Int64
	clears  atomic.Int64
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		items: make(map[string]map[backend.Class]map[string][]byte),
	}
}

// NewFromConfig creates an in-memory backend from registry configuration.
// The config carries nothing this adapter needs.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	return New(), nil
}

// Put stores value under namespace and key in the generic password class,
// replacing any existing record.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory put: %w", err)
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	b.mu.Lock()
	defer b.mu.Unlock()

	class := b.classMapLocked(namespace, backend.ClassGenericPassword)
	delete(class, key)
	class[key] = valueCopy

	b.puts.Add(1)
	return nil
}

// Get returns a copy of the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory get: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.gets.Add(1)
	value, ok := b.items[namespace][backend.ClassGenericPassword][key]
	if !ok {
		return nil, fmt.Errorf("memory get %q: %w", key, backend.ErrNotFound)
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Delete removes the record for key, reporting backend.ErrNotFound when
// there was nothing stored.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory delete: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	class, ok := b.items[namespace][backend.ClassGenericPassword]
	if !ok {
		return fmt.Errorf("memory delete %q: %w", key, backend.ErrNotFound)
	}
	if _, ok := class[key]; !ok {
		return fmt.Errorf("memory delete %q: %w", key, backend.ErrNotFound)
	}

	delete(class, key)
	b.deletes.Add(1)
	return nil
}

// Clear removes every record in namespace belonging to the given classes.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory clear: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.items[namespace]
	if !ok {
		return nil
	}
	for _, class := range classes {
		delete(ns, class)
	}

	b.clears.Add(1)
	return nil
}

// SeedRaw places raw bytes directly into the store under an arbitrary
// class, bypassing Put. Tests use it to stage records a foreign writer
// would have produced: undecodable values, or items outside the generic
// password class.
func (b *Backend) SeedRaw(namespace string, class backend.Class, key string, value []byte) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.classMapLocked(namespace, class)[key] = valueCopy
}

// Len returns the number of records stored in namespace across all classes.
func (b *Backend) Len(namespace string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, class := range b.items[namespace] {
		n += len(class)
	}
	return n
}

// Stats reports operation counters.
type Stats struct {
	Puts    int64
	Gets    int64
	Deletes int64
	Clears  int64
}

// Stats returns a snapshot of operation counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Puts:    b.puts.Load(),
		Gets:    b.gets.Load(),
		Deletes: b.deletes.Load(),
		Clears:  b.clears.Load(),
	}
}

func (b *Backend) classMapLocked(namespace string, class backend.Class) map[string][]byte {
	ns, ok := b.items[namespace]
	if !ok {
		ns = make(map[backend.Class]map[string][]byte)
		b.items[namespace] = ns
	}
	cls, ok := ns[class]
	if !ok {
		cls = make(map[string][]byte)
		ns[class] = cls
	}
	return cls
}
