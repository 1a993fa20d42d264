// Package backends provides a unified registry for all lockbox backend
// implementations. It allows automatic backend creation from configuration.
package backends

import (
	"fmt"
	"sync"

	"github.com/gannonmg/lockbox/backends/file"
	"github.com/gannonmg/lockbox/backends/keyring"
	"github.com/gannonmg/lockbox/backends/memory"
	"github.com/gannonmg/lockbox/backends/postgres"
	"github.com/gannonmg/lockbox/backends/redis"
	"github.com/gannonmg/lockbox/backends/s3"
	"github.com/gannonmg/lockbox/backends/secretservice"
	"github.com/gannonmg/lockbox/backends/vault"
	"github.com/gannonmg/lockbox/backends/wincred"
	"github.com/gannonmg/lockbox/pkg/backend"
)

var (
	registry     = make(map[string]backend.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a backend factory with the given type name.
func Register(backendType string, factory backend.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[backendType] = factory
}

// Get returns the factory for the given backend type.
func Get(backendType string) (backend.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[backendType]
	return f, ok
}

// Create creates a backend instance from configuration.
func Create(cfg backend.Config) (backend.Backend, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s (available: %v)", cfg.Type, List())
	}

	return factory(cfg)
}

// List returns all registered backend type names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers all built-in backend factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register("memory", memory.NewFromConfig)
		Register("file", file.NewFromConfig)
		Register("keyring", keyring.NewFromConfig)
		Register("secretservice", secretservice.NewFromConfig)
		Register("wincred", wincred.NewFromConfig)
		Register("vault", vault.NewFromConfig)
		Register("redis", redis.NewFromConfig)
		Register("postgres", postgres.NewFromConfig)
		Register("s3", s3.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}
