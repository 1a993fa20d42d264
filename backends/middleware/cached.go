// Package middleware provides composable wrappers around backend.Backend:
// read caching, rate limiting, Prometheus instrumentation and OpenTelemetry
// tracing. Wrappers nest in any order and pass the contract through
// unchanged.
package middleware

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gannonmg/lockbox/internal/metrics"
	"github.com/gannonmg/lockbox/pkg/backend"
)

// Cached is a read-through cache over a backend. Reads are served from
// memory when possible; writes and deletes invalidate. Only reads through
// this wrapper see the cache, so external writers make cached entries stale
// until TTL expiry.
type Cached struct {
	next  backend.Backend
	name  string
	cache *gocache.Cache
}

// CacheConfig holds configuration for the caching middleware.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:             5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// NewCached wraps next with a read cache. name labels cache metrics.
func NewCached(next backend.Backend, name string, cfg CacheConfig) *Cached {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &Cached{
		next:  next,
		name:  name,
		cache: gocache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

// cacheKey joins namespace and key with a separator that cannot appear in
// either, so distinct records never share an entry.
func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func copyBytes(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Put delegates to the backend and invalidates the cached entry.
func (c *Cached) Put(ctx context.Context, namespace, key string, value []byte) error {
	err := c.next.Put(ctx, namespace, key, value)
	c.cache.Delete(cacheKey(namespace, key))
	return err
}

// Get returns the cached value if present, otherwise reads through.
func (c *Cached) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	ck := cacheKey(namespace, key)

	if v, ok := c.cache.Get(ck); ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return copyBytes(v.([]byte)), nil
	}
	metrics.CacheMisses.WithLabelValues(c.name).Inc()

	value, err := c.next.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ck, copyBytes(value), gocache.DefaultExpiration)
	return value, nil
}

// Delete delegates to the backend and invalidates the cached entry. The
// entry is dropped even when the backend reports a failure, so a stale value
// never outlives a partial delete.
func (c *Cached) Delete(ctx context.Context, namespace, key string) error {
	err := c.next.Delete(ctx, namespace, key)
	c.cache.Delete(cacheKey(namespace, key))
	return err
}

// Clear delegates to the backend and flushes the whole cache. Entries are
// not tracked per class, so a sweep drops everything.
func (c *Cached) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	err := c.next.Clear(ctx, namespace, classes)
	c.cache.Flush()
	return err
}

// ItemCount reports the number of cached entries, expired ones included.
func (c *Cached) ItemCount() int {
	return c.cache.ItemCount()
}
