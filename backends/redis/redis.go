// Package redis provides a Redis-based backend for deployments that keep
// secrets in a shared cache tier rather than a local credential store.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Backend implements backend.Backend using Redis. Records live under
// prefix:namespace:class:key with no expiration.
type Backend struct {
	client goredis.UniversalClient
	prefix string

	// Statistics
	puts    atomic.Int64
	gets    atomic.Int64
	deletes atomic.Int64
	errs    atomic.Int64
}

// Config holds configuration for the Redis backend.
type Config struct {
	// Single node configuration
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"` // Redis cluster addresses

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`  // Sentinel addresses
	SentinelMaster string   `yaml:"sentinel_master"` // Sentinel master name

	// Common configuration
	Prefix        string        `yaml:"prefix"`          // Key prefix
	DialTimeout   time.Duration `yaml:"dial_timeout"`    // Connection timeout
	ReadTimeout   time.Duration `yaml:"read_timeout"`    // Read timeout
	WriteTimeout  time.Duration `yaml:"write_timeout"`   // Write timeout
	PoolSize      int           `yaml:"pool_size"`       // Connection pool size
	MinIdleConns  int           `yaml:"min_idle_conns"`  // Minimum idle connections
	MaxRetries    int           `yaml:"max_retries"`     // Maximum retries
	TLSEnabled    bool          `yaml:"tls_enabled"`     // Enable TLS
	TLSSkipVerify bool          `yaml:"tls_skip_verify"` // Skip TLS verification
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		Prefix:       "lockbox",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// New creates a new Redis backend and verifies connectivity.
func New(cfg Config) (*Backend, error) {
	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
	}

	var client goredis.UniversalClient

	// Determine which type of client to create
	switch {
	case len(cfg.ClusterAddrs) > 0:
		// Redis Cluster
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	case len(cfg.SentinelAddrs) > 0:
		// Redis Sentinel
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
			TLSConfig:     tlsConfig,
		})
	default:
		// Single node
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	}

	// Test connection
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", errors.Join(backend.ErrUnavailable, err))
	}

	return &Backend{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// NewFromConfig creates a Redis backend from registry configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	rcfg := DefaultConfig()
	if cfg.Address != "" {
		rcfg.Addr = cfg.Address
	}
	if cfg.Prefix != "" {
		rcfg.Prefix = cfg.Prefix
	}
	if pw, ok := cfg.Settings["password"]; ok {
		rcfg.Password = pw
	}
	if db, ok := cfg.Settings["db"]; ok {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("redis config: invalid db %q: %w", db, err)
		}
		rcfg.DB = n
	}
	return New(rcfg)
}

// storageKey builds the Redis key for a record.
func (b *Backend) storageKey(namespace string, class backend.Class, key string) string {
	return b.prefix + ":" + namespace + ":" + string(class) + ":" + key
}

// classPattern matches every record of one class in a namespace.
func (b *Backend) classPattern(namespace string, class backend.Class) string {
	return b.prefix + ":" + namespace + ":" + string(class) + ":*"
}

// Put stores value under namespace and key, replacing any existing record.
// The previous record is deleted in the same pipeline before the insert.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	k := b.storageKey(namespace, backend.ClassGenericPassword, key)

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.Set(ctx, k, value, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		b.errs.Add(1)
		return fmt.Errorf("redis put: %w", errors.Join(backend.ErrUnavailable, err))
	}

	b.puts.Add(1)
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	k := b.storageKey(namespace, backend.ClassGenericPassword, key)

	val, err := b.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("redis get %q: %w", key, backend.ErrNotFound)
		}
		b.errs.Add(1)
		return nil, fmt.Errorf("redis get: %w", errors.Join(backend.ErrUnavailable, err))
	}

	b.gets.Add(1)
	return val, nil
}

// Delete removes the record for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	k := b.storageKey(namespace, backend.ClassGenericPassword, key)

	removed, err := b.client.Del(ctx, k).Result()
	if err != nil {
		b.errs.Add(1)
		return fmt.Errorf("redis del: %w", errors.Join(backend.ErrUnavailable, err))
	}
	if removed == 0 {
		return fmt.Errorf("redis del %q: %w", key, backend.ErrNotFound)
	}

	b.deletes.Add(1)
	return nil
}

// Clear removes every record in namespace belonging to the given classes.
// Classes are swept independently; a scan failure on one class does not
// stop the rest.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	var errs []error
	for _, class := range classes {
		if err := b.clearClass(ctx, namespace, class); err != nil {
			b.errs.Add(1)
			errs = append(errs, fmt.Errorf("redis clear %s: %w", class, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) clearClass(ctx context.Context, namespace string, class backend.Class) error {
	iter := b.client.Scan(ctx, 0, b.classPattern(namespace, class), 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Join(backend.ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(backend.ErrUnavailable, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Stats reports operation counters.
type Stats struct {
	Puts    int64
	Gets    int64
	Deletes int64
	Errors  int64
}

// Stats returns a snapshot of operation counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Puts:    b.puts.Load(),
		Gets:    b.gets.Load(),
		Deletes: b.deletes.Load(),
		Errors:  b.errs.Load(),
	}
}
