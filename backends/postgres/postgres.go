// Package postgres provides persistence for secrets in a PostgreSQL database,
// for deployments that centralize credentials instead of using an OS store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/gannonmg/lockbox/internal/metrics"
	"github.com/gannonmg/lockbox/pkg/backend"
)

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
    namespace TEXT NOT NULL,
    class TEXT NOT NULL,
    key TEXT NOT NULL,
    value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, class, key)
);
`

// Backend implements backend.Backend against a PostgreSQL database.
type Backend struct {
	db     *sql.DB
	stopCh chan struct{}
}

// Config holds configuration for the PostgreSQL backend.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	StatsInterval   time.Duration `yaml:"stats_interval"` // pool gauge refresh, 0 disables
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		StatsInterval:   15 * time.Second,
	}
}

// New opens a connection pool, verifies connectivity and ensures the schema.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", errors.Join(backend.ErrUnavailable, err))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	b := &Backend{db: db, stopCh: make(chan struct{})}
	if cfg.StatsInterval > 0 {
		go b.pollPoolStats(cfg.StatsInterval)
	}
	return b, nil
}

// NewWithDB wraps an existing database handle. The caller owns schema setup
// and the handle's lifecycle settings.
func NewWithDB(db *sql.DB) *Backend {
	return &Backend{db: db, stopCh: make(chan struct{})}
}

// NewFromConfig creates a PostgreSQL backend from registry configuration.
// The Address field carries the DSN.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	pcfg := DefaultConfig()
	pcfg.DSN = cfg.Address
	if v, ok := cfg.Settings["max_open_conns"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("postgres config: invalid max_open_conns %q: %w", v, err)
		}
		pcfg.MaxOpenConns = n
	}
	if v, ok := cfg.Settings["max_idle_conns"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("postgres config: invalid max_idle_conns %q: %w", v, err)
		}
		pcfg.MaxIdleConns = n
	}
	return New(pcfg)
}

// Put stores value under namespace and key. The existing row is deleted and
// the new row inserted in one transaction, so readers never observe two
// records for the same key.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres put: begin tx: %w", errors.Join(backend.ErrUnavailable, err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3
	`, namespace, string(backend.ClassGenericPassword), key)
	if err != nil {
		return fmt.Errorf("postgres put: delete: %w", errors.Join(backend.ErrUnavailable, err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO secrets (namespace, class, key, value, updated_at)
		VALUES ($1, $2, $3, $4, now())
	`, namespace, string(backend.ClassGenericPassword), key, value)
	if err != nil {
		return fmt.Errorf("postgres put: insert: %w", errors.Join(backend.ErrUnavailable, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres put: commit: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `
		SELECT value FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3
	`, namespace, string(backend.ClassGenericPassword), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("postgres get %q: %w", key, backend.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres get: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return value, nil
}

// Delete removes the row for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM secrets WHERE namespace = $1 AND class = $2 AND key = $3
	`, namespace, string(backend.ClassGenericPassword), key)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", errors.Join(backend.ErrUnavailable, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres delete: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("postgres delete %q: %w", key, backend.ErrNotFound)
	}
	return nil
}

// Clear removes every row in namespace belonging to the given classes.
// Classes are swept independently so one failure does not stop the rest.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	var errs []error
	for _, class := range classes {
		_, err := b.db.ExecContext(ctx, `
			DELETE FROM secrets WHERE namespace = $1 AND class = $2
		`, namespace, string(class))
		if err != nil {
			errs = append(errs, fmt.Errorf("postgres clear %s: %w", class, errors.Join(backend.ErrUnavailable, err)))
		}
	}
	return errors.Join(errs...)
}

// Keys lists the stored keys in namespace for the given classes, ordered by
// class then key.
func (b *Backend) Keys(ctx context.Context, namespace string, classes []backend.Class) ([]string, error) {
	names := make([]string, 0, len(classes))
	for _, class := range classes {
		names = append(names, string(class))
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT key FROM secrets WHERE namespace = $1 AND class = ANY($2) ORDER BY class, key
	`, namespace, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", errors.Join(backend.ErrUnavailable, err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}

// Ping checks database connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close stops the stats poller and closes the pool.
func (b *Backend) Close() error {
	close(b.stopCh)
	return b.db.Close()
}

func (b *Backend) pollPoolStats(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			metrics.UpdateDBPoolStats(b.db.Stats())
		}
	}
}
