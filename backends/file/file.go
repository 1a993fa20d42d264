// Package file provides a filesystem backend. Each namespace is a single
// JSON document, which keeps the store inspectable during development and
// usable on CI machines with no credential service.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gannonmg/lockbox/pkg/backend"
)

const documentVersion = 1

// Config holds configuration for the file backend.
type Config struct {
	// Dir is the directory holding one <namespace>.json document per
	// namespace. Created with 0700 on first use.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns sensible defaults, rooted under the user config
// directory when one can be resolved.
func DefaultConfig() Config {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return Config{
		Dir: filepath.Join(base, "lockbox"),
	}
}

// Backend stores records as JSON documents on disk. Documents are written
// with 0600 permissions via a temp file and rename, so readers never see a
// partial write. The mutex serializes writers within this process only;
// concurrent writers in other processes are the caller's responsibility,
// as with any shared credential store.
type Backend struct {
	dir string

	mu sync.Mutex

	watchMu  sync.Mutex
	watchers []*watcher
}

type document struct {
	Version int                                  `json:"version"`
	Records map[backend.Class]map[string]record `json:"records"`
}

type record struct {
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a file backend rooted at cfg.Dir.
func New(cfg Config) (*Backend, error) {
	if cfg.Dir == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	return &Backend{dir: cfg.Dir}, nil
}

// NewFromConfig creates a file backend from registry configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	return New(Config{Dir: cfg.Path})
}

// Put stores value under namespace and key, replacing any existing record.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("file put: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(namespace)
	if err != nil {
		return fmt.Errorf("file put: %w", err)
	}

	class := doc.classMap(backend.ClassGenericPassword)
	delete(class, key)
	class[key] = record{
		Value:     append([]byte(nil), value...),
		UpdatedAt: time.Now().UTC(),
	}

	if err := b.save(namespace, doc); err != nil {
		return fmt.Errorf("file put: %w", err)
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("file get: %w", err)
	}

	b.mu.Lock()
	doc, err := b.load(namespace)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("file get: %w", err)
	}

	rec, ok := doc.Records[backend.ClassGenericPassword][key]
	if !ok {
		return nil, fmt.Errorf("file get %q: %w", key, backend.ErrNotFound)
	}
	return append([]byte(nil), rec.Value...), nil
}

// Delete removes the record for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("file delete: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(namespace)
	if err != nil {
		return fmt.Errorf("file delete: %w", err)
	}

	class, ok := doc.Records[backend.ClassGenericPassword]
	if !ok {
		return fmt.Errorf("file delete %q: %w", key, backend.ErrNotFound)
	}
	if _, ok := class[key]; !ok {
		return fmt.Errorf("file delete %q: %w", key, backend.ErrNotFound)
	}

	delete(class, key)
	if err := b.save(namespace, doc); err != nil {
		return fmt.Errorf("file delete: %w", err)
	}
	return nil
}

// Clear removes every record in namespace belonging to the given classes.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("file clear: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(namespace)
	if err != nil {
		return fmt.Errorf("file clear: %w", err)
	}

	changed := false
	for _, class := range classes {
		if len(doc.Records[class]) > 0 {
			changed = true
		}
		delete(doc.Records, class)
	}
	if !changed {
		return nil
	}

	if err := b.save(namespace, doc); err != nil {
		return fmt.Errorf("file clear: %w", err)
	}
	return nil
}

// Close stops all watchers started with Watch.
func (b *Backend) Close() error {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	var errs []error
	for _, w := range b.watchers {
		if err := w.close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.watchers = nil
	return errors.Join(errs...)
}

// Path returns the document path for a namespace.
func (b *Backend) Path(namespace string) string {
	return filepath.Join(b.dir, sanitize(namespace)+".json")
}

func (b *Backend) load(namespace string) (*document, error) {
	doc := &document{
		Version: documentVersion,
		Records: make(map[backend.Class]map[string]record),
	}

	data, err := os.ReadFile(b.Path(namespace))
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Path(namespace), errors.Join(backend.ErrUnavailable, err))
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.Path(namespace), errors.Join(backend.ErrUnavailable, err))
	}
	if doc.Records == nil {
		doc.Records = make(map[backend.Class]map[string]record)
	}
	return doc, nil
}

func (b *Backend) save(namespace string, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	path := b.Path(namespace)
	tmp, err := os.CreateTemp(b.dir, "."+sanitize(namespace)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (d *document) classMap(class backend.Class) map[string]record {
	cls, ok := d.Records[class]
	if !ok {
		cls = make(map[string]record)
		d.Records[class] = cls
	}
	return cls
}

func sanitize(namespace string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, namespace)
}
