// Package secretservice implements a backend speaking the Freedesktop.org
// Secret Service D-Bus API (gnome-keyring, KWallet, keepassxc).
package secretservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/gannonmg/lockbox/pkg/backend"
)

const (
	busName     = "org.freedesktop.secrets"
	servicePath = "/org/freedesktop/secrets"

	serviceIface    = "org.freedesktop.Secret.Service"
	collectionIface = "org.freedesktop.Secret.Collection"
	itemIface       = "org.freedesktop.Secret.Item"
	sessionIface    = "org.freedesktop.Secret.Session"

	// noPromptPath is returned by the service when no user interaction is needed.
	noPromptPath = dbus.ObjectPath("/")
)

// dbusSecret is the D-Bus type (oayays) representing an encoded secret.
type dbusSecret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// Backend implements backend.Backend against the session bus secret service.
// Records are items in the aliased collection, identified by lookup
// attributes (application, namespace, class, key).
type Backend struct {
	conn        *dbus.Conn
	service     dbus.BusObject
	session     dbus.ObjectPath
	collection  dbus.ObjectPath
	application string

	mu sync.Mutex
}

// Config holds configuration for the secret service backend.
type Config struct {
	Alias       string `yaml:"alias"`       // collection alias, defaults to "default"
	Application string `yaml:"application"` // application attribute on items
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Alias:       "default",
		Application: "lockbox",
	}
}

// New connects to the session bus, opens a plain session and resolves the
// aliased collection.
func New(cfg Config) (*Backend, error) {
	if cfg.Alias == "" {
		cfg.Alias = "default"
	}
	if cfg.Application == "" {
		cfg.Application = "lockbox"
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", errors.Join(backend.ErrUnavailable, err))
	}

	b := &Backend{
		conn:        conn,
		service:     conn.Object(busName, servicePath),
		application: cfg.Application,
	}

	var output dbus.Variant
	if err := b.service.Call(serviceIface+".OpenSession", 0, "plain", dbus.MakeVariant("")).Store(&output, &b.session); err != nil {
		return nil, fmt.Errorf("open session: %w", mapErr(err))
	}

	if err := b.service.Call(serviceIface+".ReadAlias", 0, cfg.Alias).Store(&b.collection); err != nil {
		return nil, fmt.Errorf("read alias %q: %w", cfg.Alias, mapErr(err))
	}
	if b.collection == noPromptPath {
		return nil, fmt.Errorf("read alias %q: no such collection: %w", cfg.Alias, backend.ErrUnavailable)
	}

	return b, nil
}

// NewFromConfig creates a secret service backend from registry configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	scfg := DefaultConfig()
	if alias, ok := cfg.Settings["alias"]; ok {
		scfg.Alias = alias
	}
	if app, ok := cfg.Settings["application"]; ok {
		scfg.Application = app
	}
	return New(scfg)
}

// attributes builds the lookup attributes identifying one record.
func (b *Backend) attributes(namespace string, class backend.Class, key string) map[string]string {
	return map[string]string{
		"application": b.application,
		"namespace":   namespace,
		"class":       string(class),
		"key":         key,
	}
}

// classAttributes builds the lookup attributes covering one class.
func (b *Backend) classAttributes(namespace string, class backend.Class) map[string]string {
	return map[string]string{
		"application": b.application,
		"namespace":   namespace,
		"class":       string(class),
	}
}

// Put stores value under namespace and key. CreateItem is called with
// replace=true, so the service removes any item with the same attributes
// before creating the new one.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	properties := map[string]dbus.Variant{
		itemIface + ".Label":      dbus.MakeVariant(namespace + "/" + key),
		itemIface + ".Attributes": dbus.MakeVariant(b.attributes(namespace, backend.ClassGenericPassword, key)),
	}
	secret := dbusSecret{
		Session:     b.session,
		Value:       value,
		ContentType: "application/octet-stream",
	}

	var itemPath, promptPath dbus.ObjectPath
	col := b.conn.Object(busName, b.collection)
	err := col.CallWithContext(ctx, collectionIface+".CreateItem", 0, properties, secret, true).Store(&itemPath, &promptPath)
	if err != nil {
		return fmt.Errorf("secretservice put: %w", mapErr(err))
	}
	if promptPath != noPromptPath {
		return fmt.Errorf("secretservice put: collection requires interactive unlock: %w", backend.ErrUnavailable)
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths, err := b.search(ctx, b.attributes(namespace, backend.ClassGenericPassword, key))
	if err != nil {
		return nil, fmt.Errorf("secretservice get: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("secretservice get %q: %w", key, backend.ErrNotFound)
	}

	var secret dbusSecret
	item := b.conn.Object(busName, paths[0])
	if err := item.CallWithContext(ctx, itemIface+".GetSecret", 0, b.session).Store(&secret); err != nil {
		return nil, fmt.Errorf("secretservice get: %w", mapErr(err))
	}
	return secret.Value, nil
}

// Delete removes the item for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths, err := b.search(ctx, b.attributes(namespace, backend.ClassGenericPassword, key))
	if err != nil {
		return fmt.Errorf("secretservice delete: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("secretservice delete %q: %w", key, backend.ErrNotFound)
	}

	var errs []error
	for _, p := range paths {
		if err := b.deleteItem(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("secretservice delete: %w", errors.Join(errs...))
	}
	return nil
}

// Clear removes every item in namespace belonging to the given classes.
// Classes are swept independently.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, class := range classes {
		if err := b.clearClass(ctx, namespace, class); err != nil {
			errs = append(errs, fmt.Errorf("secretservice clear %s: %w", class, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) clearClass(ctx context.Context, namespace string, class backend.Class) error {
	paths, err := b.search(ctx, b.classAttributes(namespace, class))
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range paths {
		if err := b.deleteItem(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// search finds items matching attrs, unlocking locked ones when the service
// can do so without prompting.
func (b *Backend) search(ctx context.Context, attrs map[string]string) ([]dbus.ObjectPath, error) {
	var unlocked, locked []dbus.ObjectPath
	err := b.service.CallWithContext(ctx, serviceIface+".SearchItems", 0, attrs).Store(&unlocked, &locked)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(locked) == 0 {
		return unlocked, nil
	}

	var nowUnlocked []dbus.ObjectPath
	var promptPath dbus.ObjectPath
	err = b.service.CallWithContext(ctx, serviceIface+".Unlock", 0, locked).Store(&nowUnlocked, &promptPath)
	if err != nil {
		return nil, mapErr(err)
	}
	if promptPath != noPromptPath {
		return nil, fmt.Errorf("items require interactive unlock: %w", backend.ErrUnavailable)
	}
	return append(unlocked, nowUnlocked...), nil
}

func (b *Backend) deleteItem(ctx context.Context, path dbus.ObjectPath) error {
	var promptPath dbus.ObjectPath
	item := b.conn.Object(busName, path)
	if err := item.CallWithContext(ctx, itemIface+".Delete", 0).Store(&promptPath); err != nil {
		return mapErr(err)
	}
	if promptPath != noPromptPath {
		return fmt.Errorf("item requires interactive unlock: %w", backend.ErrUnavailable)
	}
	return nil
}

// Close closes the secret service session and the bus connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != "" {
		session := b.conn.Object(busName, b.session)
		_ = session.Call(sessionIface+".Close", 0).Err
	}
	return b.conn.Close()
}

// mapErr translates D-Bus failures into backend sentinel errors.
func mapErr(err error) error {
	var derr dbus.Error
	if errors.As(err, &derr) {
		switch derr.Name {
		case "org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.NoReply",
			"org.freedesktop.DBus.Error.Disconnected",
			"org.freedesktop.DBus.Error.Timeout":
			return errors.Join(backend.ErrUnavailable, err)
		case "org.freedesktop.Secret.Error.NoSuchObject":
			return errors.Join(backend.ErrNotFound, err)
		}
	}
	return err
}
