package lockbox

import (
	"log/slog"

	"github.com/gannonmg/lockbox/pkg/codec"
	"github.com/gannonmg/lockbox/pkg/notify"
)

// DefaultNamespace is the namespace used when none is configured. It
// partitions this store's records inside backends shared with other
// applications.
const DefaultNamespace = "lockbox"

// StoreConfig holds all configuration for the Store.
type StoreConfig struct {
	// Namespace is the partition records are stored under.
	Namespace string

	// Codec converts values to and from stored bytes.
	Codec codec.Codec

	// Notifier delivers change events. One is created when nil.
	Notifier *notify.Notifier

	// Logging
	Logger *slog.Logger
}

// Option is a function that configures the Store.
type Option func(*StoreConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *StoreConfig {
	return &StoreConfig{
		Namespace: DefaultNamespace,
		Codec:     codec.UTF8{},
		Logger:    slog.Default(),
	}
}

// WithNamespace sets the namespace records are stored under. Two stores
// over the same backend with different namespaces never see each other's
// records.
//
// Example:
//
//	store, err := lockbox.New(b,
//	    lockbox.WithNamespace("billing-service"),
//	)
func WithNamespace(namespace string) Option {
	return func(c *StoreConfig) {
		if namespace != "" {
			c.Namespace = namespace
		}
	}
}

// WithCodec sets the codec used to convert values to stored bytes.
// The default codec stores values as their UTF-8 bytes.
func WithCodec(cd codec.Codec) Option {
	return func(c *StoreConfig) {
		if cd != nil {
			c.Codec = cd
		}
	}
}

// WithNotifier sets the change notifier. Use this to share one notifier
// between several stores, or to subscribe handlers before the store exists.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *StoreConfig) {
		if n != nil {
			c.Notifier = n
		}
	}
}

// WithLogger sets the logger for store and notifier diagnostics.
// Log lines carry namespaces and key names, never values.
func WithLogger(logger *slog.Logger) Option {
	return func(c *StoreConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
