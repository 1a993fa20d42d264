//go:build windows

package wincred

import (
	"context"
	"errors"
	"fmt"

	credman "github.com/danieljoos/wincred"
	"golang.org/x/sys/windows"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Backend implements backend.Backend using the Windows Credential Manager.
// Records are generic credentials named prefix/namespace/class/key.
type Backend struct {
	prefix   string
	username string
}

// New creates a new Credential Manager backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "lockbox"
	}
	if cfg.UserName == "" {
		cfg.UserName = "lockbox"
	}
	return &Backend{prefix: cfg.Prefix, username: cfg.UserName}, nil
}

// NewFromConfig creates a Credential Manager backend from registry
// configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	wcfg := DefaultConfig()
	if cfg.Prefix != "" {
		wcfg.Prefix = cfg.Prefix
	}
	if u, ok := cfg.Settings["username"]; ok {
		wcfg.UserName = u
	}
	return New(wcfg)
}

// Put stores value under namespace and key. Any existing credential with the
// same target name is deleted before the new one is written.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := targetName(b.prefix, namespace, backend.ClassGenericPassword, key)

	existing, err := credman.GetGenericCredential(target)
	switch {
	case err == nil:
		if err := existing.Delete(); err != nil && !isNotFound(err) {
			return fmt.Errorf("wincred put: delete existing: %w", errors.Join(backend.ErrUnavailable, err))
		}
	case !isNotFound(err):
		return fmt.Errorf("wincred put: %w", errors.Join(backend.ErrUnavailable, err))
	}

	cred := credman.NewGenericCredential(target)
	cred.CredentialBlob = value
	cred.UserName = b.username
	cred.Persist = credman.PersistLocalMachine
	if err := cred.Write(); err != nil {
		return fmt.Errorf("wincred put: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := targetName(b.prefix, namespace, backend.ClassGenericPassword, key)

	cred, err := credman.GetGenericCredential(target)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("wincred get %q: %w", key, backend.ErrNotFound)
		}
		return nil, fmt.Errorf("wincred get: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return cred.CredentialBlob, nil
}

// Delete removes the credential for key.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := targetName(b.prefix, namespace, backend.ClassGenericPassword, key)

	cred, err := credman.GetGenericCredential(target)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("wincred delete %q: %w", key, backend.ErrNotFound)
		}
		return fmt.Errorf("wincred delete: %w", errors.Join(backend.ErrUnavailable, err))
	}
	if err := cred.Delete(); err != nil {
		return fmt.Errorf("wincred delete: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Clear removes every credential in namespace belonging to the given
// classes. Classes are swept independently.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	var errs []error
	for _, class := range classes {
		if err := b.clearClass(ctx, namespace, class); err != nil {
			errs = append(errs, fmt.Errorf("wincred clear %s: %w", class, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) clearClass(ctx context.Context, namespace string, class backend.Class) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	creds, err := credman.FilteredList(classPattern(b.prefix, namespace, class) + "*")
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return errors.Join(backend.ErrUnavailable, err)
	}

	var errs []error
	for _, c := range creds {
		cred, err := credman.GetGenericCredential(c.TargetName)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if err := cred.Delete(); err != nil && !isNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isNotFound reports whether err is the credential manager's missing-element
// error.
func isNotFound(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_FOUND)
}
