// Package vault implements a backend that keeps secrets in HashiCorp Vault
// under a KV v2 mount.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Backend implements backend.Backend on top of a Vault KV v2 mount.
// Records live at <mount>/data/<prefix>/<namespace>/<class>/<key> with the
// value base64-encoded under the "value" field.
type Backend struct {
	client *vault.Client
	mount  string
	prefix string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config holds configuration for the Vault backend.
type Config struct {
	Address    string `yaml:"address"`
	AuthMethod string `yaml:"auth_method"` // "token", "approle", "cert"
	Token      string `yaml:"token"`
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	Mount      string `yaml:"mount"`  // KV v2 mount, defaults to "secret"
	Prefix     string `yaml:"prefix"` // path prefix inside the mount
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// New creates a new Vault backend and authenticates the client.
func New(cfg Config) (*Backend, error) {
	vConfig := vault.DefaultConfig()
	if cfg.Address != "" {
		vConfig.Address = cfg.Address
	}

	// Configure TLS
	if cfg.ClientCert != "" || cfg.ClientKey != "" || cfg.CACert != "" {
		tlsConfig := &vault.TLSConfig{
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
			CACert:     cfg.CACert,
		}
		if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("configure tls: %w", err)
		}
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	b := &Backend{
		client: client,
		mount:  cfg.Mount,
		prefix: cfg.Prefix,
		stopCh: make(chan struct{}),
	}
	if b.mount == "" {
		b.mount = "secret"
	}

	var secret *vault.Secret

	switch cfg.AuthMethod {
	case "token":
		client.SetToken(cfg.Token)
		return b, nil
	case "cert":
		// mTLS login
		secret, err = client.Logical().Write("auth/cert/login", nil)
	case "approle":
		// AppRole login
		secret, err = client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
	default:
		switch {
		case cfg.Token != "":
			client.SetToken(cfg.Token)
			return b, nil
		case cfg.RoleID != "":
			secret, err = client.Logical().Write("auth/approle/login", map[string]interface{}{
				"role_id":   cfg.RoleID,
				"secret_id": cfg.SecretID,
			})
		default:
			return nil, fmt.Errorf("unknown or missing auth method: %s", cfg.AuthMethod)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", cfg.AuthMethod, err)
	}

	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("vault login returned no auth info")
	}

	client.SetToken(secret.Auth.ClientToken)

	// Start token renewer
	b.wg.Add(1)
	go b.startTokenRenewer(secret.Auth)

	return b, nil
}

// NewFromConfig creates a Vault backend from registry configuration.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	vcfg := Config{
		Address:    cfg.Address,
		Prefix:     cfg.Prefix,
		AuthMethod: cfg.Settings["auth_method"],
		Token:      cfg.Settings["token"],
		RoleID:     cfg.Settings["role_id"],
		SecretID:   cfg.Settings["secret_id"],
		Mount:      cfg.Settings["mount"],
		CACert:     cfg.Settings["ca_cert"],
		ClientCert: cfg.Settings["client_cert"],
		ClientKey:  cfg.Settings["client_key"],
	}
	return New(vcfg)
}

// recordPath builds the logical path of a record inside the mount. Keys are
// path-escaped so that records always list flat under their class.
func (b *Backend) recordPath(namespace string, class backend.Class, key string) string {
	parts := []string{namespace, string(class), url.PathEscape(key)}
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// classPath builds the logical path of a class directory inside the mount.
func (b *Backend) classPath(namespace string, class backend.Class) string {
	parts := []string{namespace, string(class)}
	if b.prefix != "" {
		parts = append([]string{b.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func (b *Backend) dataPath(p string) string     { return b.mount + "/data/" + p }
func (b *Backend) metadataPath(p string) string { return b.mount + "/metadata/" + p }

// Put stores value under namespace and key, replacing any existing record.
// The record's metadata is deleted first so stale version history does not
// survive the overwrite.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	p := b.recordPath(namespace, backend.ClassGenericPassword, key)

	if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(p)); err != nil && !isNotFound(err) {
		return fmt.Errorf("vault put: %w", errors.Join(backend.ErrUnavailable, err))
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(value),
		},
	}
	if _, err := b.client.Logical().WriteWithContext(ctx, b.dataPath(p), payload); err != nil {
		return fmt.Errorf("vault put: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Get returns the stored bytes for key. Records written by other tooling
// whose "value" field is not base64 are returned as raw bytes.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	p := b.recordPath(namespace, backend.ClassGenericPassword, key)

	secret, err := b.client.Logical().ReadWithContext(ctx, b.dataPath(p))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("vault get %q: %w", key, backend.ErrNotFound)
		}
		return nil, fmt.Errorf("vault get: %w", errors.Join(backend.ErrUnavailable, err))
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault get %q: %w", key, backend.ErrNotFound)
	}

	// Handle KV v2 "data" wrapper
	data := secret.Data
	if v, ok := data["data"]; ok {
		if nested, ok := v.(map[string]interface{}); ok {
			data = nested
		}
	}
	if data == nil {
		// Soft-deleted version: data is null but metadata remains.
		return nil, fmt.Errorf("vault get %q: %w", key, backend.ErrNotFound)
	}

	raw, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("vault get %q: %w", key, backend.ErrNotFound)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return []byte(raw), nil
	}
	return decoded, nil
}

// Delete removes the record for key, including its version history.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	p := b.recordPath(namespace, backend.ClassGenericPassword, key)

	// Vault metadata deletes are idempotent, so probe for existence first.
	secret, err := b.client.Logical().ReadWithContext(ctx, b.dataPath(p))
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("vault delete %q: %w", key, backend.ErrNotFound)
		}
		return fmt.Errorf("vault delete: %w", errors.Join(backend.ErrUnavailable, err))
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("vault delete %q: %w", key, backend.ErrNotFound)
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(p)); err != nil {
		return fmt.Errorf("vault delete: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Clear removes every record in namespace belonging to the given classes.
// Classes are swept independently.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	var errs []error
	for _, class := range classes {
		if err := b.clearClass(ctx, namespace, class); err != nil {
			errs = append(errs, fmt.Errorf("vault clear %s: %w", class, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) clearClass(ctx context.Context, namespace string, class backend.Class) error {
	dir := b.classPath(namespace, class)

	secret, err := b.client.Logical().ListWithContext(ctx, b.metadataPath(dir))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return errors.Join(backend.ErrUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil
	}

	var errs []error
	for _, k := range keys {
		name, ok := k.(string)
		if !ok || strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(dir+"/"+name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the token renewer and releases resources.
func (b *Backend) Close() error {
	close(b.stopCh)
	b.wg.Wait()
	return nil
}

func (b *Backend) startTokenRenewer(auth *vault.SecretAuth) {
	defer b.wg.Done()

	// If the token is not renewable, just return
	if !auth.Renewable {
		return
	}

	watcher, err := b.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		slog.Default().Error("failed to create vault lifetime watcher", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				slog.Default().Error("vault token renewal stopped", "error", err)
			}
			return
		case <-watcher.RenewCh():
			// Token successfully renewed
		}
	}
}

// isNotFound reports whether err is a Vault 404 response.
func isNotFound(err error) bool {
	var respErr *vault.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
