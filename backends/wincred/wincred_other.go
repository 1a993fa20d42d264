//go:build !windows

package wincred

import (
	"fmt"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Backend is only functional on Windows.
type Backend struct{}

// New reports the credential manager as unavailable on this platform.
func New(cfg Config) (*Backend, error) {
	return nil, fmt.Errorf("wincred: credential manager requires windows: %w", backend.ErrUnavailable)
}

// NewFromConfig reports the credential manager as unavailable on this
// platform.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	_, err := New(DefaultConfig())
	return nil, err
}
