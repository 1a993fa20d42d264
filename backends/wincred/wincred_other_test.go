//go:build !windows

package wincred

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gannonmg/lockbox/pkg/backend"
)

func TestNew_UnavailableOffWindows(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestNewFromConfig_UnavailableOffWindows(t *testing.T) {
	b, err := NewFromConfig(backend.Config{Type: "wincred"})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}
