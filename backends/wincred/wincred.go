// Package wincred implements a backend for the Windows Credential Manager.
// It compiles everywhere but only functions on Windows; on other platforms
// construction fails with backend.ErrUnavailable.
package wincred

import (
	"github.com/gannonmg/lockbox/pkg/backend"
)

// Config holds configuration for the Windows Credential Manager backend.
type Config struct {
	Prefix   string `yaml:"prefix"`   // target name prefix, defaults to "lockbox"
	UserName string `yaml:"username"` // username stored on credentials
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:   "lockbox",
		UserName: "lockbox",
	}
}

// targetName builds the credential manager TargetName for a record.
func targetName(prefix, namespace string, class backend.Class, key string) string {
	return prefix + "/" + namespace + "/" + string(class) + "/" + key
}

// classPattern builds the TargetName prefix covering one class, for use
// with wildcard enumeration.
func classPattern(prefix, namespace string, class backend.Class) string {
	return prefix + "/" + namespace + "/" + string(class) + "/"
}
