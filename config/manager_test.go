package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_Get(t *testing.T) {
	path := writeConfigFile(t, `
store:
  namespace: alpha
backend:
  type: memory
`)

	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()

	if got := mgr.Get().Store.Namespace; got != "alpha" {
		t.Errorf("namespace = %q, want %q", got, "alpha")
	}
}

func TestManager_NewFailsWhenFileMissing(t *testing.T) {
	if _, err := NewManager("/nonexistent/lockbox.yaml", discardLogger()); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestManager_ReloadSwapsConfigAndNotifies(t *testing.T) {
	path := writeConfigFile(t, `
store:
  namespace: alpha
backend:
  type: memory
`)

	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()

	var seen []*Config
	mgr.OnChange(func(cfg *Config) {
		seen = append(seen, cfg)
	})

	rewritten := `
store:
  namespace: beta
backend:
  type: memory
`
	if err := os.WriteFile(path, []byte(rewritten), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	mgr.reload()

	if got := mgr.Get().Store.Namespace; got != "beta" {
		t.Errorf("namespace after reload = %q, want %q", got, "beta")
	}
	if len(seen) != 1 {
		t.Fatalf("OnChange fired %d times, want 1", len(seen))
	}
	if seen[0].Store.Namespace != "beta" {
		t.Errorf("callback saw namespace %q, want %q", seen[0].Store.Namespace, "beta")
	}
}

func TestManager_ReloadKeepsCurrentOnBadFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "backend: [broken"},
		{name: "fails validation", content: "backend:\n  type: \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, `
store:
  namespace: stable
backend:
  type: memory
`)
			mgr, err := NewManager(path, discardLogger())
			if err != nil {
				t.Fatalf("NewManager() error = %v", err)
			}
			defer mgr.Close()

			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
			mgr.reload()

			if got := mgr.Get().Store.Namespace; got != "stable" {
				t.Errorf("namespace = %q, want previous config to survive", got)
			}
		})
	}
}

func TestManager_WatchReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, `
store:
  namespace: alpha
backend:
  type: memory
`)

	mgr, err := NewManager(path, discardLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()

	reloaded := make(chan *Config, 1)
	mgr.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	rewritten := `
store:
  namespace: gamma
backend:
  type: memory
`
	if err := os.WriteFile(path, []byte(rewritten), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Store.Namespace != "gamma" {
			t.Errorf("reloaded namespace = %q, want %q", cfg.Store.Namespace, "gamma")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher to reload config")
	}
}
