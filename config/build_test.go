package config

import (
	"context"
	"testing"
	"time"
)

func TestBuild_MemoryStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Namespace = "build-test"

	store, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "api-token", "abc123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Get(ctx, "api-token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "abc123" {
		t.Errorf("Get() = %q, want %q", got, "abc123")
	}
}

func TestBuild_WithAllMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Namespace = "build-middleware-test"
	cfg.Middleware.Cache.Enabled = true
	cfg.Middleware.Cache.TTL = time.Minute
	cfg.Middleware.RateLimit.Enabled = true
	cfg.Middleware.RateLimit.OpsPerSecond = 1000
	cfg.Middleware.RateLimit.Burst = 100
	cfg.Middleware.RateLimit.Wait = true
	cfg.Tracing.Enabled = true

	store, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "wrapped", "value"); err != nil {
		t.Fatalf("Save() through middleware stack error = %v", err)
	}
	// Second read is served by the cache layer.
	for i := 0; i < 2; i++ {
		got, err := store.Get(ctx, "wrapped")
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
		if got != "value" {
			t.Errorf("Get() #%d = %q, want %q", i+1, got, "value")
		}
	}
	if err := store.Remove(ctx, "wrapped"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Type = "carrier-pigeon"

	if _, err := Build(cfg); err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "shouting"

	if _, err := Build(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOpen(t *testing.T) {
	path := writeConfigFile(t, `
store:
  namespace: open-test
backend:
  type: memory
`)

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "k", "v"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got, _ := store.Get(ctx, "k"); got != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
}

func TestSetupTracing_Disabled(t *testing.T) {
	cfg := DefaultConfig()

	shutdown, err := SetupTracing(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}
