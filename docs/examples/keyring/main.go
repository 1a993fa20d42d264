// Example: OS Keyring Backend With Configuration
//
// This example builds a store from a declarative configuration instead of
// wiring backends by hand. Secrets land in the operating system keyring
// (Keychain on macOS, Credential Manager on Windows, Secret Service on
// Linux), so they survive process restarts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gannonmg/lockbox"
	"github.com/gannonmg/lockbox/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Equivalent to config.Open("lockbox.yaml") with:
	//
	//   store:
	//     namespace: example-keyring
	//   backend:
	//     type: keyring
	//   middleware:
	//     cache:
	//       enabled: true
	//       ttl: 5m
	cfg := config.DefaultConfig()
	cfg.Store.Namespace = "example-keyring"
	cfg.Backend.Type = "keyring"
	cfg.Middleware.Cache.Enabled = true

	store, err := config.Build(cfg)
	if err != nil {
		logger.Error("failed to build store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.Save(ctx, "database-password", "hunter2"); err != nil {
		if lockbox.IsAddFailed(err) {
			// Headless machines often run without a keyring daemon.
			logger.Error("keyring unavailable, is a secret service running?", "error", err)
			os.Exit(1)
		}
		logger.Error("save failed", "error", err)
		os.Exit(1)
	}

	password, err := store.Get(ctx, "database-password")
	if err != nil {
		logger.Error("get failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("database-password = %q (stored in the OS keyring)\n", password)

	// Clean up so the example leaves no residue behind
	if err := store.Remove(ctx, "database-password"); err != nil {
		logger.Error("remove failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("cleaned up")
}
