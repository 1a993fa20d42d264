// Example: Basic Secret Store Usage
//
// This example demonstrates the core lockbox API: saving, reading and
// removing secrets against the in-memory backend, and subscribing to
// change notifications.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gannonmg/lockbox"
	"github.com/gannonmg/lockbox/backends/memory"
)

func main() {
	// Create a logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Create a store backed by process memory
	store, err := lockbox.New(memory.New(),
		lockbox.WithNamespace("example-app"),
		lockbox.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Subscribe to change notifications
	sub := store.Subscribe(func(ctx context.Context, ev lockbox.Event) {
		if ev.Key == nil {
			fmt.Println("  [event] a secret was saved")
			return
		}
		fmt.Printf("  [event] secret %q was removed\n", *ev.Key)
	})
	defer store.Unsubscribe(sub)

	ctx := context.Background()

	// Save and read back a secret
	if err := store.Save(ctx, "api-token", "abc123"); err != nil {
		logger.Error("save failed", "error", err)
		os.Exit(1)
	}
	token, err := store.Get(ctx, "api-token")
	if err != nil {
		logger.Error("get failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("api-token = %q\n", token)

	// Overwrite it
	if err := store.Save(ctx, "api-token", "xyz789"); err != nil {
		logger.Error("save failed", "error", err)
		os.Exit(1)
	}
	token, _ = store.Get(ctx, "api-token")
	fmt.Printf("api-token = %q after overwrite\n", token)

	// Remove it and observe the error kind on a second read
	if err := store.Remove(ctx, "api-token"); err != nil {
		logger.Error("remove failed", "error", err)
		os.Exit(1)
	}
	if _, err := store.Get(ctx, "api-token"); lockbox.IsNotFound(err) {
		fmt.Println("api-token is gone")
	}

	// Removing an absent key is an error that names the key
	err = store.Remove(ctx, "api-token")
	fmt.Printf("second remove: %v (delete failed: %t)\n", err, lockbox.IsDeleteFailed(err))

	// Wipe everything in the namespace
	store.ClearAll(ctx)
	fmt.Println("namespace cleared")
}
