// Package backendtest provides a reusable conformance suite for
// backend.Backend implementations. Adapter packages run the suite against a
// fresh instance to pin the shared contract: unconditional overwrite on put,
// not-found on missing reads and deletes, namespace isolation, and
// best-effort class sweeps.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// Run exercises the backend contract against b. Subtests use distinct
// namespaces so they never see each other's records; against persistent
// stores the suite cleans up what it writes.
func Run(t *testing.T, b backend.Backend) {
	t.Helper()

	t.Run("RoundTrip", func(t *testing.T) {
		testRoundTrip(t, b)
	})

	t.Run("Overwrite", func(t *testing.T) {
		testOverwrite(t, b)
	})

	t.Run("GetMissing", func(t *testing.T) {
		testGetMissing(t, b)
	})

	t.Run("DeleteThenGet", func(t *testing.T) {
		testDeleteThenGet(t, b)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		testDeleteMissing(t, b)
	})

	t.Run("ClearNamespace", func(t *testing.T) {
		testClearNamespace(t, b)
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, b)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		testConcurrentAccess(t, b)
	})
}

func testRoundTrip(t *testing.T, store backend.Backend) {
	ctx := context.Background()
	const ns = "contract-roundtrip"

	value := []byte{0x00, 0xff, 0x10, 'a', '\n', 0x01}
	require.NoError(t, store.Put(ctx, ns, "binary-token", value))

	got, err := store.Get(ctx, ns, "binary-token")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	require.NoError(t, store.Delete(ctx, ns, "binary-token"))
}

func testOverwrite(t *testing.T, store backend.Backend) {
	ctx := context.Background()
	const ns = "contract-overwrite"

	require.NoError(t, store.Put(ctx, ns, "api-token", []byte("first")))
	require.NoError(t, store.Put(ctx, ns, "api-token", []byte("second")))

	got, err := store.Get(ctx, ns, "api-token")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, store.Delete(ctx, ns, "api-token"))
}

func testGetMissing(t *testing.T, store backend.Backend) {
	ctx := context.Background()

	_, err := store.Get(ctx, "contract-get-missing", "no-such-key")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func testDeleteThenGet(t *testing.T, store backend.Backend) {
	ctx := context.Background()
	const ns = "contract-delete"

	require.NoError(t, store.Put(ctx, ns, "api-token", []byte("v")))
	require.NoError(t, store.Delete(ctx, ns, "api-token"))

	_, err := store.Get(ctx, ns, "api-token")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	// A second delete finds nothing to remove.
	err = store.Delete(ctx, ns, "api-token")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func testDeleteMissing(t *testing.T, store backend.Backend) {
	ctx := context.Background()

	err := store.Delete(ctx, "contract-delete-missing", "no-such-key")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func testClearNamespace(t *testing.T, store backend.Backend) {
	ctx := context.Background()
	const ns = "contract-clear"

	require.NoError(t, store.Put(ctx, ns, "token-1", []byte("v1")))
	require.NoError(t, store.Put(ctx, ns, "token-2", []byte("v2")))

	require.NoError(t, store.Clear(ctx, ns, backend.AllClasses()))

	_, err := store.Get(ctx, ns, "token-1")
	assert.ErrorIs(t, err, backend.ErrNotFound)
	_, err = store.Get(ctx, ns, "token-2")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	// Clearing an already empty namespace is not an error.
	assert.NoError(t, store.Clear(ctx, ns, backend.AllClasses()))
}

func testNamespaceIsolation(t *testing.T, store backend.Backend) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "contract-iso-a", "shared-key", []byte("from-a")))
	require.NoError(t, store.Put(ctx, "contract-iso-b", "shared-key", []byte("from-b")))

	require.NoError(t, store.Delete(ctx, "contract-iso-a", "shared-key"))

	got, err := store.Get(ctx, "contract-iso-b", "shared-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-b"), got)

	require.NoError(t, store.Delete(ctx, "contract-iso-b", "shared-key"))
}

func testConcurrentAccess(t *testing.T, store backend.Backend) {
	ctx := context.Background()
	const ns = "contract-concurrent"
	const workers = 8
	const opsPerWorker = 20

	errCh := make(chan error, workers*opsPerWorker*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", w, i)
				if err := store.Put(ctx, ns, key, []byte(key)); err != nil {
					errCh <- err
					continue
				}
				if _, err := store.Get(ctx, ns, key); err != nil {
					errCh <- err
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent access error: %v", err)
	}

	_ = store.Clear(ctx, ns, backend.AllClasses())
}
