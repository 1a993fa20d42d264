package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// fakeVault is a minimal in-memory KV v2 server covering the API surface the
// backend uses: data read/write, metadata delete and metadata list.
type fakeVault struct {
	mu    sync.Mutex
	store map[string]map[string]interface{}
	token string
}

func newFakeVault(token string) *fakeVault {
	return &fakeVault{
		store: make(map[string]map[string]interface{}),
		token: token,
	}
}

func (f *fakeVault) seed(path string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[path] = fields
}

func (f *fakeVault) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[path]
	return ok
}

func (f *fakeVault) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.token != "" && r.Header.Get("X-Vault-Token") != f.token {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
			f.handleData(w, r, strings.TrimPrefix(r.URL.Path, "/v1/secret/data/"))
		case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/"):
			f.handleMetadata(w, r, strings.TrimPrefix(r.URL.Path, "/v1/secret/metadata/"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	})
}

func (f *fakeVault) handleData(w http.ResponseWriter, r *http.Request, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		fields, ok := f.store[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     fields,
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.store[path] = body.Data
		_, _ = w.Write([]byte(`{"data":{"version":1}}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeVault) handleMetadata(w http.ResponseWriter, r *http.Request, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == "LIST" || r.URL.Query().Get("list") == "true" {
		prefix := strings.TrimSuffix(path, "/") + "/"
		var keys []string
		for p := range f.store {
			if strings.HasPrefix(p, prefix) && !strings.Contains(strings.TrimPrefix(p, prefix), "/") {
				keys = append(keys, strings.TrimPrefix(p, prefix))
			}
		}
		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"keys": keys},
		})
		return
	}

	if r.Method == http.MethodDelete {
		delete(f.store, path)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.WriteHeader(http.StatusMethodNotAllowed)
}

func newTestBackend(t *testing.T) (*Backend, *fakeVault) {
	t.Helper()

	fake := newFakeVault("unit-test-token")
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Address:    srv.URL,
		AuthMethod: "token",
		Token:      "unit-test-token",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b, fake
}

func TestBackend_PutGetDelete(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "api-token", []byte("hvs.abc123")))

	got, err := b.Get(ctx, "app", "api-token")
	require.NoError(t, err)
	assert.Equal(t, []byte("hvs.abc123"), got)

	require.NoError(t, b.Delete(ctx, "app", "api-token"))

	_, err = b.Get(ctx, "app", "api-token")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestBackend_PutOverwrites(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("first")))
	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("second")))

	got, err := b.Get(ctx, "app", "db-password")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestBackend_DeleteAbsentKey(t *testing.T) {
	b, _ := newTestBackend(t)

	err := b.Delete(context.Background(), "app", "never-stored")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestBackend_ValuesAreBase64Encoded(t *testing.T) {
	b, fake := newTestBackend(t)

	require.NoError(t, b.Put(context.Background(), "app", "blob", []byte{0x00, 0xff, 0x10}))

	fake.mu.Lock()
	fields := fake.store["app/generic-password/blob"]
	fake.mu.Unlock()

	require.NotNil(t, fields)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x00, 0xff, 0x10}), fields["value"])
}

func TestBackend_ForeignValueReturnsRaw(t *testing.T) {
	b, fake := newTestBackend(t)

	// A record written by other tooling, value not base64.
	fake.seed("app/generic-password/plain", map[string]interface{}{"value": "plain!!value"})

	got, err := b.Get(context.Background(), "app", "plain")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain!!value"), got)
}

func TestBackend_ClearSweepsListedClassesOnly(t *testing.T) {
	b, fake := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "api-token", []byte("v1")))
	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("v2")))
	fake.seed("app/certificate/tls-cert", map[string]interface{}{"value": "pem"})
	fake.seed("app/identity/me", map[string]interface{}{"value": "id"})

	err := b.Clear(ctx, "app", []backend.Class{
		backend.ClassGenericPassword,
		backend.ClassCertificate,
	})
	require.NoError(t, err)

	assert.False(t, fake.has("app/generic-password/api-token"))
	assert.False(t, fake.has("app/generic-password/db-password"))
	assert.False(t, fake.has("app/certificate/tls-cert"))
	assert.True(t, fake.has("app/identity/me"))
}

func TestBackend_ClearEmptyNamespace(t *testing.T) {
	b, _ := newTestBackend(t)

	err := b.Clear(context.Background(), "empty", backend.AllClasses())
	assert.NoError(t, err)
}

func TestBackend_KeysAreEscaped(t *testing.T) {
	b, fake := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "svc/api#token", []byte("v")))

	// Slashes in keys must not create nested paths, or Clear would miss them.
	assert.True(t, fake.has("app/generic-password/svc%2Fapi%23token"))

	require.NoError(t, b.Clear(ctx, "app", []backend.Class{backend.ClassGenericPassword}))
	assert.False(t, fake.has("app/generic-password/svc%2Fapi%23token"))
}

func TestBackend_AppRoleLogin(t *testing.T) {
	fake := newFakeVault("approle-issued-token")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "role-123", body["role_id"])
		assert.Equal(t, "secret-456", body["secret_id"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"auth": map[string]interface{}{
				"client_token":   "approle-issued-token",
				"renewable":      false,
				"lease_duration": 3600,
			},
		})
	})
	mux.Handle("/", fake.handler())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Address:    srv.URL,
		AuthMethod: "approle",
		RoleID:     "role-123",
		SecretID:   "secret-456",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	// Subsequent calls must carry the issued token.
	require.NoError(t, b.Put(context.Background(), "app", "k", []byte("v")))
	assert.True(t, fake.has("app/generic-password/k"))
}

func TestBackend_Prefix(t *testing.T) {
	fake := newFakeVault("unit-test-token")
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Address:    srv.URL,
		AuthMethod: "token",
		Token:      "unit-test-token",
		Prefix:     "team/platform",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Put(context.Background(), "app", "k", []byte("v")))
	assert.True(t, fake.has("team/platform/app/generic-password/k"))
}
