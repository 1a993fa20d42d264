package s3

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// fakeS3 is a minimal in-memory S3 server covering the operations the
// backend uses: object put/get/head/delete, ListObjectsV2 and DeleteObjects.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deny    bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) seed(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = value
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeS3) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.deny {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(xml.Header + `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
			return
		}

		// Path-style addressing: /<bucket> for bucket operations,
		// /<bucket>/<key> for object operations.
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
		if len(parts) < 2 || parts[1] == "" {
			f.handleBucket(w, r)
			return
		}
		f.handleObject(w, r, parts[1])
	})
}

func (f *fakeS3) handleBucket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && query.Get("list-type") == "2":
		prefix := query.Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString(xml.Header)
		sb.WriteString(`<ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&sb, "<Contents><Key>%s</Key></Contents>", k)
		}
		sb.WriteString(`</ListBucketResult>`)
		_, _ = w.Write([]byte(sb.String()))

	case r.Method == http.MethodPost && query.Has("delete"):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			XMLName xml.Name `xml:"Delete"`
			Objects []struct {
				Key string `xml:"Key"`
			} `xml:"Object"`
		}
		if err := xml.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, obj := range req.Objects {
			delete(f.objects, obj.Key)
		}
		_, _ = w.Write([]byte(xml.Header + `<DeleteResult></DeleteResult>`))

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeS3) handleObject(w http.ResponseWriter, r *http.Request, key string) {
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		value, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(xml.Header + `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		_, _ = w.Write(value)

	case http.MethodHead:
		value, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(value)))
		w.WriteHeader(http.StatusOK)

	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestBackend(t *testing.T) (*Backend, *fakeS3) {
	t.Helper()

	fake := newFakeS3()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Bucket:      "lockbox-test",
		Region:      "us-east-1",
		AccessKeyID: "test",
		SecretKey:   "test",
		Endpoint:    srv.URL,
	})
	require.NoError(t, err)

	return b, fake
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(Config{Region: "us-east-1"})
	assert.Error(t, err)
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
	b, fake := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("first")))
	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("second")))

	got, err := b.Get(ctx, "app", "db-password")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	fake.mu.Lock()
	count := len(fake.objects)
	fake.mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestBackend_DeleteAbsentKey(t *testing.T) {
	b, _ := newTestBackend(t)

	err := b.Delete(context.Background(), "app", "never-stored")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestBackend_ObjectKeyLayout(t *testing.T) {
	fake := newFakeS3()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Bucket:      "lockbox-test",
		Region:      "us-east-1",
		AccessKeyID: "test",
		SecretKey:   "test",
		Endpoint:    srv.URL,
		Prefix:      "backup",
	})
	require.NoError(t, err)

	require.NoError(t, b.Put(context.Background(), "app", "api-token", []byte("v")))
	assert.True(t, fake.has("backup/app/generic-password/api-token"))
}

func TestBackend_ClearSweepsListedClassesOnly(t *testing.T) {
	b, fake := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "api-token", []byte("v1")))
	require.NoError(t, b.Put(ctx, "app", "db-password", []byte("v2")))
	fake.seed("app/certificate/tls-cert", []byte("pem"))
	fake.seed("app/identity/me", []byte("id"))

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

func TestBackend_DeniedAccessReportsUnavailable(t *testing.T) {
	b, fake := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "app", "api-token", []byte("v")))

	fake.mu.Lock()
	fake.deny = true
	fake.mu.Unlock()

	_, err := b.Get(ctx, "app", "api-token")
	assert.ErrorIs(t, err, backend.ErrUnavailable)
	assert.NotErrorIs(t, err, backend.ErrNotFound)
}
