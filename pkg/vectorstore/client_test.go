package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStoreServer mimics the vector-store files API.
type fakeStoreServer struct {
	mu    sync.Mutex
	seq   int
	files map[string]string // marker -> path
}

func newFakeStoreServer() *fakeStoreServer {
	return &fakeStoreServer{files: make(map[string]string)}
}

func (f *fakeStoreServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stores/store-1/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		path := r.FormValue("path")
		require.NotEmpty(t, path)

		f.mu.Lock()
		f.seq++
		marker := fmt.Sprintf("file-%d", f.seq)
		f.files[marker] = path
		f.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": marker})
	})
	mux.HandleFunc("/v1/stores/store-1/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		marker := strings.TrimPrefix(r.URL.Path, "/v1/stores/store-1/files/")
		f.mu.Lock()
		_, ok := f.files[marker]
		delete(f.files, marker)
		f.mu.Unlock()
		if !ok {
			http.Error(w, "no such file", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeStoreServer) {
	t.Helper()
	fake := newFakeStoreServer()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, StoreID: "store-1", APIKey: "k"})
	require.NoError(t, err)
	return client, fake
}

func TestClientConfigValidate(t *testing.T) {
	assert.Error(t, ClientConfig{}.Validate())
	assert.Error(t, ClientConfig{BaseURL: "http://x"}.Validate())
	assert.NoError(t, ClientConfig{BaseURL: "http://x", StoreID: "s"}.Validate())
}

func TestClientUpsertRemove(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	marker, err := client.Upsert(ctx, Document{Path: "docs/a.md", Content: []byte("hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, marker)

	fake.mu.Lock()
	assert.Equal(t, "docs/a.md", fake.files[marker])
	fake.mu.Unlock()

	require.NoError(t, client.Remove(ctx, marker))

	err = client.Remove(ctx, marker)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestClientUpsertServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "store is full", http.StatusInsufficientStorage)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, StoreID: "store-1"})
	require.NoError(t, err)

	_, err = client.Upsert(context.Background(), Document{Path: "a", Content: []byte("x")})
	require.Error(t, err)
	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, ierr.Error(), "store is full")
}

func TestMemoryIndex(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	m1, err := mem.Upsert(ctx, Document{Path: "a"})
	require.NoError(t, err)
	m2, err := mem.Upsert(ctx, Document{Path: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, m1, m2)
	assert.Equal(t, 2, mem.Len())

	require.NoError(t, mem.Remove(ctx, m1))
	assert.Equal(t, 1, mem.Len())

	err = mem.Remove(ctx, m1)
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}
