package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster is just enough of the OpenSearch API for the client.
type fakeCluster struct {
	mu        sync.Mutex
	templates map[string]map[string]any
	docs      map[string]ChunkDoc
	rejectID  string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{templates: map[string]map[string]any{}, docs: map[string]ChunkDoc{}}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_, _ = io.WriteString(w, `{"name":"node-1","cluster_name":"test","version":{"distribution":"opensearch","number":"2.11.0"},"tagline":"The OpenSearch Project"}`)

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/_index_template/"):
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fc.mu.Lock()
		fc.templates[strings.TrimPrefix(r.URL.Path, "/_index_template/")] = body
		fc.mu.Unlock()
		_, _ = io.WriteString(w, `{"acknowledged":true}`)

	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		fc.bulk(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (fc *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	type meta struct {
		ID string `json:"_id"`
	}
	var items []map[string]any
	hasErrors := false

	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<24)
	for sc.Scan() {
		var action map[string]meta
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !sc.Scan() {
			break
		}
		var doc ChunkDoc
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := action["index"].ID

		if id == fc.rejectID {
			hasErrors = true
			items = append(items, map[string]any{"index": map[string]any{
				"_id": id, "status": 400,
				"error": map[string]any{"type": "mapper_parsing_exception", "reason": "bad doc"},
			}})
			continue
		}
		fc.mu.Lock()
		fc.docs[id] = doc
		fc.mu.Unlock()
		items = append(items, map[string]any{"index": map[string]any{"_id": id, "status": 201, "result": "created"}})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": hasErrors, "items": items})
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestInitialize(t *testing.T) {
	fc, srv := newFakeCluster(t)
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.Initialize(context.Background()))
	// second call is a no-op
	require.NoError(t, c.Initialize(context.Background()))

	tmpl, ok := fc.templates["ctidoc-chunks-template"]
	require.True(t, ok)
	assert.Equal(t, []any{"ctidoc-chunks*"}, tmpl["index_patterns"])

	mappings := tmpl["template"].(map[string]any)["mappings"].(map[string]any)
	props := mappings["properties"].(map[string]any)
	for _, field := range []string{"doc_id", "source", "path", "category", "title", "chunk_index", "chunk_total", "tokens", "overlap", "text"} {
		assert.Contains(t, props, field)
	}
}

func TestInitialize_ClusterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	assert.Error(t, c.Initialize(context.Background()))
}

func TestIndexChunks(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.rejectID = "bad"
	c := newTestClient(t, srv.URL)

	docs := []ChunkDoc{
		{DocID: "a", Path: "generic/x_chunk_1.md", Category: "generic", ChunkIndex: 1, ChunkTotal: 2, Tokens: 10, Text: "one"},
		{DocID: "b", Path: "generic/x_chunk_2.md", Category: "generic", ChunkIndex: 2, ChunkTotal: 2, Tokens: 12, Overlap: true, Text: "two"},
		{DocID: "bad", Path: "generic/y.md", Category: "generic", Text: "three"},
	}
	resp, err := c.IndexChunks(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Indexed)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "mapper_parsing_exception")

	require.Contains(t, fc.docs, "b")
	assert.Equal(t, "two", fc.docs["b"].Text)
	assert.True(t, fc.docs["b"].Overlap)
	assert.False(t, fc.docs["b"].IndexedAt.IsZero())
}

func TestIndexChunks_Empty(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	resp, err := c.IndexChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, resp.Indexed)
}
