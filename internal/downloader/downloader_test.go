package downloader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_FetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte("||example.com^\n||ads.example.com^\n"))
	}))
	defer srv.Close()

	d := New(DefaultConfig(), nil, nil)
	result, err := d.Fetch(t.Context(), "test-source", srv.URL, "")
	require.NoError(t, err)
	assert.False(t, result.NotModified)
	assert.Equal(t, 2, result.RuleCount)
	assert.Equal(t, `"abc123"`, result.ETag)
	assert.NotEmpty(t, result.ContentHash)
}

func TestDownloader_FetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"etag-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"etag-1"`)
		w.Write([]byte("||example.com^\n"))
	}))
	defer srv.Close()

	d := New(DefaultConfig(), nil, nil)
	result, err := d.Fetch(t.Context(), "test-source", srv.URL, `"etag-1"`)
	require.NoError(t, err)
	assert.True(t, result.NotModified)
}

func TestDownloader_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("||example.com^\n"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	d := New(cfg, nil, nil)

	result, err := d.Fetch(t.Context(), "test-source", srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, 1, result.RuleCount)
}

func TestDownloader_DoesNotRetry4xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	d := New(cfg, nil, nil)

	_, err := d.Fetch(t.Context(), "test-source", srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDownloader_FetchLocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("||example.com^\n||ads.example.com^\n"), 0o644))

	d := New(DefaultConfig(), nil, nil)
	result, err := d.Fetch(t.Context(), "local-source", path, "")
	require.NoError(t, err)
	assert.False(t, result.NotModified)
	assert.Equal(t, 2, result.RuleCount)
	assert.Empty(t, result.ETag)
	assert.NotEmpty(t, result.ContentHash)
}

func TestDownloader_FetchLocalPathMissingFile(t *testing.T) {
	d := New(DefaultConfig(), nil, nil)
	_, err := d.Fetch(t.Context(), "local-source", "/nonexistent/path/list.txt", "")
	require.Error(t, err)
}

func TestDownloader_IsRemote(t *testing.T) {
	assert.True(t, IsRemote("http://example.com/list.txt"))
	assert.True(t, IsRemote("https://example.com/list.txt"))
	assert.False(t, IsRemote("/var/data/list.txt"))
	assert.False(t, IsRemote("relative/list.txt"))
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash([]byte("same content"))
	b := ContentHash([]byte("same content"))
	c := ContentHash([]byte("different content"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCountRules_IgnoresCommentsAndBlankLines(t *testing.T) {
	content := []byte("! comment\n\n||example.com^\n# hash comment\n||ads.example.com^\n")
	assert.Equal(t, 2, CountRules(content))
}
