package cachingdownloader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
)

func newTestDownloader(t *testing.T, cfg Config) (*Downloader, kv.Store) {
	t.Helper()
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	inner := downloader.New(downloader.DefaultConfig(), nil, nil)
	tracker := snapshot.New(store, nil, nil, 0)
	return New(inner, store, tracker, cfg, nil), store
}

func TestCachingDownloader_ColdFetchThenCacheHit(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("||example.com^\n"))
	}))
	defer srv.Close()

	d, _ := newTestDownloader(t, DefaultConfig())

	first, err := d.Fetch(t.Context(), "src", srv.URL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, first.RuleCount)

	second, err := d.Fetch(t.Context(), "src", srv.URL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestCachingDownloader_CachingDisabledAlwaysHitsOrigin(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("||example.com^\n"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Enabled = false
	d, _ := newTestDownloader(t, cfg)

	_, err := d.Fetch(t.Context(), "src", srv.URL)
	require.NoError(t, err)
	_, err = d.Fetch(t.Context(), "src", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestCachingDownloader_OriginFailureServesStaleWhenHealthMonitored(t *testing.T) {
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("||example.com^\n"))
	}))
	defer srv.Close()

	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	tracker := snapshot.New(store, nil, nil, 0)
	inner := downloader.New(downloader.DefaultConfig(), nil, nil)

	// Caching disabled so every call forces a fresh origin lookup; the
	// stale entry is seeded directly into the store to stand in for one
	// written by an earlier, caching-enabled run.
	cfg := DefaultConfig()
	cfg.Enabled = false
	d := New(inner, store, tracker, cfg, nil)

	seeded := entry{Content: []byte("||example.com^\n"), RuleCount: 1}
	data, err := json.Marshal(seeded)
	require.NoError(t, err)
	require.NoError(t, store.Set(t.Context(), CacheKey(srv.URL), data, 0))

	up = false
	result, err := d.Fetch(t.Context(), "src", srv.URL)
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.True(t, result.Degraded)
	assert.Equal(t, 1, result.RuleCount)
}

func TestCachingDownloader_OriginFailurePropagatesWithoutHealthMonitoring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MonitorHealth = false
	d, _ := newTestDownloader(t, cfg)

	_, err := d.Fetch(t.Context(), "src", srv.URL)
	require.Error(t, err)
}
