package workflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)

	tracker := snapshot.New(store, nil, nil, 0)
	inner := downloader.New(downloader.DefaultConfig(), nil, nil)
	cd := cachingdownloader.New(inner, store, tracker, cachingdownloader.DefaultConfig(), nil)
	pipe := pipeline.New(cd, transform.NewRegistry(), 0, nil, nil)
	cache := resultcache.New(store, 0, nil, nil)
	engine := New(store, nil, nil)

	return NewCoordinator(engine, pipe, cache, coalescer.New(), tracker, cd)
}

func newSourceServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoordinator_CompileProducesAndCachesResult(t *testing.T) {
	c := newTestCoordinator(t)
	srv := newSourceServer(t, "||a.com^\n")

	cfg := &model.Configuration{
		Name:    "test",
		Sources: []model.SourceDescriptor{{Name: "a", Location: srv.URL}},
	}

	result, err := c.Compile(context.Background(), "compile-1", CompilationParams{Configuration: cfg})
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, result.Rules)
}

func TestCoordinator_CompileResumeReturnsRecordedResultWithoutRecompiling(t *testing.T) {
	c := newTestCoordinator(t)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("||a.com^\n"))
	}))
	defer srv.Close()

	cfg := &model.Configuration{
		Name:    "test",
		Sources: []model.SourceDescriptor{{Name: "a", Location: srv.URL}},
	}

	_, err := c.Compile(context.Background(), "compile-2", CompilationParams{Configuration: cfg})
	require.NoError(t, err)

	result, err := c.Compile(context.Background(), "compile-2", CompilationParams{Configuration: cfg})
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, result.Rules)
	assert.Equal(t, 1, requests, "resuming a completed compilation must not refetch the source")
}

func TestCoordinator_BatchCompilesEachConfigurationAsItsOwnStep(t *testing.T) {
	c := newTestCoordinator(t)
	srvA := newSourceServer(t, "||a.com^\n")
	srvB := newSourceServer(t, "||b.com^\n")

	params := BatchParams{Configurations: []*model.Configuration{
		{Name: "cfg-a", Sources: []model.SourceDescriptor{{Name: "a", Location: srvA.URL}}},
		{Name: "cfg-b", Sources: []model.SourceDescriptor{{Name: "b", Location: srvB.URL}}},
	}}

	results, err := c.Batch(context.Background(), "batch-1", params)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"||a.com^"}, results[0].Rules)
	assert.Equal(t, []string{"||b.com^"}, results[1].Rules)
}

func TestCoordinator_WarmCacheFetchesEverySourceOnce(t *testing.T) {
	c := newTestCoordinator(t)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("||a.com^\n"))
	}))
	defer srv.Close()

	params := CacheWarmingParams{Sources: []model.SourceDescriptor{{Name: "a", Location: srv.URL}}}
	err := c.WarmCache(context.Background(), "warm-1", params)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestCoordinator_MonitorHealthProbesEachSource(t *testing.T) {
	c := newTestCoordinator(t)
	srv := newSourceServer(t, "||a.com^\n")

	params := HealthMonitoringParams{Sources: []model.SourceDescriptor{{Name: "a", Location: srv.URL}}}
	inst, err := c.MonitorHealth(context.Background(), "health-1", params)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowComplete, inst.Status)
}
