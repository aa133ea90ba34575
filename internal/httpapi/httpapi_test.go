package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
	"github.com/vitaliisemenov/adblock-compiler/internal/ratelimit"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
)

// testDeps bundles every collaborator newTestServer wires up, so a test
// that needs to poke a specific one (e.g. advance the cache or inspect the
// tracker) doesn't have to reconstruct the whole Config by hand.
type testDeps struct {
	store       kv.Store
	pipeline    *pipeline.Engine
	cache       *resultcache.Cache
	coalescer   *coalescer.Coalescer
	tracker     *snapshot.Tracker
	engine      *workflow.Engine
	coordinator *workflow.Coordinator
	limiter     *ratelimit.Limiter
}

func newTestServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()

	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)

	tracker := snapshot.New(store, nil, nil, 0)
	inner := downloader.New(downloader.DefaultConfig(), nil, nil)
	cd := cachingdownloader.New(inner, store, tracker, cachingdownloader.DefaultConfig(), nil)
	pipe := pipeline.New(cd, transform.NewRegistry(), 0, nil, nil)
	cache := resultcache.New(store, 0, nil, nil)
	co := coalescer.New()
	engine := workflow.New(store, nil, nil)
	coordinator := workflow.NewCoordinator(engine, pipe, cache, co, tracker, cd)
	limiter := ratelimit.New(store, ratelimit.DefaultConfig(), nil)

	deps := &testDeps{
		store:       store,
		pipeline:    pipe,
		cache:       cache,
		coalescer:   co,
		tracker:     tracker,
		engine:      engine,
		coordinator: coordinator,
		limiter:     limiter,
	}

	srv := NewServer(Config{
		Pipeline:    pipe,
		Cache:       cache,
		Coalescer:   co,
		Coordinator: coordinator,
		Engine:      engine,
		Tracker:     tracker,
		Limiter:     limiter,
	})
	return srv, deps
}

func newSourceServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfiguration(name, location string) *model.Configuration {
	return &model.Configuration{
		Name:    name,
		Sources: []model.SourceDescriptor{{Name: "a", Location: location}},
	}
}
