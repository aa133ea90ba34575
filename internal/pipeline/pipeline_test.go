package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/diagnostics"
	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	tracker := snapshot.New(store, nil, nil, 0)
	inner := downloader.New(downloader.DefaultConfig(), nil, nil)
	cd := cachingdownloader.New(inner, store, tracker, cachingdownloader.DefaultConfig(), nil)
	return New(cd, transform.NewRegistry(), 0, nil, nil)
}

func newSourceServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_CompileMergesSourcesInOrder(t *testing.T) {
	e := newTestEngine(t)
	srvA := newSourceServer(t, "||a.com^\n")
	srvB := newSourceServer(t, "||b.com^\n")

	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: srvA.URL},
			{Name: "b", Location: srvB.URL},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	result, err := e.Compile(dctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^", "||b.com^"}, result.Rules)
}

func TestEngine_PrefetchedContentBypassesDownloader(t *testing.T) {
	e := newTestEngine(t)
	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: "http://unreachable.invalid/list.txt"},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	prefetched := map[string][]byte{"a": []byte("||a.com^\n")}
	result, err := e.Compile(dctx, cfg, prefetched)
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, result.Rules)
}

func TestEngine_NonStrictSourceFailureDegradesRatherThanAborts(t *testing.T) {
	e := newTestEngine(t)
	srvA := newSourceServer(t, "||a.com^\n")

	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: srvA.URL},
			{Name: "b", Location: "http://unreachable.invalid/list.txt"},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	result, err := e.Compile(dctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, result.Rules)
	require.Len(t, result.SourceErrors, 1)
	assert.Equal(t, "b", result.SourceErrors[0].SourceName)
}

func TestEngine_StrictSourceFailureAborts(t *testing.T) {
	e := newTestEngine(t)
	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: "http://unreachable.invalid/list.txt", Strict: true},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	_, err := e.Compile(dctx, cfg, nil)
	require.Error(t, err)
}

func TestEngine_AllSourcesFailingWithNothingPrefetchedIsFatal(t *testing.T) {
	e := newTestEngine(t)
	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: "http://unreachable.invalid/list.txt"},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	_, err := e.Compile(dctx, cfg, nil)
	require.Error(t, err)
}

func TestEngine_PerSourceAndGlobalTransformationsApply(t *testing.T) {
	e := newTestEngine(t)
	srvA := newSourceServer(t, "||a.com^\n! comment\n||a.com^\n")

	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: srvA.URL, Transformations: []string{string(transform.RemoveComments)}},
		},
		Transformations: []string{string(transform.Deduplicate)},
	}

	dctx := diagnostics.New(context.Background(), nil)
	result, err := e.Compile(dctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"||a.com^"}, result.Rules)
}

func TestEngine_WildcardInclusionFiltersSourceRules(t *testing.T) {
	e := newTestEngine(t)
	srvA := newSourceServer(t, "||ads.example.com^\n||tracker.example.com^\n||safe.example.com^\n")

	cfg := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: srvA.URL, Inclusions: []string{"*ads*"}},
		},
	}

	dctx := diagnostics.New(context.Background(), nil)
	result, err := e.Compile(dctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"||ads.example.com^"}, result.Rules)
}

func TestEngine_CancelledContextProducesCancelledResult(t *testing.T) {
	e := newTestEngine(t)
	srvA := newSourceServer(t, "||a.com^\n")

	cfg := &model.Configuration{
		Name:    "test",
		Sources: []model.SourceDescriptor{{Name: "a", Location: srvA.URL}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dctx := diagnostics.New(ctx, nil)

	result, err := e.Compile(dctx, cfg, nil)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func TestEngine_InvalidConfigurationIsRejected(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Compile(diagnostics.New(context.Background(), nil), &model.Configuration{}, nil)
	require.Error(t, err)
}
