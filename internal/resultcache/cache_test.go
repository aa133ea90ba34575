package resultcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	return New(store, time.Minute, nil, nil)
}

func TestCache_MissWhenEmpty(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(context.Background(), "fp-1")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	c := newTestCache(t)
	result := &model.Result{Rules: []string{"||a.com^"}, RuleCount: 1}

	_, err := c.Put(context.Background(), "fp-1", result)
	require.NoError(t, err)

	got, ok := c.Get(context.Background(), "fp-1")
	require.True(t, ok)
	assert.Equal(t, 1, got.RuleCount)
	assert.Equal(t, []string{"||a.com^"}, got.Rules)
}

func TestCache_PutSurfacesPreviousVersion(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first := &model.Result{Rules: []string{"||a.com^"}, RuleCount: 1}
	_, err := c.Put(ctx, "fp-1", first)
	require.NoError(t, err)

	second := &model.Result{Rules: []string{"||a.com^", "||b.com^"}, RuleCount: 2}
	previous, err := c.Put(ctx, "fp-1", second)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, 1, previous.RuleCount)
}

func TestCache_PutFirstTimeHasNoPreviousVersion(t *testing.T) {
	c := newTestCache(t)
	result := &model.Result{Rules: []string{"||a.com^"}, RuleCount: 1}

	previous, err := c.Put(context.Background(), "fp-1", result)
	require.NoError(t, err)
	assert.Nil(t, previous)
}

func TestCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	c := New(store, time.Minute, nil, nil)

	require.NoError(t, store.Set(context.Background(), "cache/filters/fp-1", []byte("not gzip data"), 0))

	_, ok := c.Get(context.Background(), "fp-1")
	assert.False(t, ok)
}

func TestFingerprint_DeterministicForEqualConfigurations(t *testing.T) {
	cfg1 := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: "http://example.com/a"},
			{Name: "b", Location: "http://example.com/b"},
		},
	}
	cfg2 := &model.Configuration{
		Name: "test",
		Sources: []model.SourceDescriptor{
			{Name: "a", Location: "http://example.com/a"},
			{Name: "b", Location: "http://example.com/b"},
		},
	}

	fp1, err := Fingerprint(cfg1)
	require.NoError(t, err)
	fp2, err := Fingerprint(cfg2)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestFingerprint_DiffersOnContentChange(t *testing.T) {
	cfg1 := &model.Configuration{Name: "a", Sources: []model.SourceDescriptor{{Name: "s", Location: "http://x"}}}
	cfg2 := &model.Configuration{Name: "b", Sources: []model.SourceDescriptor{{Name: "s", Location: "http://x"}}}

	fp1, err := Fingerprint(cfg1)
	require.NoError(t, err)
	fp2, err := Fingerprint(cfg2)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}
