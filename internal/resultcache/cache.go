package resultcache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const (
	keyPrefix  = "cache/filters/"
	defaultTTL = time.Hour
)

// Cache is the content-addressed compilation-result cache.
type Cache struct {
	store   kv.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.CacheMetrics
}

// New constructs a Cache. ttl of 0 uses the default 1 hour TTL.
func New(store kv.Store, ttl time.Duration, logger *slog.Logger, m *metrics.CacheMetrics) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, ttl: ttl, logger: logger, metrics: m}
}

func cacheKey(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Get looks up a cached result by fingerprint. A decompression failure is
// treated as a cache miss — the corrupt entry is not surfaced as an error
// to the caller, who simply recomputes.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*model.Result, bool) {
	start := time.Now()
	data, ok, err := c.store.Get(ctx, cacheKey(fingerprint))
	if err != nil || !ok {
		c.record("miss", start)
		return nil, false
	}

	result, err := decode(data)
	if err != nil {
		c.logger.Warn("result cache entry failed to decompress, treating as miss", "fingerprint", fingerprint, "error", err)
		c.record("miss", start)
		return nil, false
	}

	c.record("hit", start)
	return result, true
}

// Put stores result under fingerprint, compressed, and returns the
// previously cached result (if any) so the caller can surface it as
// Result.PreviousVersion.
func (c *Cache) Put(ctx context.Context, fingerprint string, result *model.Result) (*model.Result, error) {
	previous, hadPrevious := c.Get(ctx, fingerprint)

	data, err := encode(result)
	if err != nil {
		return nil, model.NewStorageError("resultcache.Put:encode", err, false)
	}

	if err := c.store.Set(ctx, cacheKey(fingerprint), data, c.ttl); err != nil {
		return nil, model.NewStorageError("resultcache.Put:set", err, false)
	}

	if c.metrics != nil {
		c.metrics.EntriesTotal.WithLabelValues("resultcache").Set(float64(len(data)))
	}

	if !hadPrevious {
		return nil, nil
	}
	return previous, nil
}

func (c *Cache) record(outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	if outcome == "hit" {
		c.metrics.HitsTotal.WithLabelValues("resultcache").Inc()
	} else {
		c.metrics.MissesTotal.WithLabelValues("resultcache").Inc()
	}
	c.metrics.OperationTime.WithLabelValues("resultcache", "get").Observe(time.Since(start).Seconds())
}

func encode(result *model.Result) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*model.Result, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, err
	}

	var result model.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
