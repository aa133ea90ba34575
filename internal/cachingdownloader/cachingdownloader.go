// Package cachingdownloader wraps a downloader.Downloader with a kv.Store
// so repeated compilations of an unchanged source skip the network
// entirely, and a source that starts failing can still serve its last
// good content while its health degrades.
package cachingdownloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
)

const cacheKeyPrefix = "cache/filters/"

// Config controls caching behavior per source fetch.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	DetectChanges bool          `mapstructure:"detect_changes"`
	MonitorHealth bool          `mapstructure:"monitor_health"`
}

// DefaultConfig enables caching with a 1 hour TTL, change detection, and
// health monitoring.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TTL:           time.Hour,
		DetectChanges: true,
		MonitorHealth: true,
	}
}

// entry is the persisted cache record for one source location.
type entry struct {
	Content     []byte    `json:"content"`
	ContentHash string    `json:"content_hash"`
	ETag        string    `json:"etag"`
	RuleCount   int       `json:"rule_count"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Result is a cache-aware fetch outcome.
type Result struct {
	Content   []byte
	RuleCount int
	FromCache bool
	Degraded  bool
	FetchedAt time.Time
}

// Downloader mediates between a downloader.Downloader and a kv.Store,
// recording outcomes against a snapshot.Tracker when one is supplied.
type Downloader struct {
	inner   *downloader.Downloader
	store   kv.Store
	tracker *snapshot.Tracker
	config  Config
	logger  *slog.Logger
	sf      singleflight.Group
}

// New constructs a Downloader. tracker may be nil to disable snapshot and
// health recording.
func New(inner *downloader.Downloader, store kv.Store, tracker *snapshot.Tracker, cfg Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{inner: inner, store: store, tracker: tracker, config: cfg, logger: logger}
}

// CacheKey returns the cache key the given source location is stored under.
func CacheKey(location string) string {
	sum := sha256.Sum256([]byte(location))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Fetch retrieves sourceName's content at location, consulting the cache
// first. With caching enabled, a stored entry is returned without
// contacting the origin. Otherwise it calls through to the wrapped
// Downloader; the stored entry's ETag is passed only when change detection
// is enabled and an entry is present, so a cold or expired cache sends no
// ETag. New content is persisted back to the cache (when caching is
// enabled) and recorded against the snapshot tracker. A 304-not-modified
// answer serves the stored body and extends its TTL; it records no
// snapshot. An origin failure falls back to a stored entry, tagged
// degraded, when health monitoring is enabled; otherwise the error
// propagates.
//
// Concurrent Fetch calls for the same location share one in-flight
// origin round trip: the cache key also serves as the single-flight key,
// so a stampede of compilations racing for the same cold or expired
// source collapses into a single downloader.Fetch call, with every
// caller receiving the same Result (or error).
func (d *Downloader) Fetch(ctx context.Context, sourceName, location string) (*Result, error) {
	key := CacheKey(location)

	v, err, _ := d.sf.Do(key, func() (interface{}, error) {
		return d.fetch(ctx, sourceName, location, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (d *Downloader) fetch(ctx context.Context, sourceName, location, key string) (*Result, error) {
	cached, hasCached := d.loadEntry(ctx, key)
	if d.config.Enabled && hasCached {
		return &Result{Content: cached.Content, RuleCount: cached.RuleCount, FromCache: true, FetchedAt: cached.FetchedAt}, nil
	}

	prevETag := ""
	if d.config.DetectChanges && hasCached {
		prevETag = cached.ETag
	}

	fetched, err := d.inner.Fetch(ctx, sourceName, location, prevETag)
	if err != nil {
		d.recordAttempt(ctx, sourceName, false)
		if d.config.MonitorHealth && hasCached {
			d.logger.Warn("source fetch failed, serving stale cache", "source", sourceName, "error", err)
			return &Result{Content: cached.Content, RuleCount: cached.RuleCount, FromCache: true, Degraded: true, FetchedAt: cached.FetchedAt}, nil
		}
		return nil, model.NewSourceError(sourceName, err)
	}
	d.recordAttempt(ctx, sourceName, true)

	if fetched.NotModified && hasCached {
		d.extendTTL(ctx, key)
		return &Result{Content: cached.Content, RuleCount: cached.RuleCount, FromCache: true, FetchedAt: cached.FetchedAt}, nil
	}

	result := &Result{Content: fetched.Content, RuleCount: fetched.RuleCount, FetchedAt: fetched.FetchedAt}

	if d.config.Enabled {
		d.storeEntry(ctx, key, entry{
			Content:     fetched.Content,
			ContentHash: fetched.ContentHash,
			ETag:        fetched.ETag,
			RuleCount:   fetched.RuleCount,
			FetchedAt:   fetched.FetchedAt,
		})
	}

	if d.tracker != nil {
		snap := model.Snapshot{
			SourceID:    sourceName,
			Timestamp:   fetched.FetchedAt,
			ContentHash: fetched.ContentHash,
			RuleCount:   fetched.RuleCount,
			ETag:        fetched.ETag,
		}
		if _, err := d.tracker.Record(ctx, &snap); err != nil {
			d.logger.Warn("failed to record source snapshot", "source", sourceName, "error", err)
		}
	}

	return result, nil
}

func (d *Downloader) loadEntry(ctx context.Context, key string) (entry, bool) {
	data, ok, err := d.store.Get(ctx, key)
	if err != nil || !ok {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, false
	}
	return e, true
}

func (d *Downloader) storeEntry(ctx context.Context, key string, e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		d.logger.Warn("failed to marshal cache entry", "error", err)
		return
	}
	if err := d.store.Set(ctx, key, data, d.config.TTL); err != nil {
		d.logger.Warn("failed to persist cache entry", "error", err)
	}
}

func (d *Downloader) extendTTL(ctx context.Context, key string) {
	if err := d.store.Expire(ctx, key, d.config.TTL); err != nil {
		d.logger.Warn("failed to extend cache entry TTL", "error", err)
	}
}

func (d *Downloader) recordAttempt(ctx context.Context, sourceName string, success bool) {
	if d.tracker == nil {
		return
	}
	if _, err := d.tracker.RecordAttempt(ctx, sourceName, success); err != nil {
		d.logger.Warn("failed to record health attempt", "source", sourceName, "error", err)
	}
}
