// Package snapshot persists per-source content snapshots under the
// keyspaces "snapshots/sources/<id>" and
// "snapshots/history/<id>/<timestamp>", and rolling health records under
// "health/sources/<id>", using a JSON-marshal-then-store idiom over a
// small time-series ring per source.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const (
	sourceKeyPrefix  = "snapshots/sources/"
	historyKeyPrefix = "snapshots/history/"

	// defaultHistoryLimit bounds the per-source history ring to a fixed
	// window so it never grows unbounded.
	defaultHistoryLimit = 100
	historyTTL          = 30 * 24 * time.Hour
)

// Tracker records per-source snapshots and health classifications.
type Tracker struct {
	store        kv.Store
	logger       *slog.Logger
	metrics      *metrics.WorkflowMetrics
	historyLimit int
}

// New constructs a Tracker backed by store. historyLimit of 0 uses the
// default of 100 entries per source.
func New(store kv.Store, logger *slog.Logger, m *metrics.WorkflowMetrics, historyLimit int) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Tracker{store: store, logger: logger, metrics: m, historyLimit: historyLimit}
}

func sourceKey(sourceID string) string {
	return sourceKeyPrefix + sourceID
}

func historyKey(sourceID string, ts time.Time) string {
	return fmt.Sprintf("%s%s/%d", historyKeyPrefix, sourceID, ts.UnixNano())
}

// Latest returns the most recently recorded snapshot for sourceID, or nil
// if none exists yet.
func (t *Tracker) Latest(ctx context.Context, sourceID string) (*model.Snapshot, error) {
	data, ok, err := t.store.Get(ctx, sourceKey(sourceID))
	if err != nil {
		return nil, model.NewStorageError("snapshot.Latest", err, false)
	}
	if !ok {
		return nil, nil
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, model.NewStorageError("snapshot.Latest:unmarshal", err, false)
	}
	return &snap, nil
}

// Record stores a new snapshot as the source's latest, appends it to the
// bounded history ring, and returns the diff against the previous latest
// snapshot.
func (t *Tracker) Record(ctx context.Context, snap *model.Snapshot) (model.SnapshotDiff, error) {
	prev, err := t.Latest(ctx, snap.SourceID)
	if err != nil {
		return model.SnapshotDiff{}, err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return model.SnapshotDiff{}, model.NewStorageError("snapshot.Record:marshal", err, false)
	}

	if err := t.store.Set(ctx, sourceKey(snap.SourceID), data, 0); err != nil {
		return model.SnapshotDiff{}, model.NewStorageError("snapshot.Record:set", err, false)
	}

	if err := t.store.Set(ctx, historyKey(snap.SourceID, snap.Timestamp), data, historyTTL); err != nil {
		t.logger.Warn("failed to append snapshot history entry", "source", snap.SourceID, "error", err)
	} else {
		t.trimHistory(ctx, snap.SourceID)
	}

	return model.DiffSnapshots(prev, snap), nil
}

// trimHistory deletes the oldest entries beyond historyLimit. Best-effort:
// a failure here only means the ring temporarily exceeds its bound, not a
// correctness issue.
func (t *Tracker) trimHistory(ctx context.Context, sourceID string) {
	keys, err := t.store.ListPrefix(ctx, historyKeyPrefix+sourceID+"/")
	if err != nil {
		return
	}
	if len(keys) <= t.historyLimit {
		return
	}
	// ListPrefix returns lexical order; since keys are suffixed with
	// UnixNano, lexical order matches chronological order for same-length
	// timestamps (19 digits from 2001 until UnixNano's int64 range ends in
	// 2262), so the oldest entries
	// are the leading ones.
	sort.Strings(keys)
	excess := len(keys) - t.historyLimit
	for _, k := range keys[:excess] {
		if err := t.store.Delete(ctx, k); err != nil {
			t.logger.Warn("failed to trim snapshot history entry", "key", k, "error", err)
		}
	}
}

// History returns up to limit recent snapshots for sourceID, oldest first.
// limit of 0 returns the tracker's configured historyLimit.
func (t *Tracker) History(ctx context.Context, sourceID string, limit int) ([]model.Snapshot, error) {
	if limit <= 0 {
		limit = t.historyLimit
	}
	keys, err := t.store.ListPrefix(ctx, historyKeyPrefix+sourceID+"/")
	if err != nil {
		return nil, model.NewStorageError("snapshot.History", err, false)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	out := make([]model.Snapshot, 0, len(keys))
	for _, k := range keys {
		data, ok, err := t.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}
