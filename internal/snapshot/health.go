package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const healthKeyPrefix = "health/sources/"

func healthKey(sourceID string) string {
	return healthKeyPrefix + sourceID
}

// healthGaugeValue maps a HealthStatus to the numeric value the Prometheus
// gauge exposes, matching WorkflowMetrics.SourceHealth's documented scale.
func healthGaugeValue(status model.HealthStatus) float64 {
	switch status {
	case model.HealthHealthy:
		return 0
	case model.HealthDegraded:
		return 1
	default:
		return 2
	}
}

// HealthRecord returns the current rolling health record for sourceID, or
// a fresh zero-value record if none has been recorded yet.
func (t *Tracker) HealthRecord(ctx context.Context, sourceID string) (*model.HealthRecord, error) {
	data, ok, err := t.store.Get(ctx, healthKey(sourceID))
	if err != nil {
		return nil, model.NewStorageError("snapshot.HealthRecord", err, false)
	}
	if !ok {
		return &model.HealthRecord{SourceID: sourceID, Classification: model.HealthHealthy}, nil
	}
	var rec model.HealthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, model.NewStorageError("snapshot.HealthRecord:unmarshal", err, false)
	}
	return &rec, nil
}

// RecordAttempt updates sourceID's rolling health record with the outcome
// of one fetch attempt and persists it. Health records never expire; they
// are overwritten on each attempt.
func (t *Tracker) RecordAttempt(ctx context.Context, sourceID string, success bool) (*model.HealthRecord, error) {
	rec, err := t.HealthRecord(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	rec.RecordAttempt(success, time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, model.NewStorageError("snapshot.RecordAttempt:marshal", err, false)
	}
	if err := t.store.Set(ctx, healthKey(sourceID), data, 0); err != nil {
		return nil, model.NewStorageError("snapshot.RecordAttempt:set", err, false)
	}

	if t.metrics != nil {
		t.metrics.SourceHealth.WithLabelValues(sourceID).Set(healthGaugeValue(rec.Classification))
	}
	if rec.Classification != model.HealthHealthy {
		t.logger.Warn("source health degraded",
			"source", sourceID,
			"classification", rec.Classification,
			"consecutive_failures", rec.ConsecutiveFailures,
			"success_rate", rec.SuccessRate(),
		)
	}

	return rec, nil
}

// AllHealthRecords returns every recorded source health record, used by
// operator tooling to inspect overall fleet health.
func (t *Tracker) AllHealthRecords(ctx context.Context) ([]model.HealthRecord, error) {
	keys, err := t.store.ListPrefix(ctx, healthKeyPrefix)
	if err != nil {
		return nil, model.NewStorageError("snapshot.AllHealthRecords", err, false)
	}

	out := make([]model.HealthRecord, 0, len(keys))
	for _, k := range keys {
		data, ok, err := t.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var rec model.HealthRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
