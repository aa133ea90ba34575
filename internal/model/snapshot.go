package model

import "time"

// Snapshot is an immutable record of one successful fetch outcome for a
// source. Snapshots for a given SourceID are ordered by Timestamp; the
// tracker enforces that the "latest" snapshot is unique.
type Snapshot struct {
	SourceID    string    `json:"source_id"`
	Timestamp   time.Time `json:"timestamp"`
	ContentHash string    `json:"content_hash"`
	RuleCount   int       `json:"rule_count"`
	Sample      []string  `json:"sample,omitempty"`
	ETag        string    `json:"etag,omitempty"`
}

// SnapshotDiff compares two consecutive snapshots for the same source.
type SnapshotDiff struct {
	HasChanged             bool    `json:"has_changed"`
	RuleCountDelta         int     `json:"rule_count_delta"`
	RuleCountChangePercent float64 `json:"rule_count_change_percent"`
}

// DiffSnapshots computes the SnapshotDiff of curr against prev. prev may be
// nil for a source's first ever snapshot, in which case the diff reports a
// change with no baseline to compare percentages against.
func DiffSnapshots(prev, curr *Snapshot) SnapshotDiff {
	if prev == nil {
		return SnapshotDiff{HasChanged: true, RuleCountDelta: curr.RuleCount}
	}
	delta := curr.RuleCount - prev.RuleCount
	denom := prev.RuleCount
	if denom < 1 {
		denom = 1
	}
	return SnapshotDiff{
		HasChanged:             prev.ContentHash != curr.ContentHash,
		RuleCountDelta:         delta,
		RuleCountChangePercent: 100 * float64(delta) / float64(denom),
	}
}

// HealthStatus is the rolling classification of a source's fetch health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthRecord is the rolling health state for one source.
type HealthRecord struct {
	SourceID            string       `json:"source_id"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalAttempts       int          `json:"total_attempts"`
	TotalSuccesses      int          `json:"total_successes"`
	LastStatus          string       `json:"last_status"`
	Classification      HealthStatus `json:"classification"`
	LastUpdated         time.Time    `json:"last_updated"`
}

// SuccessRate returns the record's trailing success rate as a fraction in
// [0, 1]. A record with no attempts yet is reported as fully healthy so a
// brand-new source doesn't start out Unhealthy.
func (h *HealthRecord) SuccessRate() float64 {
	if h.TotalAttempts == 0 {
		return 1
	}
	return float64(h.TotalSuccesses) / float64(h.TotalAttempts)
}

// RecordAttempt updates the rolling counters for one fetch attempt and
// recomputes Classification per these thresholds:
//
//	Healthy:   success rate >= 95% AND 0 consecutive failures
//	Degraded:  success rate in [80%, 95%) OR 1-2 consecutive failures
//	Unhealthy: success rate < 80% OR >= 3 consecutive failures
func (h *HealthRecord) RecordAttempt(success bool, now time.Time) {
	h.TotalAttempts++
	if success {
		h.TotalSuccesses++
		h.ConsecutiveFailures = 0
		h.LastStatus = "success"
	} else {
		h.ConsecutiveFailures++
		h.LastStatus = "failure"
	}
	h.LastUpdated = now
	h.Classification = classify(h.SuccessRate(), h.ConsecutiveFailures)
}

func classify(successRate float64, consecutiveFailures int) HealthStatus {
	switch {
	case consecutiveFailures >= 3 || successRate < 0.80:
		return HealthUnhealthy
	case consecutiveFailures >= 1 || successRate < 0.95:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
