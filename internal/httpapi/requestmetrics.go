package httpapi

import (
	"net/http"
	"sync"
	"time"
)

// requestWindow aggregates request outcomes into a ring of per-bucket
// counters keyed by endpoint and outcome, pruned to a trailing window —
// the same bounded-retention shape workflow.EventLog uses for its event
// ring, applied here to request counters instead of workflow events.
// Distinct from the Prometheus-format scrape endpoint: this is the JSON
// aggregated-counters view the external interface names separately.
type requestWindow struct {
	mu       sync.Mutex
	window   time.Duration
	bucket   time.Duration
	counters map[int64]map[string]map[string]int
}

func newRequestWindow(window, bucket time.Duration) *requestWindow {
	return &requestWindow{
		window:   window,
		bucket:   bucket,
		counters: make(map[int64]map[string]map[string]int),
	}
}

func (rw *requestWindow) record(endpoint, outcome string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := time.Now()
	key := now.Truncate(rw.bucket).Unix()
	bucket, ok := rw.counters[key]
	if !ok {
		bucket = make(map[string]map[string]int)
		rw.counters[key] = bucket
	}
	if bucket[endpoint] == nil {
		bucket[endpoint] = make(map[string]int)
	}
	bucket[endpoint][outcome]++
	rw.prune(now)
}

// prune must be called with rw.mu held.
func (rw *requestWindow) prune(now time.Time) {
	cutoff := now.Add(-rw.window).Truncate(rw.bucket).Unix()
	for key := range rw.counters {
		if key < cutoff {
			delete(rw.counters, key)
		}
	}
}

func (rw *requestWindow) snapshot() map[string]map[string]int {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.prune(time.Now())
	agg := make(map[string]map[string]int)
	for _, bucket := range rw.counters {
		for endpoint, outcomes := range bucket {
			if agg[endpoint] == nil {
				agg[endpoint] = make(map[string]int)
			}
			for outcome, count := range outcomes {
				agg[endpoint][outcome] += count
			}
		}
	}
	return agg
}

// metricsSummaryResponse is the JSON aggregated-counters view of request
// outcomes, keyed by endpoint and outcome, over a trailing window.
type metricsSummaryResponse struct {
	WindowSeconds int                       `json:"windowSeconds"`
	GeneratedAt   time.Time                 `json:"generatedAt"`
	Counters      map[string]map[string]int `json:"counters"`
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsSummaryResponse{
		WindowSeconds: int(s.window.window.Seconds()),
		GeneratedAt:   time.Now(),
		Counters:      s.window.snapshot(),
	})
}
