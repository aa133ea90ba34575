package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckResult, 2)

	status := "healthy"

	if s.cache != nil {
		checks["resultCache"] = CheckResult{Status: "healthy"}
	}

	if s.tracker != nil {
		records, err := s.tracker.AllHealthRecords(r.Context())
		if err != nil {
			checks["sourceHealth"] = CheckResult{Status: "unhealthy", Message: err.Error()}
			status = "degraded"
		} else {
			unhealthy := 0
			for _, rec := range records {
				if rec.Classification == "unhealthy" {
					unhealthy++
				}
			}
			switch {
			case unhealthy == 0:
				checks["sourceHealth"] = CheckResult{Status: "healthy"}
			case unhealthy < len(records):
				checks["sourceHealth"] = CheckResult{Status: "degraded"}
				status = downgrade(status, "degraded")
			default:
				checks["sourceHealth"] = CheckResult{Status: "unhealthy"}
				status = downgrade(status, "unhealthy")
			}
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: Version,
		Uptime:  time.Since(s.startedAt).String(),
		Checks:  checks,
	})
}

// downgrade returns the worse of current and candidate, where
// unhealthy > degraded > healthy.
func downgrade(current, candidate string) string {
	rank := map[string]int{"healthy": 0, "degraded": 1, "unhealthy": 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}
