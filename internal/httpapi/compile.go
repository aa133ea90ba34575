package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vitaliisemenov/adblock-compiler/internal/analytics"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Configuration == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(model.NewConfigurationError("configuration is required")))
		s.window.record("/compile", "bad_request")
		return
	}

	outcome, err := s.runCompile(r.Context(), req, nil)
	if err != nil {
		s.writeCompileError(w, err, "/compile")
		return
	}

	if outcome.cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if outcome.deduplicated {
		w.Header().Set("X-Request-Deduplication", "HIT")
	}

	s.emitAnalytics(req.Configuration.Name, outcome)
	s.window.record("/compile", "success")
	writeJSON(w, http.StatusOK, responseFromResult(outcome.result))
}

func (s *Server) handleCompileBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Requests) == 0 || len(req.Requests) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("batch must contain between 1 and %d items", maxBatchSize),
		})
		s.window.record("/compile/batch", "bad_request")
		return
	}

	seen := make(map[string]bool, len(req.Requests))
	for _, item := range req.Requests {
		if item.ID == "" || seen[item.ID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch items must carry unique, non-empty ids"})
			s.window.record("/compile/batch", "bad_request")
			return
		}
		seen[item.ID] = true
	}

	results := make([]BatchResultItem, len(req.Requests))
	for i, item := range req.Requests {
		if item.Configuration == nil {
			results[i] = BatchResultItem{ID: item.ID, CompileResponse: errorResponse(model.NewConfigurationError("configuration is required"))}
			continue
		}
		outcome, err := s.runCompile(r.Context(), CompileRequest{
			Configuration:     item.Configuration,
			PreFetchedContent: item.PreFetchedContent,
			Benchmark:         item.Benchmark,
		}, nil)
		if err != nil {
			results[i] = BatchResultItem{ID: item.ID, CompileResponse: errorResponse(err)}
			continue
		}
		results[i] = BatchResultItem{ID: item.ID, CompileResponse: responseFromResult(outcome.result)}
	}

	s.window.record("/compile/batch", "success")
	writeJSON(w, http.StatusOK, BatchResponse{Success: true, Results: results})
}

// writeCompileError maps err's behavioral kind to an HTTP status, per the
// error handling design: configuration/source errors are caller mistakes
// (400), everything else is an internal failure (500).
func (s *Server) writeCompileError(w http.ResponseWriter, err error, endpoint string) {
	status := http.StatusInternalServerError
	if model.IsKind(err, model.KindConfiguration) || model.IsKind(err, model.KindSource) {
		status = http.StatusBadRequest
	}
	s.window.record(endpoint, "error")
	writeJSON(w, status, errorResponse(err))
}

func (s *Server) emitAnalytics(configName string, outcome compileOutcome) {
	if s.analytics == nil {
		return
	}
	s.analytics.Emit(analytics.Event{
		Name: "compile:completed",
		Attributes: map[string]interface{}{
			"configuration": configName,
			"rule_count":    outcome.result.RuleCount,
			"from_cache":    outcome.cacheHit,
			"deduplicated":  outcome.deduplicated,
		},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
