package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
)

// handleCompileAsync queues a compilation as a durable workflow instance
// and returns immediately with its id, rather than running the
// compilation inline.
func (s *Server) handleCompileAsync(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async compilation is not configured"})
		return
	}

	var req CompileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Configuration == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(model.NewConfigurationError("configuration is required")))
		return
	}
	if err := req.Configuration.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err))
		return
	}

	instanceID := workflow.NewInstanceID()
	params := workflow.CompilationParams{Configuration: req.Configuration, Prefetched: req.PreFetchedContent}

	go func() {
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.coordinator.Compile(ctx, instanceID, params); err != nil {
			s.logger.Warn("async compilation workflow failed", "instance", instanceID, "error", err)
		}
	}()

	s.window.record("/compile/async", "accepted")
	writeJSON(w, http.StatusAccepted, AsyncAcceptedResponse{RequestID: instanceID})
}

// handleQueueResult retrieves the durable outcome of a previously queued
// compilation by its instance id.
func (s *Server) handleQueueResult(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil || s.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async compilation is not configured"})
		return
	}

	requestID := mux.Vars(r)["requestId"]
	inst, err := s.engine.LoadInstance(r.Context(), requestID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if inst == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown request id"})
		return
	}

	switch inst.Status {
	case model.WorkflowComplete:
		record := inst.StepByName("update-metrics")
		if record == nil || !record.Succeeded() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "workflow completed without a compile result"})
			return
		}
		s.window.record("/queue/results", "success")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "complete", "requestId": requestID, "output": record.Output})
	case model.WorkflowErrored, model.WorkflowTerminated:
		s.window.record("/queue/results", "error")
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": string(inst.Status), "requestId": requestID, "error": inst.Error})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": string(inst.Status), "requestId": requestID, "progress": inst.Progress})
	}
}
