package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// sseCollector is a diagnostics.Collector that both retains events (so
// Events() keeps working for any caller that wants the full trace) and
// pushes each one onto a buffered channel as it arrives, narrowed to a
// single-reader per-compile stream rather than a multi-subscriber
// broadcast.
type sseCollector struct {
	mu     sync.Mutex
	events []model.DiagnosticEvent
	ch     chan model.DiagnosticEvent
}

func newSSECollector() *sseCollector {
	return &sseCollector{ch: make(chan model.DiagnosticEvent, 64)}
}

func (c *sseCollector) Append(event model.DiagnosticEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	select {
	case c.ch <- event:
	default:
		// Backpressure: the event is still retained in Events(), only
		// the live push is dropped.
	}
}

func (c *sseCollector) Events() []model.DiagnosticEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.DiagnosticEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *sseCollector) Chan() <-chan model.DiagnosticEvent {
	return c.ch
}

func (c *sseCollector) Close() {
	close(c.ch)
}

// sseEventName maps a diagnostic event's category/variant to the named SSE
// event this system's external interface documents. Anything outside the
// download/transform start-complete pairs is surfaced as a generic
// "diagnostic" event rather than inventing a name the interface doesn't
// promise.
func sseEventName(event model.DiagnosticEvent) string {
	switch {
	case event.Category == model.CategoryDownload && event.Variant == model.VariantOperationStart:
		return "source:start"
	case event.Category == model.CategoryDownload && event.Variant == model.VariantOperationComplete:
		return "source:complete"
	case event.Category == model.CategoryDownload && event.Variant == model.VariantOperationError:
		return "source:error"
	case event.Category == model.CategoryTransform && event.Variant == model.VariantOperationStart:
		return "transformation:start"
	case event.Category == model.CategoryTransform && event.Variant == model.VariantOperationComplete:
		return "transformation:complete"
	default:
		return "diagnostic"
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (s *Server) handleCompileStream(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Configuration == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(model.NewConfigurationError("configuration is required")))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	collector := newSSECollector()
	outcomeCh := make(chan compileOutcome, 1)
	errCh := make(chan error, 1)

	go func() {
		outcome, err := s.runCompile(r.Context(), req, collector)
		if err != nil {
			errCh <- err
		} else {
			outcomeCh <- outcome
		}
		collector.Close()
	}()

	sourceTotal := len(req.Configuration.Sources)
	sourcesDone := 0

	for event := range collector.Chan() {
		name := sseEventName(event)
		writeSSE(w, flusher, name, event)
		if name == "source:complete" || name == "source:error" {
			sourcesDone++
			writeSSE(w, flusher, "progress", map[string]interface{}{
				"current": sourcesDone,
				"total":   sourceTotal,
			})
		}
	}

	select {
	case outcome := <-outcomeCh:
		s.window.record("/compile/stream", "success")
		writeSSE(w, flusher, "result", responseFromResult(outcome.result))
		writeSSE(w, flusher, "done", map[string]interface{}{})
	case err := <-errCh:
		s.window.record("/compile/stream", "error")
		writeSSE(w, flusher, "error", map[string]string{"message": err.Error()})
	}
}
