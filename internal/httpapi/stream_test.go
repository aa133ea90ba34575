package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func TestHandleCompileStream_EmitsSourceAndResultEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	source := newSourceServer(t, "||a.com^\n")

	req := CompileRequest{Configuration: testConfiguration("stream", source.URL)}
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/stream", req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: source:start")
	assert.Contains(t, body, "event: source:complete")
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "event: done")
}

func TestHandleCompileStream_MissingConfigurationIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/stream", CompileRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEEventName_MapsKnownCategoriesAndFallsBackToDiagnostic(t *testing.T) {
	cases := []struct {
		name     string
		category model.EventCategory
		variant  model.EventVariant
		want     string
	}{
		{"download start", model.CategoryDownload, model.VariantOperationStart, "source:start"},
		{"download complete", model.CategoryDownload, model.VariantOperationComplete, "source:complete"},
		{"download error", model.CategoryDownload, model.VariantOperationError, "source:error"},
		{"transform start", model.CategoryTransform, model.VariantOperationStart, "transformation:start"},
		{"transform complete", model.CategoryTransform, model.VariantOperationComplete, "transformation:complete"},
		{"unrelated falls back", model.CategoryCache, model.VariantCacheOp, "diagnostic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sseEventName(model.DiagnosticEvent{Category: tc.category, Variant: tc.variant})
			assert.Equal(t, tc.want, got)
		})
	}
}
