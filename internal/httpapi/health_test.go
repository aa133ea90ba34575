package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth_HealthyWhenNoDegradedSources(t *testing.T) {
	srv, deps := newTestServer(t)
	_, err := deps.tracker.RecordAttempt(context.Background(), "a", true)
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, "healthy", resp.Checks["resultCache"].Status)
	assert.Equal(t, "healthy", resp.Checks["sourceHealth"].Status)
}

func TestHandleHealth_UnhealthyWhenAllSourcesFailing(t *testing.T) {
	srv, deps := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := deps.tracker.RecordAttempt(ctx, "flaky", false)
		require.NoError(t, err)
	}

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Checks["sourceHealth"].Status)
}

func TestDowngrade_PicksTheWorseStatus(t *testing.T) {
	assert.Equal(t, "degraded", downgrade("healthy", "degraded"))
	assert.Equal(t, "unhealthy", downgrade("degraded", "unhealthy"))
	assert.Equal(t, "unhealthy", downgrade("unhealthy", "healthy"))
	assert.Equal(t, "healthy", downgrade("healthy", "healthy"))
}
