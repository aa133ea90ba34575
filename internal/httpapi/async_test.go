package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCompileAsync_AcceptsAndResultBecomesAvailable(t *testing.T) {
	srv, _ := newTestServer(t)
	source := newSourceServer(t, "||a.com^\n")
	router := srv.Router()

	req := CompileRequest{Configuration: testConfiguration("async", source.URL)}
	rec := doJSON(t, router, http.MethodPost, "/compile/async", req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted AsyncAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RequestID)

	var last map[string]interface{}
	require.Eventually(t, func() bool {
		r := doJSON(t, router, http.MethodGet, "/queue/results/"+accepted.RequestID, nil)
		if r.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(r.Body.Bytes(), &last))
		return last["status"] == "complete"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "complete", last["status"])
	assert.NotNil(t, last["output"])
}

func TestHandleCompileAsync_MissingConfigurationIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/async", CompileRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueueResult_UnknownIDIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/queue/results/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCompileAsync_ServiceUnavailableWithoutCoordinator(t *testing.T) {
	srv := NewServer(Config{})
	req := CompileRequest{Configuration: testConfiguration("async", "http://unreachable.invalid")}
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/async", req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
