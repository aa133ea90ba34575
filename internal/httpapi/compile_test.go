package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleCompile_SuccessIsCacheMissThenHit(t *testing.T) {
	srv, _ := newTestServer(t)
	source := newSourceServer(t, "||a.com^\n")
	router := srv.Router()

	req := CompileRequest{Configuration: testConfiguration("sync", source.URL)}

	rec := doJSON(t, router, http.MethodPost, "/compile", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	var resp CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"||a.com^"}, resp.Rules)

	rec2 := doJSON(t, router, http.MethodPost, "/compile", req)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "HIT", rec2.Header().Get("X-Cache"))
}

func TestHandleCompile_MissingConfigurationIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile", CompileRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompile_InvalidConfigurationIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile", map[string]interface{}{
		"configuration": map[string]interface{}{"name": "no-sources"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompileBatch_AggregatesPerItemOutcomes(t *testing.T) {
	srv, _ := newTestServer(t)
	srvA := newSourceServer(t, "||a.com^\n")
	srvB := newSourceServer(t, "||b.com^\n")

	batch := BatchRequest{Requests: []BatchRequestItem{
		{ID: "one", Configuration: testConfiguration("one", srvA.URL)},
		{ID: "two", Configuration: testConfiguration("two", srvB.URL)},
	}}

	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/batch", batch)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "one", resp.Results[0].ID)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, []string{"||b.com^"}, resp.Results[1].Rules)
}

func TestHandleCompileBatch_RejectsDuplicateIDs(t *testing.T) {
	srv, _ := newTestServer(t)
	source := newSourceServer(t, "||a.com^\n")

	batch := BatchRequest{Requests: []BatchRequestItem{
		{ID: "dup", Configuration: testConfiguration("one", source.URL)},
		{ID: "dup", Configuration: testConfiguration("two", source.URL)},
	}}

	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/batch", batch)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompileBatch_RejectsOversizedBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	source := newSourceServer(t, "||a.com^\n")

	items := make([]BatchRequestItem, maxBatchSize+1)
	for i := range items {
		items[i] = BatchRequestItem{ID: string(rune('a' + i)), Configuration: testConfiguration("cfg", source.URL)}
	}

	rec := doJSON(t, srv.Router(), http.MethodPost, "/compile/batch", BatchRequest{Requests: items})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
