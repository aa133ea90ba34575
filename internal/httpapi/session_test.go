package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/compile"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSession_WelcomeThenPingPong(t *testing.T) {
	apiSrv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(apiSrv.Router())
	t.Cleanup(httpSrv.Close)

	conn := dialSession(t, httpSrv)

	var welcome wsOutgoing
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "welcome", welcome.Type)

	require.NoError(t, conn.WriteJSON(wsIncoming{Type: "ping"}))
	var pong wsOutgoing
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Type)
}

func TestSession_CompileRunsToCompletion(t *testing.T) {
	apiSrv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(apiSrv.Router())
	t.Cleanup(httpSrv.Close)

	source := newSourceServer(t, "||a.com^\n")
	conn := dialSession(t, httpSrv)

	var welcome wsOutgoing
	require.NoError(t, conn.ReadJSON(&welcome))

	req := &CompileRequest{Configuration: testConfiguration("ws", source.URL)}
	require.NoError(t, conn.WriteJSON(wsIncoming{Type: "compile", ID: "job-1", Request: req}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sawStarted := false
	for {
		var msg wsOutgoing
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case "compile:started":
			sawStarted = true
		case "event":
			continue
		case "compile:complete":
			require.True(t, sawStarted)
			return
		case "compile:error":
			t.Fatalf("unexpected compile error: %v", msg.Payload)
		}
	}
}

func TestSession_RejectsCompileWithoutConfiguration(t *testing.T) {
	apiSrv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(apiSrv.Router())
	t.Cleanup(httpSrv.Close)

	conn := dialSession(t, httpSrv)
	var welcome wsOutgoing
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(wsIncoming{Type: "compile", ID: "bad"}))
	var msg wsOutgoing
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "bad", msg.ID)
}
