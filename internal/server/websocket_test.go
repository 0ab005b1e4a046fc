package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/hub"
)

func dialUpdates(t *testing.T, env *testEnv, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	tok, err := auth.CreateToken(account, "idk-1", env.tokenCfg)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/updates?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev hub.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestUpdates_SnapshotAndPingPong(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialUpdates(t, env, srv)
	snapshot := readEvent(t, conn)
	assert.Equal(t, "snapshot", snapshot.Event)
	assert.Nil(t, snapshot.Subscriber)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	pong := readEvent(t, conn)
	assert.Equal(t, "pong", pong.Type)
}

func TestUpdates_ReceivesWebhookEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialUpdates(t, env, srv)
	readEvent(t, conn)

	require.Eventually(t, func() bool { return env.hub.Count(account) == 1 }, 2*time.Second, 10*time.Millisecond)

	w, _ := env.do(t, http.MethodPost, "/webhook", map[string]any{"event": "subscribed", "account": account})
	require.Equal(t, http.StatusOK, w.Code)

	ev := readEvent(t, conn)
	assert.Equal(t, "subscriber", ev.Type)
	assert.Equal(t, "subscribed", ev.Event)
	require.NotNil(t, ev.Subscriber)
	assert.Equal(t, account, ev.Subscriber.Account)

	w, _ = env.do(t, http.MethodPost, "/webhook", map[string]any{"event": "unsubscribed", "account": account})
	require.Equal(t, http.StatusOK, w.Code)
	ev = readEvent(t, conn)
	assert.Equal(t, "unsubscribed", ev.Event)
	assert.Nil(t, ev.Subscriber)
}

func TestUpdates_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/updates", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
