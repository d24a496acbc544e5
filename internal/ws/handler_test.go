package ws

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/auth"
	"energysense/internal/model"
)

// testAuth bootstraps a service with the default admin and returns a
// token for it.
func testAuth(t *testing.T) (*auth.Service, string) {
	t.Helper()
	users, err := auth.LoadUsers(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)
	tokens := auth.NewTokens("test-secret", 0)

	admin, ok := users.Get(auth.DefaultAdminUsername)
	require.True(t, ok)
	token, err := tokens.Issue(admin)
	require.NoError(t, err)

	return auth.NewService(users, tokens, nil), token
}

// dialHandler serves the handler and opens a stream connection with the
// given token.
func dialHandler(t *testing.T, handler *Handler, token string) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/dashboard/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

// readJSON reads the next envelope from the connection.
func readJSON(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestHandler_StreamsInitialSnapshot(t *testing.T) {
	svc, token := testAuth(t)
	hub := NewHub(nil)
	snapshot := func() any {
		return map[string]any{"org_id": "org_campus", "org_name": "CIT Campus"}
	}
	handler := NewHandler(hub, svc, snapshot, nil)

	conn, cleanup := dialHandler(t, handler, token)
	defer cleanup()

	env := readJSON(t, conn)
	assert.Equal(t, TypeDashboardUpdate, env.Type)

	var p map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "org_campus", p["org_id"])
}

func TestHandler_BroadcastsPipelineEvents(t *testing.T) {
	svc, token := testAuth(t)
	hub := NewHub(nil)
	bridge := NewBridge(hub, nil)
	handler := NewHandler(hub, svc, func() any { return map[string]any{} }, nil)

	conn, cleanup := dialHandler(t, handler, token)
	defer cleanup()

	// The snapshot arrives after registration, so once it is read the
	// client sees every broadcast.
	readJSON(t, conn)

	bridge.OnAlert(model.Alert{ID: "al-1", ZoneID: "block_a", Severity: model.SeverityHigh})

	env := readJSON(t, conn)
	assert.Equal(t, TypeAlertNew, env.Type)

	var p model.Alert
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "al-1", p.ID)
}

func TestHandler_NoSnapshotStreamsBroadcastsOnly(t *testing.T) {
	svc, token := testAuth(t)
	hub := NewHub(nil)
	bridge := NewBridge(hub, nil)
	handler := NewHandler(hub, svc, nil, nil)

	conn, cleanup := dialHandler(t, handler, token)
	defer cleanup()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	bridge.DashboardUpdate(map[string]any{"org_id": "org_campus"})

	env := readJSON(t, conn)
	assert.Equal(t, TypeDashboardUpdate, env.Type)
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	svc, _ := testAuth(t)
	handler := NewHandler(NewHub(nil), svc, nil, nil)

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/dashboard/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, 401, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Invalid token")
}

func TestHandler_RejectsGarbageToken(t *testing.T) {
	svc, _ := testAuth(t)
	handler := NewHandler(NewHub(nil), svc, nil, nil)

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/dashboard/stream?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, 401, resp.StatusCode)
}

func TestHandler_RejectsUnknownSubject(t *testing.T) {
	svc, _ := testAuth(t)
	ghost, err := auth.NewTokens("test-secret", 0).Issue(auth.User{Username: "ghost"})
	require.NoError(t, err)
	handler := NewHandler(NewHub(nil), svc, nil, nil)

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/dashboard/stream?token=" + ghost
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, 401, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "User not found")
}

func TestHandler_ClientFramesAreIgnored(t *testing.T) {
	svc, token := testAuth(t)
	hub := NewHub(nil)
	bridge := NewBridge(hub, nil)
	handler := NewHandler(hub, svc, func() any { return map[string]any{} }, nil)

	conn, cleanup := dialHandler(t, handler, token)
	defer cleanup()

	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and still receives broadcasts.
	bridge.OnAlert(model.Alert{ID: "al-2", ZoneID: "block_b"})
	env := readJSON(t, conn)
	assert.Equal(t, TypeAlertNew, env.Type)
}

func TestHandler_UnregistersOnClose(t *testing.T) {
	svc, token := testAuth(t)
	hub := NewHub(nil)
	handler := NewHandler(hub, svc, func() any { return map[string]any{} }, nil)

	conn, cleanup := dialHandler(t, handler, token)
	defer cleanup()

	readJSON(t, conn)
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
