package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diveops/internal/config"
	"diveops/pkg/contracts/events"
)

func TestNewClientDefaults(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	conn := newFakeConn()

	client := NewClient(hub, conn, ClientOptions{Subject: "sess-1", PingPeriod: time.Minute, PongWait: time.Second})

	assert.NotEmpty(t, client.ID())
	assert.Equal(t, "10.0.0.7:51200", client.remoteAddr)
	assert.Equal(t, sendBuffer, cap(client.send))
	assert.Less(t, client.pingPeriod, client.pongWait, "ping period is clamped below pong wait")
}

func TestClientWants(t *testing.T) {
	scoped := &Client{subject: "sess-1"}
	all := &Client{}

	assert.True(t, scoped.wants("sess-1"))
	assert.True(t, scoped.wants(""))
	assert.False(t, scoped.wants("sess-2"))
	assert.True(t, all.wants("sess-2"))
}

func TestReadPumpUnregistersOnError(t *testing.T) {
	hub := startHub(t)
	conn := newFakeConn()
	conn.reads = []frame{{Type: gorilla.TextMessage, Data: []byte(`{"type":"heartbeat"}`)}}

	client := NewClient(hub, conn, ClientOptions{Logger: testLogger()})
	require.True(t, hub.Register(client))
	recv(t, client)

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.True(t, conn.IsClosed())
	assert.Equal(t, int64(maxMessageSize), conn.readLimit)
	assert.NotNil(t, conn.pongHandler)
	assert.Zero(t, hub.ClientCount())
}

func TestWritePumpFlushesAndCloses(t *testing.T) {
	conn := newFakeConn()
	client := NewClient(NewHub(testLogger(), nil), conn, ClientOptions{Logger: testLogger()})

	client.send <- []byte(`{"type":"wizard:snapshot"}`)
	close(client.send)

	done := make(chan struct{})
	go func() {
		client.WritePump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not exit")
	}

	written := conn.Written()
	require.Len(t, written, 2)
	assert.Equal(t, gorilla.TextMessage, written[0].Type)
	assert.JSONEq(t, `{"type":"wizard:snapshot"}`, string(written[0].Data))
	assert.Equal(t, gorilla.CloseMessage, written[1].Type)
	assert.True(t, conn.IsClosed())
}

func TestServeWSScopesClientToSession(t *testing.T) {
	hub := startHub(t)
	cfg := config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      time.Second,
		PongWait:        2 * time.Second,
	}
	srv := httptest.NewServer(ServeWS(hub, NewUpgrader(cfg), cfg, testLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=sess-9"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var greeting events.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, events.MessageTypeConnection, greeting.Type)
	assert.Equal(t, "sess-9", greeting.Subject)

	hub.BroadcastUpdate(events.MessageTypeWizardSnapshot, "other", events.ActionUpdated, nil)
	hub.BroadcastUpdate(events.MessageTypeWizardSnapshot, "sess-9", events.ActionUpdated, map[string]any{"progress": 50})

	var msg events.WebSocketMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "sess-9", msg.Subject)
	assert.Equal(t, events.MessageTypeWizardSnapshot, msg.Type)
}

func TestServeWSRejectsPlainHTTP(t *testing.T) {
	hub := startHub(t)
	cfg := config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}

	rec := httptest.NewRecorder()
	ServeWS(hub, NewUpgrader(cfg), cfg, testLogger())(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, hub.ClientCount())
}
