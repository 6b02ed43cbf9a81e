package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diveops/internal/config"
	"diveops/pkg/contracts/events"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Telemetry.MetricExporter = "none"
	cfg.Security.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewApplication(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func call(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestNewApplicationRequiresConfig(t *testing.T) {
	_, err := NewApplication(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNewApplicationRejectsUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "postgres"

	_, err := NewApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.ErrorContains(t, err, "unknown store driver")
}

func TestWizardFlowOverHTTP(t *testing.T) {
	a := newTestApp(t)
	h := a.Router

	rec, snap := call(t, h, http.MethodPost, "/api/wizard/sessions", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID := snap["session_id"].(string)
	assert.EqualValues(t, 0, snap["current_step_index"])

	rec, snap = call(t, h, http.MethodPost, "/api/wizard/sessions/"+sessionID+"/steps/operation/complete",
		map[string]any{"data": map[string]any{"name": "Jetty pile survey", "start_date": "2026-06-01"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	recordID, _ := snap["record_id"].(string)
	require.NotEmpty(t, recordID)

	rec, record := call(t, h, http.MethodGet, "/api/records/"+recordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jetty pile survey", record["name"])

	rec, list := call(t, h, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, list["count"])

	rec, _ = call(t, h, http.MethodPost, "/api/records/"+recordID+"/documents/risk_assessment/sign", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = call(t, h, http.MethodGet, "/api/wizard/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, h, http.MethodDelete, "/api/wizard/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, problem := call(t, h, http.MethodGet, "/api/wizard/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", problem["error_code"])
}

func TestClearingSiteOverHTTP(t *testing.T) {
	cfg := testConfig()
	cfg.Wizard.AutoSaveDelay = 20 * time.Millisecond
	cfg.Wizard.AutoAdvanceDelay = 10 * time.Millisecond
	a, err := NewApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	h := a.Router

	rec, snap := call(t, h, http.MethodPost, "/api/wizard/sessions", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionPath := "/api/wizard/sessions/" + snap["session_id"].(string)

	rec, snap = call(t, h, http.MethodPost, sessionPath+"/steps/operation/complete",
		map[string]any{"data": map[string]any{"name": "Culvert clearance"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	recordPath := "/api/records/" + snap["record_id"].(string)

	siteStatus := func() any {
		_, s := call(t, h, http.MethodGet, sessionPath, nil)
		return s["steps"].([]any)[1].(map[string]any)["status"]
	}

	rec, _ = call(t, h, http.MethodPost, sessionPath+"/steps/site/complete",
		map[string]any{"data": map[string]any{"site_id": "site-3"}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return siteStatus() == "completed" }, 2*time.Second, 10*time.Millisecond)

	rec, _ = call(t, h, http.MethodPost, sessionPath+"/steps/site/complete",
		map[string]any{"data": map[string]any{"site_id": nil}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return siteStatus() == "active" }, 2*time.Second, 10*time.Millisecond)

	_, record := call(t, h, http.MethodGet, recordPath, nil)
	assert.Equal(t, "", record["site_id"])
	assert.Equal(t, "Culvert clearance", record["name"])
}

func TestProblemResponses(t *testing.T) {
	a := newTestApp(t)

	rec, problem := call(t, a.Router, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/errors/not-found", problem["type"])

	req := httptest.NewRequest(http.MethodPost, "/api/wizard/sessions", bytes.NewBufferString("record_id=op-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rec, _ = call(t, a.Router, http.MethodPost, "/api/wizard/sessions", map[string]any{"record_id": "op-missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, a.Router, http.MethodPost, "/api/records/op-1/documents/waiver/sign", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	a := newTestApp(t)

	rec, body := call(t, a.Router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec, _ = call(t, a.Router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no prometheus exporter configured")
}

func TestWebSocketReceivesSessionSnapshots(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Start(context.Background())
	require.NoError(t, err)
	base := fmt.Sprintf("127.0.0.1:%d", a.Addr().(*net.TCPAddr).Port)

	resp, err := http.Post("http://"+base+"/api/wizard/sessions", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := snap["session_id"].(string)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+base+"/ws?session="+sessionID, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var greeting events.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, events.MessageTypeConnection, greeting.Type)

	resp, err = http.Post("http://"+base+"/api/wizard/sessions/"+sessionID+"/steps/operation/complete",
		"application/json", bytes.NewBufferString(`{"data":{"name":"Outfall inspection"}}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	for {
		var msg events.WebSocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != events.MessageTypeWizardSnapshot {
			continue
		}
		assert.Equal(t, sessionID, msg.Subject)
		assert.Equal(t, events.ActionUpdated, msg.Action)
		data := msg.Data.(map[string]any)
		if data["record_id"] != nil && data["record_id"] != "" {
			break
		}
	}

	require.NoError(t, a.Stop(context.Background()))
	assert.NoError(t, a.Stop(context.Background()))
}
