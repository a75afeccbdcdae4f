package net

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"basewar/server"
	"basewar/server/internal/geo"
	"basewar/server/internal/store"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
)

func newTestHandler(t *testing.T) (*server.Hub, *logging.Metrics, *httptest.Server) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutUser(store.User{ID: "b", Money: 5})
	mem.PutBase(store.Base{ID: "base-1", Name: "Fort", OwnerID: "a", Location: geo.Point{Lon: 1, Lat: 1}})

	metrics := &logging.Metrics{}
	cfg := server.DefaultHubConfig()
	cfg.Metrics = telemetry.WrapMetrics(metrics)
	hub := server.NewHub(mem, cfg)

	srv := httptest.NewServer(NewHTTPHandler(hub, HTTPHandlerConfig{Metrics: metrics, TickInterval: time.Second}))
	t.Cleanup(srv.Close)
	return hub, metrics, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, _, srv := newTestHandler(t)

	resp, err := nethttp.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != nethttp.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestDiagnosticsReportsHubAndTelemetry(t *testing.T) {
	hub, _, srv := newTestHandler(t)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"updateLocation","location":{"coordinates":[1,1]},"userId":"b"}`))
	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Snapshot().Users) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Tick(context.Background(), 7)

	res, err := nethttp.Get(srv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()

	var payload diagnosticsResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("invalid diagnostics payload: %v", err)
	}
	if payload.Status != "ok" || payload.TickIntervalMillis != 1000 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Hub.Tick != 7 || len(payload.Hub.Users) != 1 || len(payload.Hub.ActiveBases) != 1 {
		t.Fatalf("unexpected hub snapshot %+v", payload.Hub)
	}
	if payload.Telemetry[telemetry.MetricActiveBases] != 1 {
		t.Fatalf("expected active base gauge, got %v", payload.Telemetry)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	_, _, srv := newTestHandler(t)

	resp, err := nethttp.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
