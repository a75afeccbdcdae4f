package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"basewar/server"
	"basewar/server/internal/geo"
	"basewar/server/internal/net/proto"
	"basewar/server/internal/store"
)

type testFrame struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

func newTestServer(t *testing.T, cfg HandlerConfig) (*server.Hub, *store.Memory, *httptest.Server) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutUser(store.User{ID: "b", Name: "Bob", Money: 100})
	mem.PutBase(store.Base{ID: "base-1", Name: "Fort", OwnerID: "a", Location: geo.Point{Lon: 6.6323, Lat: 46.5197}})

	hub := server.NewHub(mem, server.DefaultHubConfig())
	handler := NewHandler(hub, cfg)
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)
	return hub, mem, srv
}

func dial(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srvURL, "http"), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var frame testFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("invalid frame %s: %v", payload, err)
	}
	return frame
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}
}

func TestSessionTracksUserAndFlushesOnClose(t *testing.T) {
	hub, mem, srv := newTestServer(t, HandlerConfig{})
	conn := dial(t, srv.URL)

	send(t, conn, `{"command":"updateLocation","location":{"coordinates":[6.6323,46.5197]},"userId":"b"}`)
	waitFor(t, "user to be tracked", func() bool { return len(hub.Snapshot().Users) == 1 })

	hub.Tick(context.Background(), 1)
	frame := readFrame(t, conn)
	if frame.Command != proto.CommandUpdateUser {
		t.Fatalf("expected updateUser, got %s", frame.Command)
	}
	var params proto.UpdateUserParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		t.Fatalf("invalid params: %v", err)
	}
	if params.Money != 110 || params.Income != 10 {
		t.Fatalf("unexpected update %+v", params)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "balance flush", func() bool {
		user, err := mem.UserByID(context.Background(), "b")
		return err == nil && user.Money == 110
	})
	if got := len(hub.Snapshot().Sessions); got != 0 {
		t.Fatalf("expected session to be removed, got %d", got)
	}
}

func TestUnknownUserGetsErrorFrame(t *testing.T) {
	_, _, srv := newTestServer(t, HandlerConfig{})
	conn := dial(t, srv.URL)

	send(t, conn, `{"command":"updateLocation","location":{"coordinates":[0,0]},"userId":"ghost"}`)
	frame := readFrame(t, conn)
	if frame.Command != proto.CommandError {
		t.Fatalf("expected error frame, got %s", frame.Command)
	}
}

func TestMalformedFramesAreDroppedSilently(t *testing.T) {
	hub, _, srv := newTestServer(t, HandlerConfig{})
	conn := dial(t, srv.URL)

	send(t, conn, `{"command":`)
	send(t, conn, `{"command":"dance"}`)
	send(t, conn, `{"command":"updateLocation","location":{"coordinates":[0,0]},"userId":"ghost"}`)

	// The only reply belongs to the last frame.
	if frame := readFrame(t, conn); frame.Command != proto.CommandError {
		t.Fatalf("expected error frame, got %s", frame.Command)
	}
	if got := len(hub.Snapshot().Sessions); got != 1 {
		t.Fatalf("expected connection to stay open, got %d sessions", got)
	}
}

func TestRateLimitedFramesAreDropped(t *testing.T) {
	_, _, srv := newTestServer(t, HandlerConfig{MessageRate: 0.001, MessageBurst: 1})
	conn := dial(t, srv.URL)

	frame := `{"command":"updateLocation","location":{"coordinates":[0,0]},"userId":"ghost"}`
	send(t, conn, frame)
	send(t, conn, frame)

	if got := readFrame(t, conn); got.Command != proto.CommandError {
		t.Fatalf("expected error frame, got %s", got.Command)
	}
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, payload, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the second frame to be dropped, got %s", payload)
	}
}
