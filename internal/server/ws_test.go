package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) serverEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev serverEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebSocketMessageRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	if err := conn.WriteJSON(clientEvent{Type: "message", Text: "привет"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != "message" || ev.Text != "echo: привет" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebSocketVoiceModeFlow(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	if err := conn.WriteJSON(clientEvent{Type: "mode", IsVoiceMode: true}); err != nil {
		t.Fatalf("write mode: %v", err)
	}
	if err := conn.WriteJSON(clientEvent{Type: "message", Text: "привет"}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if err := conn.WriteJSON(clientEvent{Type: "message", Text: "пока"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != "message" || ev.Text != "echo: привет" {
		t.Fatalf("first event = %+v", ev)
	}
	ev = readEvent(t, conn)
	if ev.Type != "audio" || !strings.HasPrefix(ev.URL, "/audio/") || !strings.Contains(ev.URL, "?ts=") {
		t.Fatalf("audio event = %+v", ev)
	}

	// The second answer is gated until playback is acknowledged.
	if err := conn.WriteJSON(clientEvent{Type: "audio-ended"}); err != nil {
		t.Fatalf("write audio-ended: %v", err)
	}
	ev = readEvent(t, conn)
	if ev.Type != "message" || ev.Text != "echo: пока" {
		t.Fatalf("gated event = %+v", ev)
	}
}

func TestWebSocketDisconnectDestroysSession(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	if err := conn.WriteJSON(clientEvent{Type: "message", Text: "привет"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn)
	if f.manager.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", f.manager.Len())
	}

	conn.Close()
	waitFor(t, func() bool { return f.manager.Len() == 0 }, "session teardown")
}

func TestWebSocketIgnoresMalformedFrames(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(clientEvent{Type: "message", Text: "привет"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != "message" || ev.Text != "echo: привет" {
		t.Fatalf("event = %+v", ev)
	}
}
