package daemon

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mirrorcast/internal/api"
	"mirrorcast/internal/coordinator"
	"mirrorcast/internal/logging"
	"mirrorcast/internal/session"
)

func TestEventHubPublishesRelayRestart(t *testing.T) {
	hub := &eventHub{hub: api.NewHub(func() api.SessionStatus {
		return api.SessionStatus{Channel: "someone", State: "relaying"}
	}, logging.NewNop())}
	t.Cleanup(hub.close)
	srv := httptest.NewServer(hub.hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	read := func() api.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt api.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return evt
	}
	if first := read(); first.Type != api.EventSnapshot {
		t.Fatalf("expected snapshot first, got %+v", first)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sess := session.New(session.SourceSnapshot{Channel: "someone"}, time.Now())
	if err := sess.Advance(session.StateResolving); err != nil {
		t.Fatal(err)
	}
	if err := sess.Advance(session.StateRelaying); err != nil {
		t.Fatal(err)
	}
	sess.RelayRestarts = 1
	hub.sessionChanged(coordinator.Change{Session: *sess, From: session.StateRelaying, At: time.Now()})

	evt := read()
	if evt.Type != api.EventSession || evt.From != string(session.StateRelaying) || evt.Status == nil {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Status.State != string(session.StateRelaying) || evt.Status.RelayRestarts != 1 || evt.SessionID != sess.ID {
		t.Fatalf("restart not reported: %+v", evt.Status)
	}
}
