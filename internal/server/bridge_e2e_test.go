package server_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bridgesim/starbridge/internal/registry"
	"github.com/bridgesim/starbridge/internal/server"
)

// dialBridge connects a WebSocket client to the test server's /ws endpoint.
func dialBridge(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendEvent writes one envelope frame.
func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	env := server.Envelope{Event: event, Data: raw}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readEvent reads the next envelope frame with a short deadline.
func readEvent(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return env
}

// expectEvent reads the next frame and fails unless it carries the given
// event name.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()

	env := readEvent(t, conn)
	if env.Event != event {
		t.Fatalf("Expected event %q, got %q (payload %s)", event, env.Event, env.Data)
	}
	return env
}

// expectNothing asserts that no frame arrives within the wait window.
func expectNothing(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no event, got %s", raw)
	}
}

func decodeRoster(t *testing.T, env server.Envelope) map[string]registry.UserRecord {
	t.Helper()

	var roster map[string]registry.UserRecord
	if err := json.Unmarshal(env.Data, &roster); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	return roster
}

// Two crew members join in sequence; every client receives the growing
// roster after each join, the joiner included.
func TestJoinBroadcastsRoster(t *testing.T) {
	_, srv := newTestBridge(t)

	alpha := dialBridge(t, srv.URL)
	sendEvent(t, alpha, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})

	ack := expectEvent(t, alpha, server.EventJoined)
	var joined server.JoinedPayload
	if err := json.Unmarshal(ack.Data, &joined); err != nil {
		t.Fatalf("decode joined ack: %v", err)
	}
	if joined.SessionID != "s1" {
		t.Errorf("Expected ack for s1, got %q", joined.SessionID)
	}

	roster := decodeRoster(t, expectEvent(t, alpha, server.EventUpdateUsers))
	if len(roster) != 1 {
		t.Fatalf("Expected 1 roster entry, got %d", len(roster))
	}
	if roster["s1"] != (registry.UserRecord{Station: "helm", Name: "Han"}) {
		t.Errorf("Unexpected s1 record: %+v", roster["s1"])
	}

	beta := dialBridge(t, srv.URL)
	sendEvent(t, beta, server.EventJoin, server.JoinPayload{SessionID: "s2", Station: "engineering", Name: "Chewie"})

	expectEvent(t, beta, server.EventJoined)
	for _, conn := range []*websocket.Conn{alpha, beta} {
		roster := decodeRoster(t, expectEvent(t, conn, server.EventUpdateUsers))
		if len(roster) != 2 {
			t.Fatalf("Expected 2 roster entries, got %d", len(roster))
		}
		if roster["s1"].Station != "helm" || roster["s2"].Station != "engineering" {
			t.Errorf("Unexpected roster: %+v", roster)
		}
	}
}

// A join without a session id gets a server-assigned one.
func TestJoinAssignsSessionID(t *testing.T) {
	_, srv := newTestBridge(t)

	conn := dialBridge(t, srv.URL)
	sendEvent(t, conn, server.EventJoin, server.JoinPayload{Station: "science", Name: "Threepio"})

	ack := expectEvent(t, conn, server.EventJoined)
	var joined server.JoinedPayload
	if err := json.Unmarshal(ack.Data, &joined); err != nil {
		t.Fatalf("decode joined ack: %v", err)
	}
	if joined.SessionID == "" {
		t.Fatal("Expected a server-assigned session id")
	}

	roster := decodeRoster(t, expectEvent(t, conn, server.EventUpdateUsers))
	if _, ok := roster[joined.SessionID]; !ok {
		t.Errorf("Assigned session id %q missing from roster %+v", joined.SessionID, roster)
	}
}

// Re-joining with an existing session id overwrites the record without
// growing the roster.
func TestRejoinOverwrites(t *testing.T) {
	_, srv := newTestBridge(t)

	conn := dialBridge(t, srv.URL)
	sendEvent(t, conn, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})
	expectEvent(t, conn, server.EventJoined)
	expectEvent(t, conn, server.EventUpdateUsers)

	sendEvent(t, conn, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "weapons", Name: "Lando"})
	expectEvent(t, conn, server.EventJoined)

	roster := decodeRoster(t, expectEvent(t, conn, server.EventUpdateUsers))
	if len(roster) != 1 {
		t.Fatalf("Expected 1 roster entry after re-join, got %d", len(roster))
	}
	if roster["s1"] != (registry.UserRecord{Station: "weapons", Name: "Lando"}) {
		t.Errorf("Unexpected record after re-join: %+v", roster["s1"])
	}
}

// Two sessions with identical station and name remain separate entries.
func TestDuplicateIdentities(t *testing.T) {
	_, srv := newTestBridge(t)

	alpha := dialBridge(t, srv.URL)
	sendEvent(t, alpha, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})
	expectEvent(t, alpha, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)

	beta := dialBridge(t, srv.URL)
	sendEvent(t, beta, server.EventJoin, server.JoinPayload{SessionID: "s2", Station: "helm", Name: "Han"})
	expectEvent(t, beta, server.EventJoined)

	roster := decodeRoster(t, expectEvent(t, beta, server.EventUpdateUsers))
	if len(roster) != 2 {
		t.Fatalf("Expected 2 roster entries, got %d", len(roster))
	}
}

// A power update reaches every client including the sender, with the
// payload unchanged.
func TestPowerUpdateEcho(t *testing.T) {
	_, srv := newTestBridge(t)

	alpha := dialBridge(t, srv.URL)
	sendEvent(t, alpha, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})
	expectEvent(t, alpha, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)

	beta := dialBridge(t, srv.URL)
	sendEvent(t, beta, server.EventJoin, server.JoinPayload{SessionID: "s2", Station: "engineering", Name: "Chewie"})
	expectEvent(t, beta, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)
	expectEvent(t, beta, server.EventUpdateUsers)

	sendEvent(t, alpha, server.EventPowerUpdate, map[string]float64{"shields": 50})

	for _, conn := range []*websocket.Conn{alpha, beta} {
		env := expectEvent(t, conn, server.EventPowerUpdate)

		var levels map[string]float64
		if err := json.Unmarshal(env.Data, &levels); err != nil {
			t.Fatalf("decode power update: %v", err)
		}
		if len(levels) != 1 || levels["shields"] != 50 {
			t.Errorf("Expected {shields: 50} unchanged, got %v", levels)
		}
	}
}

// Power updates work before any join; the relay has no registry dependency.
func TestPowerUpdateBeforeJoin(t *testing.T) {
	_, srv := newTestBridge(t)

	conn := dialBridge(t, srv.URL)
	sendEvent(t, conn, server.EventPowerUpdate, map[string]float64{"engines": 75})

	env := expectEvent(t, conn, server.EventPowerUpdate)
	var levels map[string]float64
	if err := json.Unmarshal(env.Data, &levels); err != nil {
		t.Fatalf("decode power update: %v", err)
	}
	if levels["engines"] != 75 {
		t.Errorf("Expected engines 75, got %v", levels)
	}
}

// An out-of-range power update is rejected back to the sender only.
func TestInvalidPowerUpdateRejected(t *testing.T) {
	_, srv := newTestBridge(t)

	alpha := dialBridge(t, srv.URL)
	beta := dialBridge(t, srv.URL)
	// Make sure both connections are registered before sending.
	sendEvent(t, alpha, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})
	expectEvent(t, alpha, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)
	sendEvent(t, beta, server.EventJoin, server.JoinPayload{SessionID: "s2", Station: "science", Name: "Artoo"})
	expectEvent(t, beta, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)
	expectEvent(t, beta, server.EventUpdateUsers)

	sendEvent(t, alpha, server.EventPowerUpdate, map[string]float64{"shields": 200})

	env := expectEvent(t, alpha, server.EventError)
	var errPayload server.ErrorPayload
	if err := json.Unmarshal(env.Data, &errPayload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errPayload.Reason == "" {
		t.Error("Expected a non-empty rejection reason")
	}

	expectNothing(t, beta, 300*time.Millisecond)
}

// An unknown event name is answered with an error event and the connection
// stays usable.
func TestUnknownEventRejected(t *testing.T) {
	_, srv := newTestBridge(t)

	conn := dialBridge(t, srv.URL)
	sendEvent(t, conn, "self_destruct", map[string]string{"code": "000"})
	expectEvent(t, conn, server.EventError)

	// Connection still works afterwards.
	sendEvent(t, conn, server.EventPowerUpdate, map[string]float64{"shields": 10})
	expectEvent(t, conn, server.EventPowerUpdate)
}

// A malformed frame is answered with an error event without dropping the
// connection.
func TestMalformedFrameRejected(t *testing.T) {
	_, srv := newTestBridge(t)

	conn := dialBridge(t, srv.URL)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	expectEvent(t, conn, server.EventError)

	sendEvent(t, conn, server.EventPowerUpdate, map[string]float64{"shields": 10})
	expectEvent(t, conn, server.EventPowerUpdate)
}

// A disconnect removes the session from the registry and the remaining crew
// receive the pruned roster.
func TestDisconnectPrunesRoster(t *testing.T) {
	bridge, srv := newTestBridge(t)

	alpha := dialBridge(t, srv.URL)
	sendEvent(t, alpha, server.EventJoin, server.JoinPayload{SessionID: "s1", Station: "helm", Name: "Han"})
	expectEvent(t, alpha, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)

	beta := dialBridge(t, srv.URL)
	sendEvent(t, beta, server.EventJoin, server.JoinPayload{SessionID: "s2", Station: "engineering", Name: "Chewie"})
	expectEvent(t, beta, server.EventJoined)
	expectEvent(t, alpha, server.EventUpdateUsers)
	expectEvent(t, beta, server.EventUpdateUsers)

	if err := alpha.Close(); err != nil {
		t.Fatalf("close alpha: %v", err)
	}

	roster := decodeRoster(t, expectEvent(t, beta, server.EventUpdateUsers))
	if len(roster) != 1 {
		t.Fatalf("Expected 1 roster entry after disconnect, got %d", len(roster))
	}
	if _, ok := roster["s1"]; ok {
		t.Error("Expected s1 to be pruned from the roster")
	}

	if bridge.Hub().Registry().Count() != 1 {
		t.Errorf("Expected registry count 1, got %d", bridge.Hub().Registry().Count())
	}
}
