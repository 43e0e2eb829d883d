package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/config"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/logging"
)

// testHub returns a running hub fed by a registry holding "lamp" and "plug".
func testHub(t *testing.T) (*Hub, *device.Registry) {
	t.Helper()
	reg := device.NewRegistry()
	seedDevices(t, reg)

	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard(), reg)
	reg.AddReporter(hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, reg
}

type wsEvent struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

func nextQueued(t *testing.T, c *WSClient) wsEvent {
	t.Helper()
	select {
	case data := <-c.send:
		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a queued message")
		return wsEvent{}
	}
}

func assertNothingQueued(t *testing.T, c *WSClient) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

// subscribedClient registers a client following ids and consumes the
// subscribe response. The snapshot is returned.
func subscribedClient(t *testing.T, hub *Hub, ids ...string) (*WSClient, SnapshotPayload) {
	t.Helper()
	c := newWSClient(hub, nil)
	hub.Register(c)
	c.subscribe("1", WSSubscribePayload{DeviceIDs: ids})

	if resp := nextQueued(t, c); resp.Type != WSTypeResponse {
		t.Fatalf("first message type = %q, want response", resp.Type)
	}
	ev := nextQueued(t, c)
	if ev.EventType != EventDeviceSnapshot {
		t.Fatalf("second message event_type = %q, want %q", ev.EventType, EventDeviceSnapshot)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(ev.Payload, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return c, snap
}

func TestHub_SubscribeSendsSnapshot(t *testing.T) {
	hub, reg := testHub(t)
	reg.SetState("lamp", device.States{"on": true})

	_, snap := subscribedClient(t, hub, "lamp", "ghost")

	if snap.Version != reg.Version() {
		t.Errorf("snapshot version = %d, want %d", snap.Version, reg.Version())
	}
	if len(snap.States) != 1 || snap.States["lamp"]["on"] != true {
		t.Errorf("snapshot states = %v, want only lamp with on=true", snap.States)
	}

	_, all := subscribedClient(t, hub)
	if len(all.States) != 2 {
		t.Errorf("snapshot of all devices has %d entries, want 2", len(all.States))
	}
}

func TestHub_ReportsFilteredByDevice(t *testing.T) {
	hub, reg := testHub(t)
	c, _ := subscribedClient(t, hub, "lamp")

	reg.SetState("plug", device.States{"on": true})
	assertNothingQueued(t, c)

	reg.SetState("lamp", device.States{"on": true})
	ev := nextQueued(t, c)
	if ev.EventType != ChannelDeviceState {
		t.Fatalf("event_type = %q, want %q", ev.EventType, ChannelDeviceState)
	}
	var r device.Report
	if err := json.Unmarshal(ev.Payload, &r); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if r.DeviceID != "lamp" || r.Version != reg.Version() || r.States["on"] != true {
		t.Errorf("report = %+v, want lamp on=true at version %d", r, reg.Version())
	}
}

func TestHub_DropsReportsCoveredBySnapshot(t *testing.T) {
	hub, _ := testHub(t)
	c, snap := subscribedClient(t, hub)

	// A report still in delivery when the snapshot was taken.
	hub.ReportState(device.Report{DeviceID: "lamp", Version: snap.Version, States: device.States{"on": false}})
	assertNothingQueued(t, c)

	hub.ReportState(device.Report{DeviceID: "lamp", Version: snap.Version + 1, States: device.States{"on": true}})
	if ev := nextQueued(t, c); ev.EventType != ChannelDeviceState {
		t.Errorf("event_type = %q, want %q", ev.EventType, ChannelDeviceState)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, reg := testHub(t)
	c, _ := subscribedClient(t, hub, "lamp", "plug")

	c.unsubscribe("2", []string{"plug"})
	nextQueued(t, c)

	reg.SetState("plug", device.States{"on": true})
	assertNothingQueued(t, c)
	reg.SetState("lamp", device.States{"on": true})
	nextQueued(t, c)

	c.unsubscribe("3", nil)
	nextQueued(t, c)
	reg.SetState("lamp", device.States{"on": false})
	assertNothingQueued(t, c)
}

func TestHub_NothingBeforeSubscribe(t *testing.T) {
	hub, reg := testHub(t)
	c := newWSClient(hub, nil)
	hub.Register(c)

	reg.SetState("lamp", device.States{"on": true})
	assertNothingQueued(t, c)
}

func TestHub_ClientCount(t *testing.T) {
	hub, _ := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	c := newWSClient(hub, nil)
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func readWSMessage(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsEvent
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv, reg := testServer(t)
	seedDevices(t, reg)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{
		Channels:  []string{ChannelDeviceState},
		DeviceIDs: []string{"plug"},
	}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if resp := readWSMessage(t, conn); resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response = %+v", resp)
	}
	snapshot := readWSMessage(t, conn)
	if snapshot.EventType != EventDeviceSnapshot {
		t.Fatalf("event_type = %q, want %q", snapshot.EventType, EventDeviceSnapshot)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(snapshot.Payload, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if _, ok := snap.States["plug"]; !ok || len(snap.States) != 1 {
		t.Errorf("snapshot states = %v, want only plug", snap.States)
	}

	// The lamp change is filtered out, so the next event is the plug's.
	reg.SetState("lamp", device.States{"on": true})
	reg.SetState("plug", device.States{"on": true})

	event := readWSMessage(t, conn)
	var r device.Report
	if err := json.Unmarshal(event.Payload, &r); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if event.EventType != ChannelDeviceState || r.DeviceID != "plug" {
		t.Errorf("event = %s %+v, want plug state change", event.EventType, r)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if pong := readWSMessage(t, conn); pong.Type != WSTypePong {
		t.Errorf("ping response = %+v, want pong", pong)
	}

	bad := WSMessage{Type: WSTypeSubscribe, ID: "3", Payload: WSSubscribePayload{Channels: []string{"scene.activated"}}}
	if err := conn.WriteJSON(bad); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if e := readWSMessage(t, conn); e.Type != WSTypeError {
		t.Errorf("unknown channel response = %+v, want error", e)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "4"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if e := readWSMessage(t, conn); e.Type != WSTypeError {
		t.Errorf("unknown type response = %+v, want error", e)
	}
}
