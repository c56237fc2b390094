package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

type wireMessage struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func readHubMessage(t *testing.T, hub *Hub) wireMessage {
	t.Helper()
	select {
	case b := <-hub.broadcast:
		var m wireMessage
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("unmarshal %q: %v", b, err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for hub message")
	}
	return wireMessage{}
}

func needleAngle(t *testing.T, m wireMessage) float64 {
	t.Helper()
	if m.Type != "needle" {
		t.Fatalf("expected needle message, got %q", m.Type)
	}
	var d wsNeedleData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		t.Fatalf("unmarshal needle: %v", err)
	}
	return d.Angle
}

func assertNoHubMessage(t *testing.T, hub *Hub) {
	t.Helper()
	select {
	case b := <-hub.broadcast:
		t.Fatalf("unexpected hub message %s", b)
	case <-time.After(30 * time.Millisecond):
	}
}

// TestRunBroadcaster_CoalescesNeedleFrames tests latest-wins coalescing of
// needle frames within the window.
func TestRunBroadcaster_CoalescesNeedleFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 16)
	mock := clock.NewMock()
	src := make(chan StateBroadcast) // unbuffered: each send is a handoff
	t0 := time.Unix(1000, 0).UTC()

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, 100*time.Millisecond, mock, testLogger())
	}()

	// First frame of a burst goes out immediately.
	src <- needleFrame(10, true, t0)
	if got := needleAngle(t, readHubMessage(t, hub)); got != 10 {
		t.Fatalf("expected first frame 10, got %v", got)
	}

	src <- needleFrame(20, true, t0)
	src <- needleFrame(30, true, t0)
	assertNoHubMessage(t, hub)

	// Window elapses: only the latest pending frame is sent.
	mock.Add(100 * time.Millisecond)
	if got := needleAngle(t, readHubMessage(t, hub)); got != 30 {
		t.Fatalf("expected coalesced frame 30, got %v", got)
	}
	assertNoHubMessage(t, hub)

	// Pending frame is flushed before any other event.
	src <- needleFrame(40, true, t0)
	if got := needleAngle(t, readHubMessage(t, hub)); got != 40 {
		t.Fatalf("expected immediate frame 40, got %v", got)
	}
	src <- needleFrame(50, false, t0)
	src <- BroadcastTurn{From: 0, To: 50, Delta: 50, At: t0}

	if got := needleAngle(t, readHubMessage(t, hub)); got != 50 {
		t.Fatalf("expected flushed frame 50, got %v", got)
	}
	if m := readHubMessage(t, hub); m.Type != "turn" {
		t.Fatalf("expected turn after flush, got %q", m.Type)
	}

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop after source closed")
	}
}

// TestRunBroadcaster_NoWindowSendsEveryFrame tests window <= 0.
func TestRunBroadcaster_NoWindowSendsEveryFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 4)
	go RunBroadcaster(ctx, hub, src, 0, clock.NewMock(), testLogger())

	t0 := time.Unix(1000, 0).UTC()
	for _, a := range []float64{1, 2, 3} {
		src <- needleFrame(a, true, t0)
	}
	for _, want := range []float64{1, 2, 3} {
		if got := needleAngle(t, readHubMessage(t, hub)); got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestConvertBroadcast tests the wire mapping of every broadcast.
func TestConvertBroadcast(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()

	ev, ok := convertBroadcast(needleFrame(370, true, t0))
	if !ok || ev.Type != "needle" {
		t.Fatalf("unexpected needle conversion: %+v", ev)
	}
	nd := ev.Data.(wsNeedleData)
	if nd.Angle != 370 || nd.Bearing != 10 || nd.North != 370 || nd.South != 550 || !nd.Running {
		t.Fatalf("unexpected needle data: %+v", nd)
	}

	ev, ok = convertBroadcast(BroadcastLocation{Latitude: 1, Longitude: 2, DMS: "x", Source: sourceNMEA, At: t0})
	if !ok || ev.Type != "location" || ev.Data.(wsLocationData).Source != sourceNMEA {
		t.Fatalf("unexpected location conversion: %+v", ev)
	}

	ev, ok = convertBroadcast(BroadcastDayPhase{Phase: "night", At: t0})
	if !ok || ev.Type != "day_phase" {
		t.Fatalf("unexpected day phase conversion: %+v", ev)
	}
	dp := ev.Data.(wsDayPhaseData)
	if dp.Sunrise != nil || dp.Sunset != nil {
		t.Fatalf("expected nil sunrise/sunset for polar day phase, got %+v", dp)
	}

	b, err := marshalEnvelope(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"type":"day_phase"`) || strings.Contains(string(b), "sunrise") {
		t.Fatalf("unexpected envelope: %s", b)
	}
}

// TestStateWS_SendsStateInit tests the full websocket path: upgrade, register,
// snapshot through the event loop, then state_init.
func TestStateWS_SendsStateInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	srv := NewServer(testLogger(), events, HubConfig{})
	go srv.Hub().Run(ctx)

	// Fake daemon: answer snapshot requests.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if req, ok := ev.(RequestStateSnapshot); ok {
					req.Reply <- StateSnapshot{Display: 123, Bearing: 123, Cardinal: "SE"}
				}
			}
		}
	}()

	ts := httptest.NewServer(newHTTPMux(srv, events, testLogger()))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != "state_init" || m.Ts == nil {
		t.Fatalf("expected state_init with ts, got %s", b)
	}
	var init struct {
		ClientID string        `json:"client_id"`
		State    StateSnapshot `json:"state"`
	}
	if err := json.Unmarshal(m.Data, &init); err != nil {
		t.Fatalf("unmarshal init: %v", err)
	}
	if init.ClientID == "" || init.State.Display != 123 || init.State.Cardinal != "SE" {
		t.Fatalf("unexpected state_init: %+v", init)
	}

	// Broadcasts reach the connected client.
	waitUntil(t, time.Second, func() bool { return srv.Hub().ClientCount() == 1 }, "client not registered")
	msg, err := marshalEnvelope(wsOutboundEvent{Type: "turn", Data: wsTurnData{From: 1, To: 5, Delta: 4}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	srv.Hub().BroadcastBytes(msg)

	_, b, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !strings.Contains(string(b), `"type":"turn"`) {
		t.Fatalf("expected turn broadcast, got %s", b)
	}
}

// TestRequestSnapshot_Timeout tests that an unresponsive daemon times out.
func TestRequestSnapshot_Timeout(t *testing.T) {
	events := make(chan Event, 1)
	if _, err := requestSnapshot(context.Background(), events, 20*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
	if _, err := requestSnapshot(context.Background(), nil, 20*time.Millisecond); err == nil {
		t.Fatalf("expected error for nil channel")
	}
}
