package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func startTestIPC(t *testing.T, events chan Event) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sock := filepath.Join(t.TempDir(), "compassd.sock")

	errCh := make(chan error, 1)
	go func() { errCh <- runIPCServer(ctx, sock, events, testLogger()) }()

	waitUntil(t, time.Second, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, "IPC socket not ready")

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("runIPCServer: %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for IPC server to stop")
		}
	})
	return sock
}

// TestIPC_SendEvent tests that events sent by a client reach the daemon channel.
func TestIPC_SendEvent(t *testing.T) {
	events := make(chan Event, 4)
	sock := startTestIPC(t, events)

	if err := SendIPCEvent(sock, HeadingSample{Degrees: 12.5}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	select {
	case ev := <-events:
		hs, ok := ev.(HeadingSample)
		if !ok || hs.Degrees != 12.5 || hs.Source != sourceIPC {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}

	if err := SendIPCEvent(sock, RotaryTurn{Steps: -3}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	if rt, ok := (<-events).(RotaryTurn); !ok || rt.Steps != -3 {
		t.Fatalf("unexpected rotary event: %#v", rt)
	}
}

// TestIPC_RejectsUnknownEvents tests the error response path.
func TestIPC_RejectsUnknownEvents(t *testing.T) {
	events := make(chan Event, 4)
	sock := startTestIPC(t, events)

	if _, err := sendIPCLine(sock, []byte(`{"type":"volume_step","data":{"steps":1}}`)); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
	if _, err := sendIPCLine(sock, []byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed line")
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

// TestIPC_GetState tests the snapshot query.
func TestIPC_GetState(t *testing.T) {
	events := make(chan Event, 4)
	sock := startTestIPC(t, events)

	go func() {
		for ev := range events {
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- StateSnapshot{Display: 200, Bearing: 200, Cardinal: "S"}
				return
			}
		}
	}()

	snap, err := QueryIPCState(sock)
	if err != nil {
		t.Fatalf("QueryIPCState: %v", err)
	}
	if snap.Display != 200 || snap.Cardinal != "S" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestWithDefaultSource(t *testing.T) {
	if hs := withDefaultSource(HeadingSample{Degrees: 1}, sourceIPC).(HeadingSample); hs.Source != sourceIPC {
		t.Fatalf("expected default source, got %q", hs.Source)
	}
	if hs := withDefaultSource(HeadingSample{Degrees: 1, Source: "bridge"}, sourceIPC).(HeadingSample); hs.Source != "bridge" {
		t.Fatalf("expected explicit source kept, got %q", hs.Source)
	}
	if lo := withDefaultSource(LocationObserved{}, sourceIPC).(LocationObserved); lo.Source != sourceIPC {
		t.Fatalf("expected default location source, got %q", lo.Source)
	}
}
