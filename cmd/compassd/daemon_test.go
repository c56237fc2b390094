package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockTurnHook is a test double for the external turn hook.
type mockTurnHook struct {
	mu    sync.Mutex
	calls []CmdRunTurnHook
	err   error
	block chan struct{} // when non-nil, Run waits for it to close
}

func (m *mockTurnHook) Run(ctx context.Context, cmd CmdRunTurnHook) error {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockTurnHook) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type testDaemon struct {
	events     chan Event
	broadcasts chan StateBroadcast
	clk        *clock.Mock
	cancel     context.CancelFunc
	done       chan struct{}
}

func startTestDaemon(t *testing.T, cfg ReducerConfig, hook TurnHookRunner) *testDaemon {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	d := &testDaemon{
		events:     make(chan Event, 64),
		broadcasts: make(chan StateBroadcast, 256),
		clk:        clock.NewMock(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	d.clk.Set(time.Unix(1000, 0).UTC())

	env := &effectEnv{ctx: ctx, hook: hook, async: d.events, clk: d.clk}
	go func() {
		defer close(d.done)
		runDaemon(ctx, d.events, NewDaemonState(cfg), daemonOptions{
			Reducer:    cfg,
			Clock:      d.clk,
			Effect:     env,
			Broadcasts: d.broadcasts,
		}, testLogger())
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-d.done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for daemon to stop")
		}
	})
	return d
}

func (d *testDaemon) snapshot(t *testing.T) StateSnapshot {
	t.Helper()
	snap, err := requestSnapshot(context.Background(), d.events, time.Second)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

// TestDaemon_AnimatesToRest tests that a heading sample starts the frame
// ticker and that frames stop once the needle rests on the new heading.
func TestDaemon_AnimatesToRest(t *testing.T) {
	d := startTestDaemon(t, testReducerConfig(), nil)

	d.events <- HeadingSample{Degrees: 90, Source: sourceIPC}

	var (
		sawTurn  bool
		frames   []BroadcastNeedle
		resting  bool
		deadline = time.Now().Add(2 * time.Second)
	)
	for !resting && time.Now().Before(deadline) {
		select {
		case b := <-d.broadcasts:
			switch ev := b.(type) {
			case BroadcastTurn:
				sawTurn = true
			case BroadcastNeedle:
				frames = append(frames, ev)
				if !ev.Running {
					resting = true
				}
			}
		case <-time.After(5 * time.Millisecond):
			// Drive the frame ticker forward.
			d.clk.Add(20 * time.Millisecond)
		}
	}

	if !sawTurn {
		t.Fatalf("expected a turn broadcast")
	}
	if !resting {
		t.Fatalf("timeout waiting for resting frame (frames=%d)", len(frames))
	}
	if frames[0].Angle != 0 || !frames[0].Running {
		t.Fatalf("expected first frame at 0, got %+v", frames[0])
	}
	last := frames[len(frames)-1]
	if last.Angle != 90 {
		t.Fatalf("expected resting angle 90, got %v", last.Angle)
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Angle < frames[i-1].Angle {
			t.Fatalf("frames not monotonic at %d: %v < %v", i, frames[i].Angle, frames[i-1].Angle)
		}
	}

	snap := d.snapshot(t)
	if snap.Animating || snap.Display != 90 || snap.Cardinal != "E" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Raw == nil || snap.Raw.At.Before(time.Unix(1000, 0)) {
		t.Fatalf("expected raw sample stamped with the daemon clock, got %+v", snap.Raw)
	}
}

// TestDaemon_TurnHook tests that the hook runs asynchronously and that its
// result is fed back into the state.
func TestDaemon_TurnHook(t *testing.T) {
	cfg := testReducerConfig()
	cfg.TurnHook = true
	hook := &mockTurnHook{err: errors.New("boom"), block: make(chan struct{})}
	d := startTestDaemon(t, cfg, hook)

	d.events <- HeadingSample{Degrees: 45}
	waitUntil(t, time.Second, func() bool { return hook.callCount() == 1 }, "hook not called")

	// A turn while the hook is blocked is suppressed.
	d.events <- HeadingSample{Degrees: 135}
	waitUntil(t, time.Second, func() bool {
		s := d.snapshot(t)
		return s.TurnHook.InFlight && s.TurnHook.Suppressed == 1
	}, "expected suppressed turn while hook in flight")

	close(hook.block)
	waitUntil(t, time.Second, func() bool {
		s := d.snapshot(t)
		return !s.TurnHook.InFlight && s.TurnHook.LastError == "boom"
	}, "expected hook result in snapshot")

	if got := hook.callCount(); got != 1 {
		t.Fatalf("expected 1 hook call, got %d", got)
	}
	hook.mu.Lock()
	call := hook.calls[0]
	hook.mu.Unlock()
	if call.From != 0 || call.To != 45 || call.Delta != 45 {
		t.Fatalf("unexpected hook call: %+v", call)
	}
}

// TestDaemon_TurnHookMissing tests that a hook command without a runner is
// reported back instead of leaving the hook in flight.
func TestDaemon_TurnHookMissing(t *testing.T) {
	cfg := testReducerConfig()
	cfg.TurnHook = true
	d := startTestDaemon(t, cfg, nil)

	d.events <- HeadingSample{Degrees: 45}
	waitUntil(t, time.Second, func() bool {
		s := d.snapshot(t)
		return s.TurnHook.Runs == 1 && !s.TurnHook.InFlight && s.TurnHook.LastError == errNoTurnHook.Error()
	}, "expected missing hook to be reported")
}

// TestDaemon_StopsOnClosedEvents tests shutdown when the event channel closes.
func TestDaemon_StopsOnClosedEvents(t *testing.T) {
	events := make(chan Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(context.Background(), events, NewDaemonState(testReducerConfig()), daemonOptions{
			Reducer: testReducerConfig(),
			Clock:   clock.NewMock(),
		}, testLogger())
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for daemon to stop")
	}
}

// TestDaemon_SolarTicker tests the periodic day phase refresh.
func TestDaemon_SolarTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edt := time.FixedZone("EDT", -4*3600)
	mock := clock.NewMock()
	mock.Set(time.Date(1990, time.June, 25, 12, 0, 0, 0, edt))

	events := make(chan Event, 8)
	broadcasts := make(chan StateBroadcast, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, events, NewDaemonState(testReducerConfig()), daemonOptions{
			Reducer:    testReducerConfig(),
			SolarEvery: time.Minute,
			Clock:      mock,
			Broadcasts: broadcasts,
		}, testLogger())
	}()

	events <- LocationObserved{Latitude: 40.9, Longitude: -74.3}

	want := []string{"morning", "afternoon"}
	var got []string
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(want) && time.Now().Before(deadline) {
		select {
		case b := <-broadcasts:
			if bp, ok := b.(BroadcastDayPhase); ok {
				got = append(got, bp.Phase)
			}
		case <-time.After(5 * time.Millisecond):
			mock.Add(time.Minute)
		}
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected phases %v, got %v", want, got)
	}

	cancel()
	<-done
}

// lockedBuffer is a log sink safe for use from the daemon goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestDaemon_DroppedBroadcastsLogAtDebug tests that a stalled broadcast
// consumer does not flood the log with warnings.
func TestDaemon_DroppedBroadcastsLogAtDebug(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs lockedBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := testReducerConfig()
	events := make(chan Event, 16)
	stalled := make(chan StateBroadcast) // never read
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0).UTC())

	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, events, NewDaemonState(cfg), daemonOptions{
			Reducer:    cfg,
			Clock:      clk,
			Effect:     &effectEnv{ctx: ctx, async: events, clk: clk},
			Broadcasts: stalled,
		}, logger)
	}()

	events <- HeadingSample{Degrees: 90, Source: sourceIPC}
	if _, err := requestSnapshot(context.Background(), events, time.Second); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	out := logs.String()
	if !strings.Contains(out, "broadcast queue full") {
		t.Fatalf("expected dropped broadcasts to be logged, got:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "broadcast queue full") && !strings.Contains(line, "level=DEBUG") {
			t.Fatalf("dropped broadcast logged above debug: %s", line)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for daemon to stop")
	}
}
