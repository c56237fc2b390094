package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven "Daemon Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - Effect results are turned into Events and fed back into the reducer.
//   - The frame ticker only runs while the animator is running.
//
// ============================================================================

// daemonOptions bundles the loop's collaborators.
type daemonOptions struct {
	Reducer ReducerConfig

	// SolarEvery is the day phase refresh period. Zero disables it.
	SolarEvery time.Duration

	Clock  clock.Clock
	Effect *effectEnv

	// Broadcasts receives reducer broadcasts. Sends never block.
	Broadcasts chan<- StateBroadcast
}

// runDaemon is the main daemon loop that:
//   - Receives Events from sources, IPC, HTTP and effects
//   - Emits Tick events on the frame cadence while animating
//   - Emits SolarTick events periodically
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(ctx context.Context, events <-chan Event, state *DaemonState, opts daemonOptions, logger *slog.Logger) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	cfg := opts.Reducer

	frameEvery := cfg.Animator.TickInterval
	if frameEvery <= 0 {
		frameEvery = time.Duration(defaultFrameMS) * time.Millisecond
	}

	var (
		frame     *clock.Ticker
		frameC    <-chan time.Time
		lastFrame time.Time
	)
	stopFrames := func() {
		if frame != nil {
			frame.Stop()
			frame, frameC = nil, nil
		}
	}
	defer stopFrames()

	// syncFrames starts the frame ticker when an animation begins and stops
	// it once the animator is idle again.
	syncFrames := func() {
		running := state.Animator.IsRunning()
		switch {
		case running && frame == nil:
			frame = clk.Ticker(frameEvery)
			frameC = frame.C
			lastFrame = clk.Now()
		case !running && frame != nil:
			stopFrames()
		}
	}

	var solarC <-chan time.Time
	if opts.SolarEvery > 0 {
		solar := clk.Ticker(opts.SolarEvery)
		defer solar.Stop()
		solarC = solar.C
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bs []StateBroadcast) {
		if opts.Broadcasts == nil {
			return
		}
		for _, b := range bs {
			select {
			case opts.Broadcasts <- b:
			default:
				logger.Debug("broadcast queue full, dropping", "broadcast", b)
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, enqueuing observation events.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(opts.Effect, cmd, logger, enqueueEvent)

			// Observations should be reduced promptly to keep state coherent.
			flushEvents()
		}
	}

	step := func() {
		flushEvents()
		flushCommands()
		syncFrames()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			logger.Debug("daemon event", "type", eventName(ev))
			enqueueEvent(stamp(ev, clk.Now()))
			step()

		case now := <-frameC:
			dt := now.Sub(lastFrame).Seconds()
			lastFrame = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			step()

		case now := <-solarC:
			enqueueEvent(SolarTick{Now: now})
			step()
		}
	}
}

// stamp wraps payload events with the time they were received. Events that
// already carry their own timestamps pass through.
func stamp(ev Event, now time.Time) Event {
	switch ev.(type) {
	case HeadingSample, LocationObserved, RotaryTurn:
		return TimedEvent{Event: ev, At: now}
	default:
		return ev
	}
}

func eventName(ev Event) string {
	switch e := ev.(type) {
	case TimedEvent:
		return eventName(e.Event)
	case HeadingSample:
		return "heading_sample"
	case LocationObserved:
		return "location"
	case RotaryTurn:
		return "rotary_turn"
	case SourceConnected:
		return "source_connected"
	case SourceFailed:
		return "source_failed"
	case TurnHookFinished:
		return "turn_hook_finished"
	case RequestStateSnapshot:
		return "request_state_snapshot"
	default:
		return "unknown"
	}
}
