package main

import (
	"errors"
	"math"
	"time"

	"compassd/internal/heading"
	"compassd/internal/solar"
)

// This file implements the reducer:
//
//   - Events: raw headings, position fixes, knob turns, ticks, effect results
//   - Commands: side effects requested by the reducer (snapshot replies, turn hook)
//   - Broadcasts: externally visible changes (needle frames, turns, location, day phase)
//
// Reduce performs no I/O and never blocks. The gate and the animator are only
// ever driven from here, which keeps them single-owner.

// ReducerConfig is the reducer policy, built from the daemon config.
type ReducerConfig struct {
	Tolerance float64
	Animator  heading.AnimatorConfig
	Zenith    solar.Zenith
	Knob      KnobConfig

	// TurnHook enables CmdRunTurnHook on turns.
	TurnHook bool

	// StatsWindow is how many raw samples feed the circular statistics.
	StatsWindow int
}

// ReduceResult is the output of Reduce(): next state, Commands to execute,
// and Broadcasts to fan out.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(cfg)
	}
	rr := ReduceResult{State: s}

	at := time.Time{}
	if te, ok := e.(TimedEvent); ok {
		e, at = te.Event, te.At
	}

	switch ev := e.(type) {
	case HeadingSample:
		reduceHeading(&rr, ev.Degrees, ev.Source, at, cfg)

	case RotaryTurn:
		history, delta := knobDegrees(s.Knob.RecentSteps, ev.Steps, at, cfg.Knob)
		s.Knob.RecentSteps = history
		if delta == 0 {
			break
		}
		base := s.Animator.Display()
		if s.Heading.Known {
			base = s.Heading.LastRaw
		}
		reduceHeading(&rr, heading.Normalize(base+delta), sourceKnob, at, cfg)

	case Tick:
		if !s.Animator.IsRunning() {
			break
		}
		angle := s.Animator.Tick(ev.Now)
		rr.Broadcasts = append(rr.Broadcasts, needleFrame(angle, s.Animator.IsRunning(), ev.Now))

	case LocationObserved:
		loc, err := solar.NewLocation(ev.Latitude, ev.Longitude)
		if err != nil {
			s.SetSourceStatus(locationSource(ev.Source), true, err, at)
			break
		}
		s.SetLocation(loc, ev.Source, at)
		rr.Broadcasts = append(rr.Broadcasts, BroadcastLocation{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			DMS:       loc.DMS(),
			Source:    ev.Source,
			At:        at,
		})
		reduceDayPhase(&rr, at, cfg, true)

	case SolarTick:
		reduceDayPhase(&rr, ev.Now, cfg, false)

	case SourceConnected:
		s.SetSourceStatus(ev.Source, true, nil, ev.At)

	case SourceFailed:
		s.SetSourceStatus(ev.Source, false, ev.Err, ev.At)

	case TurnHookFinished:
		s.Hook.InFlight = false
		s.Hook.LastDuration = ev.Duration
		s.Hook.LastAt = ev.At
		s.Hook.LastErr = ""
		if ev.Err != nil {
			s.Hook.LastErr = ev.Err.Error()
		}

	case RequestStateSnapshot:
		rr.Commands = append(rr.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(),
		})

	default:
		// Unknown event type: no-op.
	}

	return rr
}

// reduceHeading runs one raw heading through the gate and the animator.
func reduceHeading(rr *ReduceResult, deg float64, source string, at time.Time, cfg ReducerConfig) {
	s := rr.State

	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		s.Heading.Rejected++
		return
	}
	s.RecordSample(deg, source, at, cfg.StatsWindow)

	from := s.Gate.Stable()
	if s.Gate.Evaluate(deg) {
		to := s.Gate.Stable()
		s.Heading.Turns++
		rr.Broadcasts = append(rr.Broadcasts, BroadcastTurn{
			From:   from,
			To:     to,
			Delta:  to - from,
			Source: source,
			At:     at,
		})

		if cfg.TurnHook {
			if s.Hook.InFlight {
				s.Hook.Suppressed++
			} else {
				s.Hook.InFlight = true
				s.Hook.Runs++
				rr.Commands = append(rr.Commands, CmdRunTurnHook{From: from, To: to, Delta: to - from, At: at})
			}
		}
	}

	if s.Animator.Retarget(deg, at) {
		// First frame of the new transition: the angle currently on screen.
		rr.Broadcasts = append(rr.Broadcasts, needleFrame(s.Animator.Display(), true, at))
	}
}

// reduceDayPhase recomputes the day phase. force broadcasts even when the
// phase did not change (a new location moves sunrise and sunset).
func reduceDayPhase(rr *ReduceResult, now time.Time, cfg ReducerConfig, force bool) {
	s := rr.State
	if !s.Location.Known || now.IsZero() {
		return
	}

	z := cfg.Zenith
	if z == 0 {
		z = solar.Official
	}

	phase, times, err := solar.DayPhase(s.Location.Loc, z, now)
	if err != nil {
		s.Sun.Err = err.Error()
		s.Sun.At = now
		return
	}

	changed := !s.Sun.Known || phase != s.Sun.Phase
	s.Sun = SunState{Phase: phase, Times: times, Known: true, At: now}

	if changed || force {
		rr.Broadcasts = append(rr.Broadcasts, BroadcastDayPhase{
			Phase:   phase.String(),
			Sunrise: times.Sunrise,
			Sunset:  times.Sunset,
			At:      now,
		})
	}
}

func locationSource(source string) string {
	if source == "" {
		return "location"
	}
	return source
}

// errNoTurnHook is reported when CmdRunTurnHook reaches an effect runner
// without a configured hook.
var errNoTurnHook = errors.New("no turn hook configured")
