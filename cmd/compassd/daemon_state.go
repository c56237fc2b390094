package main

import (
	"time"

	"compassd/internal/heading"
	"compassd/internal/solar"
)

// DaemonState is the top-level, daemon-owned state container.
//
// The heading core (gate and animator) performs no locking, so it lives here
// and is only touched by the daemon goroutine. Other goroutines see the
// state through StateSnapshot values published by the reducer.
type DaemonState struct {
	Gate     *heading.ChangeGate
	Animator *heading.RotationAnimator

	Heading  HeadingState
	Knob     KnobState
	Location LocationState
	Sun      SunState
	Sources  map[string]SourceStatus
	Hook     TurnHookState
}

// HeadingState records what the sources reported, before gating or animation.
type HeadingState struct {
	LastRaw    float64
	LastSource string
	LastAt     time.Time
	Known      bool

	// Window holds the most recent raw samples for statistics.
	Window []float64

	Samples  int // accepted samples
	Rejected int // NaN/Inf samples
	Turns    int // samples that passed the gate
}

// KnobState tracks recent knob steps for fast-spin detection.
type KnobState struct {
	RecentSteps []KnobStep
}

// KnobStep is one observed knob detent at a given time.
// Direction is -1 or +1.
type KnobStep struct {
	At        time.Time
	Direction int
}

// LocationState is the last accepted position fix.
type LocationState struct {
	Loc    solar.Location
	Known  bool
	Source string
	At     time.Time
}

// SunState is the last computed day phase.
type SunState struct {
	Phase solar.Phase
	Times solar.Times
	Known bool
	Err   string
	At    time.Time
}

// SourceStatus is the health of one heading/location source.
type SourceStatus struct {
	Connected bool      `json:"connected"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

// TurnHookState tracks the asynchronous turn hook.
type TurnHookState struct {
	InFlight     bool
	Runs         int
	Suppressed   int // turns that happened while a hook was still running
	LastErr      string
	LastDuration time.Duration
	LastAt       time.Time
}

// NewDaemonState builds an idle state: gate baseline 0, animator resting at 0.
func NewDaemonState(cfg ReducerConfig) *DaemonState {
	return &DaemonState{
		Gate:     heading.NewChangeGate(cfg.Tolerance),
		Animator: heading.NewRotationAnimator(cfg.Animator),
		Sources:  make(map[string]SourceStatus),
	}
}

// RecordSample stores an accepted raw heading.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) RecordSample(deg float64, source string, at time.Time, window int) {
	s.Heading.LastRaw = deg
	s.Heading.LastSource = source
	s.Heading.LastAt = at
	s.Heading.Known = true
	s.Heading.Samples++
	s.Heading.Window = pushWindow(s.Heading.Window, deg, window)
}

// SetLocation stores an accepted position fix.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetLocation(loc solar.Location, source string, at time.Time) {
	s.Location = LocationState{Loc: loc, Known: true, Source: source, At: at}
}

// SetSourceStatus updates the health of a source.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetSourceStatus(source string, connected bool, err error, at time.Time) {
	if s.Sources == nil {
		s.Sources = make(map[string]SourceStatus)
	}
	st := SourceStatus{Connected: connected, At: at}
	if err != nil {
		st.LastError = err.Error()
	} else if prev, ok := s.Sources[source]; ok && connected {
		// keep the last failure visible after a reconnect
		st.LastError = prev.LastError
	}
	s.Sources[source] = st
}

// ============================================================================
// Snapshot
// ============================================================================

// StateSnapshot is the externally consumable view of DaemonState.
// It never shares memory with the daemon-owned state.
type StateSnapshot struct {
	Display   float64         `json:"display"`
	Bearing   float64         `json:"bearing"`
	Cardinal  string          `json:"cardinal"`
	Needles   heading.Needles `json:"needles"`
	Animating bool            `json:"animating"`

	Stable    float64 `json:"stable"`
	Tolerance float64 `json:"tolerance"`

	Raw      *RawSnapshot `json:"raw,omitempty"`
	Stats    SampleStats  `json:"stats"`
	Samples  int          `json:"samples"`
	Rejected int          `json:"rejected"`
	Turns    int          `json:"turns"`

	Location *LocationSnapshot `json:"location,omitempty"`
	DayPhase *DayPhaseSnapshot `json:"day_phase,omitempty"`

	Sources  map[string]SourceStatus `json:"sources,omitempty"`
	TurnHook TurnHookSnapshot        `json:"turn_hook"`
}

type RawSnapshot struct {
	Degrees float64   `json:"degrees"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
}

type LocationSnapshot struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	DMS       string    `json:"dms"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

type DayPhaseSnapshot struct {
	Phase       string     `json:"phase"`
	Sunrise     *time.Time `json:"sunrise,omitempty"`
	Sunset      *time.Time `json:"sunset,omitempty"`
	PolarNight  bool       `json:"polar_night,omitempty"`
	MidnightSun bool       `json:"midnight_sun,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type TurnHookSnapshot struct {
	InFlight     bool   `json:"in_flight"`
	Runs         int    `json:"runs"`
	Suppressed   int    `json:"suppressed"`
	LastError    string `json:"last_error,omitempty"`
	LastDuration string `json:"last_duration,omitempty"`
}

// Snapshot copies the state into a StateSnapshot.
func (s *DaemonState) Snapshot() StateSnapshot {
	display := s.Animator.Display()
	snap := StateSnapshot{
		Display:   display,
		Bearing:   heading.Normalize(display),
		Cardinal:  heading.Cardinal(display),
		Needles:   s.Animator.Needles(),
		Animating: s.Animator.IsRunning(),
		Stable:    s.Gate.Stable(),
		Tolerance: s.Gate.Tolerance(),
		Stats:     circularStats(s.Heading.Window),
		Samples:   s.Heading.Samples,
		Rejected:  s.Heading.Rejected,
		Turns:     s.Heading.Turns,
		TurnHook: TurnHookSnapshot{
			InFlight:   s.Hook.InFlight,
			Runs:       s.Hook.Runs,
			Suppressed: s.Hook.Suppressed,
			LastError:  s.Hook.LastErr,
		},
	}
	if s.Hook.LastDuration > 0 {
		snap.TurnHook.LastDuration = s.Hook.LastDuration.String()
	}

	if s.Heading.Known {
		snap.Raw = &RawSnapshot{
			Degrees: s.Heading.LastRaw,
			Source:  s.Heading.LastSource,
			At:      s.Heading.LastAt,
		}
	}

	if s.Location.Known {
		snap.Location = &LocationSnapshot{
			Latitude:  s.Location.Loc.Latitude,
			Longitude: s.Location.Loc.Longitude,
			DMS:       s.Location.Loc.DMS(),
			Source:    s.Location.Source,
			At:        s.Location.At,
		}
	}

	if s.Sun.Known || s.Sun.Err != "" {
		dp := &DayPhaseSnapshot{
			Phase:       s.Sun.Phase.String(),
			PolarNight:  s.Sun.Times.PolarNight,
			MidnightSun: s.Sun.Times.MidnightSun,
			Error:       s.Sun.Err,
		}
		if !s.Sun.Times.Sunrise.IsZero() {
			t := s.Sun.Times.Sunrise
			dp.Sunrise = &t
		}
		if !s.Sun.Times.Sunset.IsZero() {
			t := s.Sun.Times.Sunset
			dp.Sunset = &t
		}
		snap.DayPhase = dp
	}

	if len(s.Sources) > 0 {
		snap.Sources = make(map[string]SourceStatus, len(s.Sources))
		for k, v := range s.Sources {
			snap.Sources[k] = v
		}
	}

	return snap
}
