package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - reducer inputs
// ============================================================================
// Events come from heading sources (MQTT, NMEA, sensor websocket, replay,
// knob, IPC, HTTP), from the daemon's own tickers, and from effects
// reporting back what happened.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent carries the time the daemon received a payload event.
// Sources send bare payloads; the daemon loop stamps them.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Tick is emitted by the daemon loop on the frame cadence, only while the
// animator is running. Dt is the wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// SolarTick asks the reducer to re-evaluate the day phase.
type SolarTick struct {
	Now time.Time
}

func (SolarTick) eventMarker() {}

// HeadingSample is one raw compass reading in degrees.
type HeadingSample struct {
	Degrees float64 `json:"degrees"`
	Source  string  `json:"source,omitempty"`
}

func (HeadingSample) eventMarker() {}

// LocationObserved is a position fix used for sunrise/sunset.
type LocationObserved struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Source    string  `json:"source,omitempty"`
}

func (LocationObserved) eventMarker() {}

// RotaryTurn represents raw knob movement (detents).
// The reducer owns the policy for turning steps into degrees.
type RotaryTurn struct {
	Steps int `json:"steps"` // positive=clockwise
}

func (RotaryTurn) eventMarker() {}

// SourceConnected is posted by a source once it is delivering data.
type SourceConnected struct {
	Source string
	At     time.Time
}

func (SourceConnected) eventMarker() {}

// SourceFailed is posted by a source when it loses its input.
type SourceFailed struct {
	Source string
	Err    error
	At     time.Time
}

func (SourceFailed) eventMarker() {}

// TurnHookFinished is posted when an asynchronous turn hook exits.
type TurnHookFinished struct {
	Err      error
	Duration time.Duration
	At       time.Time
}

func (TurnHookFinished) eventMarker() {}

// RequestStateSnapshot asks the daemon to publish a coherent snapshot on Reply.
// Reply should be buffered (size 1); the effect never blocks on it.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("event %q: missing data", env.Type)
	}

	switch env.Type {
	case "heading_sample":
		var e HeadingSample
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal HeadingSample: %w", err)
		}
		return e, nil

	case "location":
		var e LocationObserved
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal LocationObserved: %w", err)
		}
		return e, nil

	case "rotary_turn":
		var e RotaryTurn
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal RotaryTurn: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case HeadingSample:
		env.Type = "heading_sample"
	case LocationObserved:
		env.Type = "location"
	case RotaryTurn:
		env.Type = "rotary_turn"
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	env.Data = data

	return json.Marshal(env)
}
