package main

import (
	"bytes"
	"encoding/binary"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw little-endian input_event.
func decodeInputEvent(buf []byte) (inputEvent, bool) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, false
	}
	if err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev); err != nil {
		return ev, false
	}
	return ev, true
}

// knobEventToTurn maps a relative axis event from a rotary encoder to a
// RotaryTurn. Wheel, horizontal wheel and dial axes are accepted.
func knobEventToTurn(ev inputEvent) (RotaryTurn, bool) {
	if ev.Type != EV_REL || ev.Value == 0 {
		return RotaryTurn{}, false
	}
	switch ev.Code {
	case REL_DIAL, REL_WHEEL, REL_HWHEEL:
		return RotaryTurn{Steps: int(ev.Value)}, true
	default:
		return RotaryTurn{}, false
	}
}
