package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_REL = 0x02

	// Knob relative axis codes
	REL_HWHEEL = 0x06
	REL_DIAL   = 0x07
	REL_WHEEL  = 0x08
)

// Heading source names, as they appear in logs, snapshots and broadcasts.
const (
	sourceIPC      = "ipc"
	sourceHTTP     = "http"
	sourceMQTT     = "mqtt"
	sourceNMEA     = "nmea"
	sourceSensorWS = "sensor_ws"
	sourceReplay   = "replay"
	sourceKnob     = "knob"
	sourceConfig   = "config"
)

// Animation / gate defaults
const (
	defaultToleranceDeg = 2.0
	defaultDurationMS   = 500
	defaultFrameMS      = 20
	defaultEasing       = "sine"
)

// Knob configuration defaults
const (
	defaultKnobDegreesPerStep     = 1.0 // degrees per detent
	defaultKnobVelocityWindowMS   = 200 // window for fast-spin detection (ms)
	defaultKnobVelocityMultiplier = 5.0 // step multiplier while spinning fast
	defaultKnobVelocityThreshold  = 3   // same-direction steps in window to trigger
)

// Misc daemon defaults
const (
	defaultSolarRefreshSec   = 60
	defaultStatsWindow       = 32
	defaultNMEAMinSpeedKnots = 2.0
	defaultNMEABaud          = 4800
	defaultRetryDelayMS      = 2000
	defaultTurnHookTimeoutMS = 5000
	defaultEventsBuf         = 256
	defaultBroadcastBuf      = 256
)
