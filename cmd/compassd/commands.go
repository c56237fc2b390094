package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdPublishStateSnapshot delivers a reducer-built snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// CmdRunTurnHook runs the configured turn hook for a significant heading change.
type CmdRunTurnHook struct {
	From  float64
	To    float64
	Delta float64
	At    time.Time
}

func (CmdRunTurnHook) commandMarker() {}
func (c CmdRunTurnHook) String() string {
	return fmt.Sprintf("CmdRunTurnHook(from=%.1f to=%.1f delta=%.1f)", c.From, c.To, c.Delta)
}
