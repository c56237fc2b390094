package main

import (
	"context"
	"log/slog"
	"time"

	"compassd/internal/heading"
)

// StateBroadcast is a reducer-emitted, externally visible state change.
// Broadcasts are fanned out to websocket clients and the MQTT publisher.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastNeedle is one animation frame. Angle is the unnormalized display
// angle; Bearing is the same angle reduced into [0, 360). The last frame of
// a transition has Running=false.
type BroadcastNeedle struct {
	Angle   float64
	Bearing float64
	North   float64
	South   float64
	Running bool
	At      time.Time
}

func (BroadcastNeedle) broadcastMarker() {}

// BroadcastTurn reports a change that passed the gate.
type BroadcastTurn struct {
	From   float64
	To     float64
	Delta  float64
	Source string
	At     time.Time
}

func (BroadcastTurn) broadcastMarker() {}

// BroadcastLocation reports a new position fix.
type BroadcastLocation struct {
	Latitude  float64
	Longitude float64
	DMS       string
	Source    string
	At        time.Time
}

func (BroadcastLocation) broadcastMarker() {}

// BroadcastDayPhase reports a change of day phase.
type BroadcastDayPhase struct {
	Phase   string
	Sunrise time.Time
	Sunset  time.Time
	At      time.Time
}

func (BroadcastDayPhase) broadcastMarker() {}

func needleFrame(angle float64, running bool, at time.Time) BroadcastNeedle {
	n := heading.NeedlesAt(angle)
	return BroadcastNeedle{
		Angle:   angle,
		Bearing: heading.Normalize(angle),
		North:   n.North,
		South:   n.South,
		Running: running,
		At:      at,
	}
}

// fanoutBroadcasts copies every broadcast from src to each destination.
// A full destination drops the broadcast for that destination only.
func fanoutBroadcasts(ctx context.Context, src <-chan StateBroadcast, logger *slog.Logger, dsts ...chan<- StateBroadcast) {
	defer func() {
		for _, d := range dsts {
			close(d)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-src:
			if !ok {
				return
			}
			for i, d := range dsts {
				select {
				case d <- b:
				default:
					logger.Warn("broadcast consumer full, dropping", "consumer", i)
				}
			}
		}
	}
}
