//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
)

func runKnob(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	return errors.New("knob input requires linux evdev")
}
