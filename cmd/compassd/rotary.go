package main

import "time"

// KnobConfig is the reducer policy for the manual heading knob.
type KnobConfig struct {
	DegreesPerStep     float64
	VelocityWindow     time.Duration
	VelocityThreshold  int     // same-direction steps within window to count as fast spin
	VelocityMultiplier float64 // step scale while spinning fast
}

// addKnobStep records a detent at `at` and returns the trimmed history plus the
// count of steps in the same direction within the velocity window.
//
// The history slice is reused; callers must store the returned slice.
func addKnobStep(history []KnobStep, direction int, at time.Time, window time.Duration) ([]KnobStep, int) {
	cutoff := at.Add(-window)

	// Remove old steps outside the velocity window
	filtered := history[:0]
	for _, s := range history {
		if s.At.After(cutoff) {
			filtered = append(filtered, s)
		}
	}
	filtered = append(filtered, KnobStep{At: at, Direction: direction})

	sameDir := 0
	for _, s := range filtered {
		if s.Direction == direction {
			sameDir++
		}
	}
	return filtered, sameDir
}

// knobDegrees converts a RotaryTurn into a signed heading delta, updating the
// step history. Fast spinning multiplies the step size.
func knobDegrees(history []KnobStep, steps int, at time.Time, cfg KnobConfig) ([]KnobStep, float64) {
	if steps == 0 {
		return history, 0
	}
	direction := 1
	n := steps
	if steps < 0 {
		direction = -1
		n = -steps
	}

	count := 0
	for i := 0; i < n; i++ {
		history, count = addKnobStep(history, direction, at, cfg.VelocityWindow)
	}

	per := cfg.DegreesPerStep
	if per == 0 {
		per = defaultKnobDegreesPerStep
	}
	if cfg.VelocityThreshold > 0 && count >= cfg.VelocityThreshold && cfg.VelocityMultiplier > 1 {
		per *= cfg.VelocityMultiplier
	}
	return history, float64(steps) * per
}
