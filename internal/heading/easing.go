package heading

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Easing maps the elapsed fraction of a transition, p in [0, 1], to the
// interpolation fraction. Implementations must be monotonic with
// Easing(0) == 0 and Easing(1) == 1.
type Easing func(p float64) float64

// ErrUnknownEasing is returned by EasingByName for unsupported names.
var ErrUnknownEasing = errors.New("unknown easing")

// sineOutSpan is where the sine curve is cut. Past pi/2 the curve would turn
// back, so any span below that keeps it monotonic.
const sineOutSpan = 1.5

// SineOut is a decelerating curve: sin(1.5p) scaled so that it lands exactly
// on 1 at p == 1.
func SineOut(p float64) float64 {
	p = clamp01(p)
	return clamp01(math.Sin(p*sineOutSpan) / math.Sin(sineOutSpan))
}

// CubicOut is 1-(1-p)^3.
func CubicOut(p float64) float64 {
	p = clamp01(p)
	q := 1 - p
	return 1 - q*q*q
}

// Linear performs no easing.
func Linear(p float64) float64 {
	return clamp01(p)
}

// EasingByName resolves a configuration name ("sine", "cubic", "linear").
// The empty string selects SineOut.
func EasingByName(name string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sine", "sine_out":
		return SineOut, nil
	case "cubic", "cubic_out":
		return CubicOut, nil
	case "linear":
		return Linear, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be sine, cubic or linear)", ErrUnknownEasing, name)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
