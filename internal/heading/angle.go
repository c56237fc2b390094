// Package heading converts sparse raw compass headings into a smooth,
// time-eased display angle and detects significant turns.
//
// Nothing in this package performs I/O or locking. A single owner (the daemon
// goroutine in compassd) drives every type here.
package heading

import "math"

// Normalize reduces h into [0, 360).
func Normalize(h float64) float64 {
	m := math.Mod(h, 360)
	if m < 0 {
		m += 360
	}
	// -1e-15 + 360 rounds to 360.
	if m >= 360 {
		m -= 360
	}
	if m == 0 {
		return 0 // drop negative zero
	}
	return m
}

// ShortestTarget returns target shifted by a whole number of turns so that
// the numeric distance from start is at most 180 degrees. start is never
// modified: it is the angle currently on screen.
//
// A target that is already within 180 degrees is returned untouched. A
// shifted target can carry rounding error, so callers that need the exact
// resting angle should keep Normalize(target) separately.
func ShortestTarget(start, target float64) float64 {
	d := target - start
	switch {
	case d > 180:
		target -= 360 * math.Ceil((d-180)/360)
	case d < -180:
		target += 360 * math.Ceil((-d-180)/360)
	}
	return target
}

// Difference returns the unsigned minimal arc between a and b, in [0, 180].
func Difference(a, b float64) float64 {
	d := math.Abs(Normalize(a) - Normalize(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SignedDelta returns the signed minimal rotation from a to b, in (-180, 180].
// Positive values are clockwise.
func SignedDelta(a, b float64) float64 {
	d := Normalize(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

var cardinals = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Cardinal returns the closest 8-point compass direction for h.
func Cardinal(h float64) string {
	idx := int(Normalize(h+22.5) / 45)
	return cardinals[idx%len(cardinals)]
}

// Needles is the pair of opposed pointers drawn for a display angle.
type Needles struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
}

// NeedlesAt returns the north pointer at angle and the south pointer opposite
// to it. Neither is normalized, so an in-flight rotation keeps its direction.
func NeedlesAt(angle float64) Needles {
	return Needles{North: angle, South: angle + 180}
}
