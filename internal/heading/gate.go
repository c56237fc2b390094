package heading

import "math"

// DefaultTolerance is the turn threshold in degrees.
const DefaultTolerance = 2.0

// ChangeGate separates real heading changes from sensor jitter.
//
// It is a per-sample edge detector, not a debounced filter: every evaluated
// sample becomes the new baseline, so only the delta since the previous
// sample is ever tested. Slow drift made of many small steps never triggers.
type ChangeGate struct {
	tolerance float64
	stable    float64
}

// NewChangeGate returns a gate with a zero baseline. A non-positive tolerance
// selects DefaultTolerance.
func NewChangeGate(tolerance float64) *ChangeGate {
	if tolerance <= 0 || math.IsNaN(tolerance) {
		tolerance = DefaultTolerance
	}
	return &ChangeGate{tolerance: tolerance}
}

// Evaluate reports whether raw, rounded to a whole degree, differs from the
// stable baseline by more than the tolerance. The baseline is advanced to the
// rounded value whatever the outcome.
//
// Values are compared as plain numbers: 359 followed by 1 is a delta of 358.
func (g *ChangeGate) Evaluate(raw float64) bool {
	r := math.Round(raw)
	turned := math.Abs(g.stable-r) > g.tolerance
	g.stable = r
	return turned
}

// Stable returns the current baseline.
func (g *ChangeGate) Stable() float64 { return g.stable }

// Tolerance returns the configured threshold in degrees.
func (g *ChangeGate) Tolerance() float64 { return g.tolerance }
