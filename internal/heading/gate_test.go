package heading

import "testing"

// TestChangeGate_BaselineFollowsEverySample tests the documented example:
// a small step is absorbed, the next larger step triggers.
func TestChangeGate_BaselineFollowsEverySample(t *testing.T) {
	g := NewChangeGate(2)

	if g.Evaluate(1) {
		t.Fatalf("expected no turn for delta 1")
	}
	if g.Stable() != 1 {
		t.Fatalf("expected baseline 1, got %v", g.Stable())
	}

	if !g.Evaluate(4) {
		t.Fatalf("expected turn for delta 3 > 2")
	}
	if g.Stable() != 4 {
		t.Fatalf("expected baseline 4, got %v", g.Stable())
	}
}

// TestChangeGate_FirstSampleAgainstZero tests that the first sample is compared
// against a zero baseline.
func TestChangeGate_FirstSampleAgainstZero(t *testing.T) {
	if NewChangeGate(2).Evaluate(2.4) {
		t.Errorf("expected 2.4 (rounds to 2) not to trigger from zero baseline")
	}
	if !NewChangeGate(2).Evaluate(3) {
		t.Errorf("expected 3 to trigger from zero baseline")
	}
	// math.Round rounds half away from zero.
	if !NewChangeGate(2).Evaluate(2.5) {
		t.Errorf("expected 2.5 (rounds to 3) to trigger from zero baseline")
	}
}

// TestChangeGate_SlowDriftNeverTriggers tests the per-sample (non cumulative)
// nature of the gate.
func TestChangeGate_SlowDriftNeverTriggers(t *testing.T) {
	g := NewChangeGate(2)
	for h := 1.0; h <= 90; h++ {
		if g.Evaluate(h) {
			t.Fatalf("unexpected turn at %v", h)
		}
	}
	if g.Stable() != 90 {
		t.Fatalf("expected baseline 90 after drift, got %v", g.Stable())
	}
}

// TestChangeGate_BaselineAdvancesOnTurn tests that a triggering sample also
// becomes the baseline.
func TestChangeGate_BaselineAdvancesOnTurn(t *testing.T) {
	g := NewChangeGate(2)
	if !g.Evaluate(100.4) {
		t.Fatalf("expected turn")
	}
	if g.Stable() != 100 {
		t.Fatalf("expected baseline 100, got %v", g.Stable())
	}
	if g.Evaluate(101.6) {
		t.Fatalf("expected no turn for delta 2")
	}
}

// TestChangeGate_NoWraparound tests that the gate compares plain numbers.
func TestChangeGate_NoWraparound(t *testing.T) {
	g := NewChangeGate(2)
	g.Evaluate(359)
	if !g.Evaluate(1) {
		t.Fatalf("expected 359 -> 1 to count as a turn")
	}
}

// TestNewChangeGate_DefaultTolerance tests the default threshold.
func TestNewChangeGate_DefaultTolerance(t *testing.T) {
	if got := NewChangeGate(0).Tolerance(); got != DefaultTolerance {
		t.Fatalf("expected default tolerance %v, got %v", DefaultTolerance, got)
	}
	if got := NewChangeGate(-5).Tolerance(); got != DefaultTolerance {
		t.Fatalf("expected default tolerance %v, got %v", DefaultTolerance, got)
	}
	if got := NewChangeGate(5).Tolerance(); got != 5 {
		t.Fatalf("expected tolerance 5, got %v", got)
	}
}
