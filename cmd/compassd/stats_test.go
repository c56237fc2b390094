package main

import (
	"math"
	"testing"
)

func TestCircularStats(t *testing.T) {
	if s := circularStats(nil); s.Count != 0 {
		t.Fatalf("empty: %+v", s)
	}

	s := circularStats([]float64{350, 10})
	if s.Count != 2 {
		t.Fatalf("count = %d", s.Count)
	}
	if d := math.Min(s.CircularMean, 360-s.CircularMean); d > 1e-9 {
		t.Fatalf("mean of 350 and 10 = %v; want 0", s.CircularMean)
	}
	if s.Resultant <= 0.9 || s.Spread <= 0 || s.Spread > 20 {
		t.Fatalf("unexpected spread: %+v", s)
	}

	s = circularStats([]float64{90, 90, 90})
	if math.Abs(s.CircularMean-90) > 1e-9 || s.Spread != 0 {
		t.Fatalf("identical samples: %+v", s)
	}

	s = circularStats([]float64{0, 180})
	if s.Spread != maxSpreadDeg {
		t.Fatalf("opposite samples should report max spread, got %+v", s)
	}
}

func TestPushWindow(t *testing.T) {
	var w []float64
	for i := 1; i <= 5; i++ {
		w = pushWindow(w, float64(i), 3)
	}
	if len(w) != 3 || w[0] != 3 || w[2] != 5 {
		t.Fatalf("window = %v; want [3 4 5]", w)
	}

	if w = pushWindow(w, 6, 0); len(w) != 0 {
		t.Fatalf("size 0 should empty the window, got %v", w)
	}
}
