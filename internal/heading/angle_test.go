package heading

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{370, 10},
		{720, 0},
		{-10, 350},
		{-90, 270},
		{-370, 350},
		{359.5, 359.5},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	if got := Normalize(-360); math.Signbit(got) {
		t.Errorf("Normalize(-360) returned negative zero")
	}
}

func TestShortestTarget(t *testing.T) {
	cases := []struct {
		start, target, want float64
	}{
		{350, 10, 370},
		{10, 350, -10},
		{0, 90, 90},
		{0, 180, 180},
		{0, -180, -180},
		{0, 350, -10},
		{370, 10, 10},
		{0, 1080, 0},
		{90, -630, 90},
	}
	for _, c := range cases {
		got := ShortestTarget(c.start, c.target)
		if got != c.want {
			t.Errorf("ShortestTarget(%v, %v) = %v, want %v", c.start, c.target, got, c.want)
		}
		if math.Abs(got-c.start) > 180 {
			t.Errorf("ShortestTarget(%v, %v) = %v travels more than 180", c.start, c.target, got)
		}
	}
}

func TestDifferenceAndSignedDelta(t *testing.T) {
	if got := Difference(350, 10); got != 20 {
		t.Errorf("Difference(350, 10) = %v, want 20", got)
	}
	if got := Difference(10, 350); got != 20 {
		t.Errorf("Difference(10, 350) = %v, want 20", got)
	}
	if got := Difference(0, 180); got != 180 {
		t.Errorf("Difference(0, 180) = %v, want 180", got)
	}
	if got := SignedDelta(350, 10); got != 20 {
		t.Errorf("SignedDelta(350, 10) = %v, want 20", got)
	}
	if got := SignedDelta(10, 350); got != -20 {
		t.Errorf("SignedDelta(10, 350) = %v, want -20", got)
	}
}

func TestCardinal(t *testing.T) {
	cases := map[float64]string{
		0:    "N",
		22.4: "N",
		44:   "NE",
		90:   "E",
		180:  "S",
		-90:  "W",
		350:  "N",
		315:  "NW",
	}
	for in, want := range cases {
		if got := Cardinal(in); got != want {
			t.Errorf("Cardinal(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNeedlesAt_SouthOpposite(t *testing.T) {
	n := NeedlesAt(370)
	if n.North != 370 || n.South != 550 {
		t.Fatalf("unexpected needles %+v", n)
	}
	if Difference(n.North, n.South) != 180 {
		t.Fatalf("needles are not opposed: %+v", n)
	}
}
