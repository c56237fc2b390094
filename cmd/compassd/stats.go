package main

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"compassd/internal/heading"
)

// SampleStats summarizes the recent raw headings. Averages are circular, so
// 350 and 10 average to 0, not 180.
type SampleStats struct {
	Count        int     `json:"count"`
	CircularMean float64 `json:"circular_mean"`
	// Spread is the circular standard deviation in degrees.
	Spread float64 `json:"spread"`
	// Resultant is the mean resultant length in [0, 1]; 1 means all samples agree.
	Resultant float64 `json:"resultant"`
}

// maxSpreadDeg is reported when the samples cancel out completely.
const maxSpreadDeg = 180.0

func circularStats(samples []float64) SampleStats {
	n := len(samples)
	if n == 0 {
		return SampleStats{}
	}

	rad := make([]float64, n)
	sins := make([]float64, n)
	coss := make([]float64, n)
	for i, d := range samples {
		r := d * math.Pi / 180
		rad[i] = r
		sins[i] = math.Sin(r)
		coss[i] = math.Cos(r)
	}

	mean := heading.Normalize(stat.CircularMean(rad, nil) * 180 / math.Pi)
	r := math.Hypot(stat.Mean(sins, nil), stat.Mean(coss, nil))

	var spread float64
	switch {
	case r >= 1:
		spread = 0
	case r < 1e-12:
		spread = maxSpreadDeg
	default:
		spread = math.Min(math.Sqrt(-2*math.Log(r))*180/math.Pi, maxSpreadDeg)
	}

	return SampleStats{
		Count:        n,
		CircularMean: mean,
		Spread:       spread,
		Resultant:    math.Min(r, 1),
	}
}

// pushWindow appends v and keeps at most size trailing values.
func pushWindow(window []float64, v float64, size int) []float64 {
	if size <= 0 {
		return window[:0]
	}
	window = append(window, v)
	if len(window) > size {
		window = append(window[:0], window[len(window)-size:]...)
	}
	return window
}
