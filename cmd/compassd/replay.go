package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gocarina/gocsv"
)

// traceRow is one line of a recorded heading trace:
//
//	offset_ms,heading,lat,lon
//	0,12.5,,
//	250,14.0,40.9,-74.3
//
// heading, lat and lon may be blank. lat and lon must be set together.
type traceRow struct {
	OffsetMS  int64  `csv:"offset_ms"`
	Heading   string `csv:"heading"`
	Latitude  string `csv:"lat"`
	Longitude string `csv:"lon"`
}

// traceStep is a validated trace row.
type traceStep struct {
	Offset time.Duration
	Events []Event
}

// loadTrace parses a CSV trace. Offsets must be non-decreasing.
func loadTrace(r io.Reader) ([]traceStep, error) {
	var rows []*traceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("trace is empty")
	}

	steps := make([]traceStep, 0, len(rows))
	var prev int64
	for i, row := range rows {
		line := i + 2 // header is line 1
		if row.OffsetMS < 0 || row.OffsetMS < prev {
			return nil, fmt.Errorf("trace line %d: offset_ms must be non-decreasing and >= 0", line)
		}
		prev = row.OffsetMS

		var evs []Event
		if h := strings.TrimSpace(row.Heading); h != "" {
			v, err := strconv.ParseFloat(h, 64)
			if err != nil {
				return nil, fmt.Errorf("trace line %d: heading: %w", line, err)
			}
			evs = append(evs, HeadingSample{Degrees: v, Source: sourceReplay})
		}

		lat, lon := strings.TrimSpace(row.Latitude), strings.TrimSpace(row.Longitude)
		if (lat == "") != (lon == "") {
			return nil, fmt.Errorf("trace line %d: lat and lon must be set together", line)
		}
		if lat != "" {
			la, err := strconv.ParseFloat(lat, 64)
			if err != nil {
				return nil, fmt.Errorf("trace line %d: lat: %w", line, err)
			}
			lo, err := strconv.ParseFloat(lon, 64)
			if err != nil {
				return nil, fmt.Errorf("trace line %d: lon: %w", line, err)
			}
			evs = append(evs, LocationObserved{Latitude: la, Longitude: lo, Source: sourceReplay})
		}

		steps = append(steps, traceStep{Offset: time.Duration(row.OffsetMS) * time.Millisecond, Events: evs})
	}
	return steps, nil
}

// loadTraceFile opens and parses a trace file.
func loadTraceFile(path string) ([]traceStep, error) {
	f, err := os.Open(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return loadTrace(f)
}

// runReplay plays steps into events, scaled by speed (2 = twice as fast).
// With loop set the trace restarts after the last step.
func runReplay(ctx context.Context, steps []traceStep, speed float64, loop bool, clk clock.Clock, events chan<- Event, logger *slog.Logger) error {
	if len(steps) == 0 {
		return nil
	}
	if speed <= 0 {
		speed = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	if loop && steps[len(steps)-1].Offset <= 0 {
		logger.Warn("replay trace has no duration; not looping")
		loop = false
	}

	for pass := 1; ; pass++ {
		start := clk.Now()
		logger.Info("replay started", "steps", len(steps), "pass", pass, "speed", speed)

		for _, st := range steps {
			due := start.Add(time.Duration(float64(st.Offset) / speed))
			if wait := due.Sub(clk.Now()); wait > 0 {
				t := clk.Timer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
			}

			for _, ev := range st.Events {
				select {
				case <-ctx.Done():
					return nil
				case events <- ev:
				}
			}
		}

		if !loop {
			logger.Info("replay finished", "steps", len(steps))
			return nil
		}
	}
}
