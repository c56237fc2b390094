package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Sensor WebSocket source
// ============================================================================
// Reads orientation frames pushed by a phone/IMU bridge. Accepted frames:
//   {"values": [azimuth, pitch, roll]}   (orientation sensor, degrees)
//   {"heading": 273.5}
// ============================================================================

type sensorMessage struct {
	Values  []float64 `json:"values"`
	Heading *float64  `json:"heading"`
}

// parseSensorMessage extracts the heading from a sensor frame.
func parseSensorMessage(b []byte) (float64, error) {
	var m sensorMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return 0, fmt.Errorf("decode sensor frame: %w", err)
	}

	var deg float64
	switch {
	case m.Heading != nil:
		deg = *m.Heading
	case len(m.Values) > 0:
		deg = m.Values[0]
	default:
		return 0, errors.New("sensor frame has no heading or values")
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("heading is not finite: %v", deg)
	}
	return deg, nil
}

// dialSensor establishes a WebSocket connection to the sensor bridge.
func dialSensor(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ws url: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readSensor forwards headings from conn until the connection fails.
func readSensor(ctx context.Context, conn *websocket.Conn, events chan<- Event, logger *slog.Logger) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		deg, err := parseSensorMessage(msg)
		if err != nil {
			logger.Debug("sensor frame ignored", "error", err)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- HeadingSample{Degrees: deg, Source: sourceSensorWS}:
		}
	}
}

// runSensorWSSource keeps a connection to the sensor bridge, reconnecting
// after failures until ctx is canceled.
func runSensorWSSource(ctx context.Context, cfg SensorWSConfig, events chan<- Event, logger *slog.Logger) error {
	retry := time.Duration(cfg.RetryDelayMS) * time.Millisecond
	if retry <= 0 {
		retry = time.Duration(defaultRetryDelayMS) * time.Millisecond
	}

	post := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	failures := 0
	for {
		conn, err := dialSensor(ctx, cfg.URL)
		if err == nil {
			failures = 0
			logger.Info("connected to sensor websocket", "url", cfg.URL)
			post(SourceConnected{Source: sourceSensorWS, At: time.Now()})

			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			err = readSensor(ctx, conn, events, logger)
			stop()
			_ = conn.Close()
		}

		if ctx.Err() != nil {
			return nil
		}
		failures++
		logger.Warn("sensor websocket failed; retrying...", "error", err, "failures", failures)
		post(SourceFailed{Source: sourceSensorWS, Err: err, At: time.Now()})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}
