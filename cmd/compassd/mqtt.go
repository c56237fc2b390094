package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"compassd/internal/heading"
)

// ============================================================================
// MQTT - heading/position subscriber and state publisher
// ============================================================================
// Inbound payloads on mqtt.heading_topic may be:
//   - a bare number:            "273.5"
//   - a heading object:         {"heading": 273.5}
//   - an orientation pose:      {"roll": 0, "pitch": 0, "yaw": 273.5}
//   - a GPS fix (course):       {"lat": .., "lon": .., "course_deg": 273.5}
//
// Inbound payloads on mqtt.location_topic are GPS fixes:
//   {"lat": 40.9, "lon": -74.3, "validity": "A"}
//
// Outbound topics under mqtt.publish_prefix:
//   <prefix>/needle     resting needle (or every frame with publish_frames)
//   <prefix>/turn       every change that passed the gate
//   <prefix>/location   retained
//   <prefix>/day_phase  retained
// ============================================================================

var errNoHeadingField = errors.New("payload has no heading, yaw or course_deg field")

// parseMQTTHeading extracts a heading in degrees from an MQTT payload.
func parseMQTTHeading(payload []byte) (float64, error) {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 {
		return 0, errors.New("empty payload")
	}

	var deg float64
	if p[0] == '{' {
		var m struct {
			Heading   *float64 `json:"heading"`
			Yaw       *float64 `json:"yaw"`
			CourseDeg *float64 `json:"course_deg"`
		}
		if err := json.Unmarshal(p, &m); err != nil {
			return 0, fmt.Errorf("decode heading payload: %w", err)
		}
		switch {
		case m.Heading != nil:
			deg = *m.Heading
		case m.Yaw != nil:
			deg = *m.Yaw
		case m.CourseDeg != nil:
			deg = *m.CourseDeg
		default:
			return 0, errNoHeadingField
		}
	} else {
		v, err := strconv.ParseFloat(string(p), 64)
		if err != nil {
			return 0, fmt.Errorf("parse heading: %w", err)
		}
		deg = v
	}

	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("heading is not finite: %v", deg)
	}
	return deg, nil
}

// parseMQTTLocation extracts a position from a GPS fix payload. A fix with
// a validity other than "A" is rejected.
func parseMQTTLocation(payload []byte) (float64, float64, error) {
	var fix struct {
		Latitude  *float64 `json:"lat"`
		Longitude *float64 `json:"lon"`
		Validity  string   `json:"validity"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(payload), &fix); err != nil {
		return 0, 0, fmt.Errorf("decode location payload: %w", err)
	}
	if fix.Latitude == nil || fix.Longitude == nil {
		return 0, 0, errors.New("location payload needs lat and lon")
	}
	if fix.Validity != "" && fix.Validity != "A" {
		return 0, 0, fmt.Errorf("fix not valid (validity=%q)", fix.Validity)
	}
	return *fix.Latitude, *fix.Longitude, nil
}

// mqttMessageHandler turns messages on the configured topics into events.
// Sends never block the paho callback goroutine.
func mqttMessageHandler(cfg MQTTConfig, events chan<- Event, logger *slog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var ev Event
		switch msg.Topic() {
		case cfg.HeadingTopic:
			deg, err := parseMQTTHeading(msg.Payload())
			if err != nil {
				logger.Debug("mqtt heading ignored", "topic", msg.Topic(), "error", err)
				return
			}
			ev = HeadingSample{Degrees: deg, Source: sourceMQTT}

		case cfg.LocationTopic:
			lat, lon, err := parseMQTTLocation(msg.Payload())
			if err != nil {
				logger.Debug("mqtt location ignored", "topic", msg.Topic(), "error", err)
				return
			}
			ev = LocationObserved{Latitude: lat, Longitude: lon, Source: sourceMQTT}

		default:
			return
		}

		select {
		case events <- ev:
		default:
			logger.Warn("mqtt event dropped: queue full", "topic", msg.Topic())
		}
	}
}

// newMQTTClient builds a client that (re)subscribes on every connect and
// reports connection state to the daemon.
func newMQTTClient(cfg MQTTConfig, events chan<- Event, logger *slog.Logger) mqtt.Client {
	handler := mqttMessageHandler(cfg, events, logger)

	post := func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(defaultRetryDelayMS) * time.Millisecond)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		for _, topic := range []string{cfg.HeadingTopic, cfg.LocationTopic} {
			if topic == "" {
				continue
			}
			if token := c.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
				logger.Error("mqtt subscribe failed", "topic", topic, "error", token.Error())
				post(SourceFailed{Source: sourceMQTT, Err: token.Error(), At: time.Now()})
				return
			}
			logger.Info("mqtt subscribed", "topic", topic)
		}
		post(SourceConnected{Source: sourceMQTT, At: time.Now()})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
		post(SourceFailed{Source: sourceMQTT, Err: err, At: time.Now()})
	})

	return mqtt.NewClient(opts)
}

// runMQTTClient connects the client and keeps it connected until ctx is
// canceled. Paho owns reconnects.
func runMQTTClient(ctx context.Context, client mqtt.Client, logger *slog.Logger) error {
	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(250)
		return nil
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()
	logger.Info("mqtt disconnecting")
	client.Disconnect(250)
	return nil
}

// mqttPublisher is the slice of mqtt.Client the publisher needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type mqttNeedlePayload struct {
	Bearing  float64   `json:"bearing"`
	Angle    float64   `json:"angle"`
	Running  bool      `json:"running"`
	Cardinal string    `json:"cardinal"`
	At       time.Time `json:"at"`
}

type mqttTurnPayload struct {
	From   float64   `json:"from"`
	To     float64   `json:"to"`
	Delta  float64   `json:"delta"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

type mqttLocationPayload struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	DMS       string    `json:"dms"`
	Source    string    `json:"source,omitempty"`
	At        time.Time `json:"at"`
}

type mqttDayPhasePayload struct {
	Phase   string     `json:"phase"`
	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`
	At      time.Time  `json:"at"`
}

// mqttMessage maps a broadcast to (topic, retained, payload). ok is false
// for broadcasts that are not published.
func mqttMessage(prefix string, publishFrames bool, b StateBroadcast) (topic string, retained bool, payload any, ok bool) {
	switch ev := b.(type) {
	case BroadcastNeedle:
		if ev.Running && !publishFrames {
			return "", false, nil, false
		}
		return prefix + "/needle", !ev.Running, mqttNeedlePayload{
			Bearing:  ev.Bearing,
			Angle:    ev.Angle,
			Running:  ev.Running,
			Cardinal: heading.Cardinal(ev.Bearing),
			At:       ev.At.UTC(),
		}, true

	case BroadcastTurn:
		return prefix + "/turn", false, mqttTurnPayload{
			From: ev.From, To: ev.To, Delta: ev.Delta, Source: ev.Source, At: ev.At.UTC(),
		}, true

	case BroadcastLocation:
		return prefix + "/location", true, mqttLocationPayload{
			Latitude: ev.Latitude, Longitude: ev.Longitude, DMS: ev.DMS, Source: ev.Source, At: ev.At.UTC(),
		}, true

	case BroadcastDayPhase:
		p := mqttDayPhasePayload{Phase: ev.Phase, At: ev.At.UTC()}
		if !ev.Sunrise.IsZero() {
			t := ev.Sunrise
			p.Sunrise = &t
		}
		if !ev.Sunset.IsZero() {
			t := ev.Sunset
			p.Sunset = &t
		}
		return prefix + "/day_phase", true, p, true

	default:
		return "", false, nil, false
	}
}

// runMQTTPublisher publishes broadcasts from src until ctx is canceled or
// src is closed. A publish that has not completed within a second is logged
// and abandoned.
func runMQTTPublisher(ctx context.Context, pub mqttPublisher, prefix string, publishFrames bool, src <-chan StateBroadcast, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-src:
			if !ok {
				return
			}
			topic, retained, payload, ok := mqttMessage(prefix, publishFrames, b)
			if !ok {
				continue
			}
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Warn("mqtt payload marshal failed", "topic", topic, "error", err)
				continue
			}
			token := pub.Publish(topic, 0, retained, data)
			if !token.WaitTimeout(time.Second) {
				logger.Warn("mqtt publish timed out", "topic", topic)
				continue
			}
			if err := token.Error(); err != nil {
				logger.Warn("mqtt publish failed", "topic", topic, "error", err)
			}
		}
	}
}
