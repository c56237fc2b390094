package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"compassd/internal/heading"
	"compassd/internal/solar"
)

// Config is the top-level YAML configuration for the compassd daemon.
//
// Keep defaults and validation centralized so the rest of the code can
// assume a well-formed config.
type Config struct {
	Heading   HeadingConfig   `yaml:"heading"`
	Animation AnimationConfig `yaml:"animation"`
	Location  LocationConfig  `yaml:"location"`

	// Heading sources
	MQTT     MQTTConfig     `yaml:"mqtt"`
	NMEA     NMEAConfig     `yaml:"nmea"`
	SensorWS SensorWSConfig `yaml:"sensor_ws"`
	Replay   ReplayConfig   `yaml:"replay"`
	Knob     KnobFileConfig `yaml:"knob"`

	// Surfaces
	IPC  IPCConfig  `yaml:"ipc"`
	HTTP HTTPConfig `yaml:"http"`

	TurnHook TurnHookConfig `yaml:"turn_hook"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type HeadingConfig struct {
	ToleranceDeg float64 `yaml:"tolerance_deg"` // 0 selects the default
	StatsWindow  int     `yaml:"stats_window"`
}

type AnimationConfig struct {
	DurationMS int    `yaml:"duration_ms"`
	FrameMS    int    `yaml:"frame_ms"`
	Easing     string `yaml:"easing"` // sine|cubic|linear
}

type LocationConfig struct {
	// Static position; nil means "wait for a source to report one".
	Latitude   *float64 `yaml:"lat,omitempty"`
	Longitude  *float64 `yaml:"lon,omitempty"`
	Zenith     string   `yaml:"zenith"` // official|civil|nautical|astronomical
	RefreshSec int      `yaml:"refresh_sec"`
}

type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	HeadingTopic  string `yaml:"heading_topic"`
	LocationTopic string `yaml:"location_topic,omitempty"`

	// PublishPrefix enables the outbound publisher when non-empty.
	PublishPrefix string `yaml:"publish_prefix,omitempty"`
	// PublishFrames publishes every needle frame instead of only resting ones.
	PublishFrames bool `yaml:"publish_frames,omitempty"`
}

type NMEAConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exactly one of Device (serial) or Address (TCP host:port).
	Device  string `yaml:"device,omitempty"`
	Baud    int    `yaml:"baud,omitempty"`
	Address string `yaml:"address,omitempty"`

	// MinSpeedKnots is the speed below which course over ground is ignored.
	MinSpeedKnots float64 `yaml:"min_speed_knots"`
	RetryDelayMS  int     `yaml:"retry_delay_ms"`
}

type SensorWSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	RetryDelayMS int    `yaml:"retry_delay_ms"`
}

type ReplayConfig struct {
	File  string  `yaml:"file,omitempty"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop,omitempty"`
}

type KnobFileConfig struct {
	Devices            []string `yaml:"devices,omitempty"`
	DegreesPerStep     float64  `yaml:"degrees_per_step"`
	VelocityWindowMS   int      `yaml:"velocity_window_ms"`
	VelocityThreshold  int      `yaml:"velocity_threshold"`
	VelocityMultiplier float64  `yaml:"velocity_multiplier"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// Port 0 disables the HTTP server.
	Port       int `yaml:"port"`
	CoalesceMS int `yaml:"coalesce_ms"`
}

type TurnHookConfig struct {
	Command   string   `yaml:"command,omitempty"`
	Args      []string `yaml:"args,omitempty"`
	TimeoutMS int      `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Heading: HeadingConfig{
			ToleranceDeg: defaultToleranceDeg,
			StatsWindow:  defaultStatsWindow,
		},
		Animation: AnimationConfig{
			DurationMS: defaultDurationMS,
			FrameMS:    defaultFrameMS,
			Easing:     defaultEasing,
		},
		Location: LocationConfig{
			Zenith:     "official",
			RefreshSec: defaultSolarRefreshSec,
		},
		MQTT: MQTTConfig{
			Broker:       "tcp://localhost:1883",
			ClientID:     "compassd",
			HeadingTopic: "compass/heading",
		},
		NMEA: NMEAConfig{
			Baud:          defaultNMEABaud,
			MinSpeedKnots: defaultNMEAMinSpeedKnots,
			RetryDelayMS:  defaultRetryDelayMS,
		},
		SensorWS: SensorWSConfig{
			RetryDelayMS: defaultRetryDelayMS,
		},
		Replay: ReplayConfig{
			Speed: 1.0,
		},
		Knob: KnobFileConfig{
			DegreesPerStep:     defaultKnobDegreesPerStep,
			VelocityWindowMS:   defaultKnobVelocityWindowMS,
			VelocityThreshold:  defaultKnobVelocityThreshold,
			VelocityMultiplier: defaultKnobVelocityMultiplier,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/compassd.sock",
		},
		HTTP: HTTPConfig{
			Port: 3002,
		},
		TurnHook: TurnHookConfig{
			TimeoutMS: defaultTurnHookTimeoutMS,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Only one YAML document is allowed.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil // empty file
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds command line overrides. A nil pointer means the flag
// was not set; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	ToleranceDeg *float64
	DurationMS   *int
	FrameMS      *int
	Easing       *string

	Latitude  *float64
	Longitude *float64
	Zenith    *string

	MQTTBroker       *string
	MQTTHeadingTopic *string
	NMEADevice       *string
	NMEAAddress      *string
	SensorWSURL      *string
	ReplayFile       *string
	KnobDevice       *string

	IPCSocketPath *string
	HTTPPort      *int

	TurnHook *string

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg. Setting a source address also
// enables that source.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.ToleranceDeg != nil {
		cfg.Heading.ToleranceDeg = *o.ToleranceDeg
	}
	if o.DurationMS != nil {
		cfg.Animation.DurationMS = *o.DurationMS
	}
	if o.FrameMS != nil {
		cfg.Animation.FrameMS = *o.FrameMS
	}
	if o.Easing != nil {
		cfg.Animation.Easing = *o.Easing
	}

	if o.Latitude != nil {
		v := *o.Latitude
		cfg.Location.Latitude = &v
	}
	if o.Longitude != nil {
		v := *o.Longitude
		cfg.Location.Longitude = &v
	}
	if o.Zenith != nil {
		cfg.Location.Zenith = *o.Zenith
	}

	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
		cfg.MQTT.Enabled = true
	}
	if o.MQTTHeadingTopic != nil {
		cfg.MQTT.HeadingTopic = *o.MQTTHeadingTopic
	}
	if o.NMEADevice != nil {
		cfg.NMEA.Device = *o.NMEADevice
		cfg.NMEA.Address = ""
		cfg.NMEA.Enabled = true
	}
	if o.NMEAAddress != nil {
		cfg.NMEA.Address = *o.NMEAAddress
		cfg.NMEA.Device = ""
		cfg.NMEA.Enabled = true
	}
	if o.SensorWSURL != nil {
		cfg.SensorWS.URL = *o.SensorWSURL
		cfg.SensorWS.Enabled = true
	}
	if o.ReplayFile != nil {
		cfg.Replay.File = *o.ReplayFile
	}
	if o.KnobDevice != nil {
		cfg.Knob.Devices = []string{*o.KnobDevice}
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.TurnHook != nil {
		cfg.TurnHook.Command = *o.TurnHook
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.File = *o.LogFile
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Heading
	if math.IsNaN(c.Heading.ToleranceDeg) || c.Heading.ToleranceDeg < 0 {
		return errors.New("heading.tolerance_deg must be >= 0")
	}
	if c.Heading.StatsWindow < 0 {
		return errors.New("heading.stats_window must be >= 0")
	}

	// Animation
	if c.Animation.DurationMS <= 0 {
		return errors.New("animation.duration_ms must be > 0")
	}
	if c.Animation.FrameMS <= 0 || c.Animation.FrameMS > c.Animation.DurationMS {
		return errors.New("animation.frame_ms must be > 0 and <= animation.duration_ms")
	}
	if _, err := heading.EasingByName(c.Animation.Easing); err != nil {
		return fmt.Errorf("animation.easing: %w", err)
	}

	// Location
	if (c.Location.Latitude == nil) != (c.Location.Longitude == nil) {
		return errors.New("location.lat and location.lon must be set together")
	}
	if c.Location.Latitude != nil {
		if _, err := solar.NewLocation(*c.Location.Latitude, *c.Location.Longitude); err != nil {
			return fmt.Errorf("location: %w", err)
		}
	}
	if _, err := solar.ZenithByName(c.Location.Zenith); err != nil {
		return fmt.Errorf("location.zenith: %w", err)
	}
	if c.Location.RefreshSec < 0 {
		return errors.New("location.refresh_sec must be >= 0")
	}

	// Sources
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.HeadingTopic == "" && c.MQTT.LocationTopic == "" && c.MQTT.PublishPrefix == "" {
			return errors.New("mqtt.enabled is true but no topic or publish_prefix is set")
		}
	}
	if c.NMEA.Enabled {
		if (c.NMEA.Device == "") == (c.NMEA.Address == "") {
			return errors.New("nmea: exactly one of nmea.device or nmea.address must be set")
		}
		if c.NMEA.Device != "" && c.NMEA.Baud <= 0 {
			return errors.New("nmea.baud must be > 0")
		}
		if c.NMEA.MinSpeedKnots < 0 {
			return errors.New("nmea.min_speed_knots must be >= 0")
		}
	}
	if c.SensorWS.Enabled && c.SensorWS.URL == "" {
		return errors.New("sensor_ws.enabled is true but sensor_ws.url is empty")
	}
	if c.Replay.File != "" && c.Replay.Speed <= 0 {
		return errors.New("replay.speed must be > 0")
	}
	for i, dev := range c.Knob.Devices {
		if dev == "" {
			return fmt.Errorf("knob.devices[%d] is empty", i)
		}
	}
	if c.Knob.DegreesPerStep <= 0 {
		return errors.New("knob.degrees_per_step must be > 0")
	}
	if c.Knob.VelocityWindowMS < 0 || c.Knob.VelocityThreshold < 0 || c.Knob.VelocityMultiplier < 0 {
		return errors.New("knob.velocity_* values must be >= 0")
	}

	// Surfaces
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}
	if c.HTTP.CoalesceMS < 0 {
		return errors.New("http.coalesce_ms must be >= 0")
	}
	if c.TurnHook.Command != "" && c.TurnHook.TimeoutMS <= 0 {
		return errors.New("turn_hook.timeout_ms must be > 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return errors.New("logging.max_size_mb must be > 0")
	}

	return nil
}

// ToAnimatorConfig converts the animation section into the animator config.
// Call Validate first; an unknown easing falls back to sine.
func (c *Config) ToAnimatorConfig() heading.AnimatorConfig {
	easing, err := heading.EasingByName(c.Animation.Easing)
	if err != nil {
		easing = heading.SineOut
	}
	return heading.AnimatorConfig{
		Duration:     time.Duration(c.Animation.DurationMS) * time.Millisecond,
		TickInterval: time.Duration(c.Animation.FrameMS) * time.Millisecond,
		Easing:       easing,
	}
}

// ToReducerConfig converts the file config into the reducer policy.
func (c *Config) ToReducerConfig() ReducerConfig {
	z, err := solar.ZenithByName(c.Location.Zenith)
	if err != nil {
		z = solar.Official
	}
	return ReducerConfig{
		Tolerance: c.Heading.ToleranceDeg,
		Animator:  c.ToAnimatorConfig(),
		Zenith:    z,
		Knob: KnobConfig{
			DegreesPerStep:     c.Knob.DegreesPerStep,
			VelocityWindow:     time.Duration(c.Knob.VelocityWindowMS) * time.Millisecond,
			VelocityThreshold:  c.Knob.VelocityThreshold,
			VelocityMultiplier: c.Knob.VelocityMultiplier,
		},
		TurnHook:    c.TurnHook.Command != "",
		StatsWindow: c.Heading.StatsWindow,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
