package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"compassd/internal/solar"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("compassd v%s\n", version)
	fmt.Println("Compass heading daemon: change gate, needle animation and day phase")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  compassd [OPTIONS]")
	fmt.Println("  compassd solar [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Collects raw compass headings from MQTT, NMEA, a sensor websocket, a")
	fmt.Println("  recorded trace, a rotary knob, IPC or HTTP. Headings that move more")
	fmt.Println("  than the tolerance from the last stable heading count as turns; the")
	fmt.Println("  needle is eased to every new heading along the shortest arc and the")
	fmt.Println("  frames are pushed to websocket and MQTT clients.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -tolerance float")
	fmt.Printf("        Change gate tolerance in degrees (default %.1f)\n", defaultToleranceDeg)
	fmt.Println()
	fmt.Println("  -duration-ms int")
	fmt.Printf("        Needle transition duration in ms (default %d)\n", defaultDurationMS)
	fmt.Println()
	fmt.Println("  -frame-ms int")
	fmt.Printf("        Frame interval while animating in ms (default %d)\n", defaultFrameMS)
	fmt.Println()
	fmt.Println("  -easing string")
	fmt.Println("        Easing curve: sine|cubic|linear (default \"sine\")")
	fmt.Println()
	fmt.Println("  -lat float, -lon float")
	fmt.Println("        Static position for sunrise/sunset (decimal degrees)")
	fmt.Println()
	fmt.Println("  -zenith string")
	fmt.Println("        Sun zenith: official|civil|nautical|astronomical (default \"official\")")
	fmt.Println()
	fmt.Println("  -mqtt-broker string, -mqtt-heading-topic string")
	fmt.Println("        Subscribe to headings over MQTT (enables the MQTT source)")
	fmt.Println()
	fmt.Println("  -nmea-device string | -nmea-address host:port")
	fmt.Println("        Read NMEA 0183 from a serial port or a TCP stream")
	fmt.Println()
	fmt.Println("  -sensor-ws-url string")
	fmt.Println("        Read orientation frames from a sensor websocket")
	fmt.Println()
	fmt.Println("  -replay string")
	fmt.Println("        Replay a CSV heading trace (offset_ms,heading,lat,lon)")
	fmt.Println()
	fmt.Println("  -knob-device string")
	fmt.Println("        Linux input device of a rotary encoder")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/compassd.sock\")")
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Println("        HTTP/WebSocket port, 0 disables (default 3002)")
	fmt.Println()
	fmt.Println("  -turn-hook string")
	fmt.Println("        Program to run on every turn (COMPASS_TURN_FROM/TO/DELTA in env)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-file string")
	fmt.Println("        Also write logs to this file (rotated)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  solar -lat LAT -lon LON [-date YYYY-MM-DD] [-zenith NAME]")
	fmt.Println("        Print sunrise, sunset and the day phase in local time")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  compassd -config ~/.config/compassd.yaml")
	fmt.Println("  compassd -nmea-device /dev/ttyUSB0 -lat 40.9 -lon -74.3")
	fmt.Println("  compassd -mqtt-broker tcp://localhost:1883 -mqtt-heading-topic inertial/pose")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "solar" {
		os.Exit(runSolarSubcommand(os.Args[2:]))
	}

	// Check for version flag early (for main command)
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")

		tolerance  = flag.Float64("tolerance", defaultToleranceDeg, "Change gate tolerance in degrees")
		durationMS = flag.Int("duration-ms", defaultDurationMS, "Needle transition duration in ms")
		frameMS    = flag.Int("frame-ms", defaultFrameMS, "Frame interval while animating in ms")
		easing     = flag.String("easing", defaultEasing, "Easing curve: sine|cubic|linear")

		lat    = flag.Float64("lat", 0, "Static latitude (decimal degrees)")
		lon    = flag.Float64("lon", 0, "Static longitude (decimal degrees)")
		zenith = flag.String("zenith", "official", "Sun zenith: official|civil|nautical|astronomical")

		mqttBroker       = flag.String("mqtt-broker", "", "MQTT broker URL (enables the MQTT source)")
		mqttHeadingTopic = flag.String("mqtt-heading-topic", "", "MQTT topic carrying headings")
		nmeaDevice       = flag.String("nmea-device", "", "NMEA serial device")
		nmeaAddress      = flag.String("nmea-address", "", "NMEA TCP host:port")
		sensorWSURL      = flag.String("sensor-ws-url", "", "Sensor websocket URL")
		replayFile       = flag.String("replay", "", "CSV heading trace to replay")
		knobDevice       = flag.String("knob-device", "", "Linux input device of a rotary encoder")

		ipcSocketPath = flag.String("ipc-socket", "/tmp/compassd.sock", "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", 3002, "HTTP/WebSocket port (0 disables)")
		turnHook      = flag.String("turn-hook", "", "Program to run on every turn")

		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFile     = flag.String("log-file", "", "Also write logs to this file")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags given on the command line override the config file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tolerance":
			o.ToleranceDeg = tolerance
		case "duration-ms":
			o.DurationMS = durationMS
		case "frame-ms":
			o.FrameMS = frameMS
		case "easing":
			o.Easing = easing
		case "lat":
			o.Latitude = lat
		case "lon":
			o.Longitude = lon
		case "zenith":
			o.Zenith = zenith
		case "mqtt-broker":
			o.MQTTBroker = mqttBroker
		case "mqtt-heading-topic":
			o.MQTTHeadingTopic = mqttHeadingTopic
		case "nmea-device":
			o.NMEADevice = nmeaDevice
		case "nmea-address":
			o.NMEAAddress = nmeaAddress
		case "sensor-ws-url":
			o.SensorWSURL = sensorWSURL
		case "replay":
			o.ReplayFile = replayFile
		case "knob-device":
			o.KnobDevice = knobDevice
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "turn-hook":
			o.TurnHook = turnHook
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-file":
			o.LogFile = logFile
		}
	})

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	w, closer := logWriter(cfg.Logging)
	defer closer.Close()
	logger := setupLogger(logLevel, w)

	if err := run(cfg, logger); err != nil {
		logger.Error("compassd stopped", "error", err)
		_ = closer.Close()
		os.Exit(1)
	}
}

// run wires sources, the daemon loop and the outward surfaces, and blocks
// until a signal arrives or a component fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	clk := clock.New()

	events := make(chan Event, defaultEventsBuf)
	broadcasts := make(chan StateBroadcast, defaultBroadcastBuf)

	rcfg := cfg.ToReducerConfig()
	state := NewDaemonState(rcfg)

	env := &effectEnv{ctx: ctx, async: events, clk: clk}
	if cfg.TurnHook.Command != "" {
		env.hook = execTurnHook{
			Command: cfg.TurnHook.Command,
			Args:    cfg.TurnHook.Args,
			Timeout: time.Duration(cfg.TurnHook.TimeoutMS) * time.Millisecond,
		}
	}

	logger.Debug("starting compassd", "version", version)
	logger.Debug("configuration",
		"tolerance_deg", rcfg.Tolerance,
		"duration", rcfg.Animator.Duration,
		"frame", rcfg.Animator.TickInterval,
		"easing", cfg.Animation.Easing,
		"zenith", rcfg.Zenith.String(),
		"mqtt", cfg.MQTT.Enabled,
		"nmea", cfg.NMEA.Enabled,
		"sensor_ws", cfg.SensorWS.Enabled,
		"replay", cfg.Replay.File,
		"knob_devices", cfg.Knob.Devices,
		"turn_hook", cfg.TurnHook.Command)

	// Daemon brain.
	g.Go(func() error {
		runDaemon(ctx, events, state, daemonOptions{
			Reducer:    rcfg,
			SolarEvery: time.Duration(cfg.Location.RefreshSec) * time.Second,
			Clock:      clk,
			Effect:     env,
			Broadcasts: broadcasts,
		}, logger)
		return nil
	})

	// Broadcast consumers.
	var consumers []chan<- StateBroadcast
	var wsBroadcasts, mqttBroadcasts chan StateBroadcast
	if cfg.HTTP.Port > 0 {
		wsBroadcasts = make(chan StateBroadcast, defaultBroadcastBuf)
		consumers = append(consumers, wsBroadcasts)
	}
	if cfg.MQTT.Enabled && cfg.MQTT.PublishPrefix != "" {
		mqttBroadcasts = make(chan StateBroadcast, defaultBroadcastBuf)
		consumers = append(consumers, mqttBroadcasts)
	}
	g.Go(func() error {
		fanoutBroadcasts(ctx, broadcasts, logger, consumers...)
		return nil
	})

	// IPC.
	g.Go(func() error {
		return runIPCServer(ctx, ExpandPath(cfg.IPC.SocketPath), events, logger)
	})

	// HTTP + state websocket.
	if cfg.HTTP.Port > 0 {
		ws := NewServer(logger, events, HubConfig{})
		g.Go(func() error {
			ws.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, ws.Hub(), wsBroadcasts, time.Duration(cfg.HTTP.CoalesceMS)*time.Millisecond, clk, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Port, newHTTPMux(ws, events, logger), logger)
		})
	}

	// MQTT.
	if cfg.MQTT.Enabled {
		client := newMQTTClient(cfg.MQTT, events, logger)
		g.Go(func() error {
			return runMQTTClient(ctx, client, logger)
		})
		if mqttBroadcasts != nil {
			g.Go(func() error {
				runMQTTPublisher(ctx, client, cfg.MQTT.PublishPrefix, cfg.MQTT.PublishFrames, mqttBroadcasts, logger)
				return nil
			})
		}
	}

	// Heading sources.
	if cfg.NMEA.Enabled {
		g.Go(func() error {
			return runNMEASource(ctx, cfg.NMEA, events, logger)
		})
	}
	if cfg.SensorWS.Enabled {
		g.Go(func() error {
			return runSensorWSSource(ctx, cfg.SensorWS, events, logger)
		})
	}
	if cfg.Replay.File != "" {
		steps, err := loadTraceFile(cfg.Replay.File)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return runReplay(ctx, steps, cfg.Replay.Speed, cfg.Replay.Loop, clk, events, logger)
		})
	}
	if len(cfg.Knob.Devices) > 0 {
		g.Go(func() error {
			if err := runKnob(ctx, cfg.Knob.Devices, events, logger); err != nil {
				logger.Error("knob input stopped", "error", err)
				select {
				case events <- SourceFailed{Source: sourceKnob, Err: err, At: clk.Now()}:
				default:
				}
			}
			return nil
		})
	}

	// Static position from config.
	if cfg.Location.Latitude != nil {
		events <- LocationObserved{
			Latitude:  *cfg.Location.Latitude,
			Longitude: *cfg.Location.Longitude,
			Source:    sourceConfig,
		}
	}

	logger.Info("listening", "ipc", cfg.IPC.SocketPath, "http_port", cfg.HTTP.Port)

	err := g.Wait()
	logger.Info("shutting down")
	return err
}

// ============================================================================
// solar subcommand
// ============================================================================

func printSolarUsage() {
	fmt.Printf("compassd solar v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  compassd solar -lat LAT -lon LON [-date YYYY-MM-DD] [-zenith NAME]")
	fmt.Println()
	fmt.Println("Prints sunrise, sunset and the current day phase in local time.")
	fmt.Println()
}

func runSolarSubcommand(args []string) int {
	fs := flag.NewFlagSet("solar", flag.ContinueOnError)
	lat := fs.Float64("lat", 0, "Latitude (decimal degrees)")
	lon := fs.Float64("lon", 0, "Longitude (decimal degrees)")
	date := fs.String("date", "", "Date YYYY-MM-DD (default today)")
	zenithName := fs.String("zenith", "official", "official|civil|nautical|astronomical")
	fs.Usage = printSolarUsage

	if err := fs.Parse(args); err != nil {
		return 2
	}

	loc, err := solar.NewLocation(*lat, *lon)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	z, err := solar.ZenithByName(*zenithName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	now := time.Now()
	if *date != "" {
		d, err := time.ParseInLocation("2006-01-02", *date, time.Local)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: -date:", err)
			return 1
		}
		now = time.Date(d.Year(), d.Month(), d.Day(), now.Hour(), now.Minute(), 0, 0, time.Local)
	}

	phase, times, err := solar.DayPhase(loc, z, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	fmt.Printf("location: %s\n", loc.DMS())
	fmt.Printf("zenith:   %s\n", z)
	switch {
	case times.PolarNight:
		fmt.Println("sunrise:  none (polar night)")
	case times.MidnightSun:
		fmt.Println("sunset:   none (midnight sun)")
	default:
		fmt.Printf("sunrise:  %s\n", times.Sunrise.Format("15:04 MST"))
		fmt.Printf("sunset:   %s\n", times.Sunset.Format("15:04 MST"))
	}
	fmt.Printf("phase:    %s (at %s)\n", phase, now.Format("2006-01-02 15:04"))
	return 0
}
