package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"
)

// ============================================================================
// NMEA 0183 source (serial port or TCP)
// ============================================================================
// Heading:
//   - HDT true heading
//   - HDG magnetic heading corrected by deviation and variation
//   - VTG / RMC course over ground, only above nmea.min_speed_knots and only
//     until a heading sentence has been seen on the stream
// Position:
//   - RMC with status A
//   - GGA with a fix
// ============================================================================

// nmeaDecoder turns parsed sentences into daemon events.
type nmeaDecoder struct {
	minSpeedKnots float64

	// sawHeading is set by the first HDT/HDG; from then on course over
	// ground no longer drives the needle.
	sawHeading bool
}

// decode returns the events carried by one NMEA line. Lines that fail to
// parse (bad checksum, unknown talker/type) are returned as an error.
func (d *nmeaDecoder) decode(line string) ([]Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || (line[0] != '$' && line[0] != '!') {
		return nil, nil
	}

	s, err := nmea.Parse(line)
	if err != nil {
		return nil, err
	}

	switch s.DataType() {
	case nmea.TypeHDT:
		m := s.(nmea.HDT)
		d.sawHeading = true
		return []Event{HeadingSample{Degrees: m.Heading, Source: sourceNMEA}}, nil

	case nmea.TypeHDG:
		m := s.(nmea.HDG)
		d.sawHeading = true
		h := m.Heading + signedEastWest(m.Deviation, m.DeviationDirection) + signedEastWest(m.Variation, m.VariationDirection)
		return []Event{HeadingSample{Degrees: h, Source: sourceNMEA}}, nil

	case nmea.TypeVTG:
		m := s.(nmea.VTG)
		if d.sawHeading || m.GroundSpeedKnots < d.minSpeedKnots {
			return nil, nil
		}
		return []Event{HeadingSample{Degrees: m.TrueTrack, Source: sourceNMEA}}, nil

	case nmea.TypeRMC:
		m := s.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return nil, nil
		}
		out := []Event{LocationObserved{Latitude: m.Latitude, Longitude: m.Longitude, Source: sourceNMEA}}
		if !d.sawHeading && m.Speed >= d.minSpeedKnots {
			out = append(out, HeadingSample{Degrees: m.Course, Source: sourceNMEA})
		}
		return out, nil

	case nmea.TypeGGA:
		m := s.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return nil, nil
		}
		return []Event{LocationObserved{Latitude: m.Latitude, Longitude: m.Longitude, Source: sourceNMEA}}, nil
	}

	return nil, nil
}

// signedEastWest applies the NMEA convention: easterly is added, westerly
// subtracted.
func signedEastWest(v float64, dir string) float64 {
	if strings.EqualFold(dir, "W") {
		return -v
	}
	return v
}

// readNMEA feeds lines from r through dec into events until r fails or ctx
// is canceled. Parse errors are logged at debug and skipped.
func readNMEA(ctx context.Context, r io.Reader, dec *nmeaDecoder, events chan<- Event, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		evs, err := dec.decode(scanner.Text())
		if err != nil {
			logger.Debug("nmea sentence ignored", "error", err)
			continue
		}
		for _, ev := range evs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- ev:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// openNMEA opens the configured serial device or TCP endpoint.
func openNMEA(ctx context.Context, cfg NMEAConfig) (io.ReadCloser, error) {
	if cfg.Address != "" {
		var d net.Dialer
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		conn, err := d.DialContext(dctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
		}
		return conn, nil
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.Device,
		BaudRate:        uint(cfg.Baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return port, nil
}

// runNMEASource reads the NMEA stream, reopening it after every failure
// until ctx is canceled.
func runNMEASource(ctx context.Context, cfg NMEAConfig, events chan<- Event, logger *slog.Logger) error {
	retry := time.Duration(cfg.RetryDelayMS) * time.Millisecond
	if retry <= 0 {
		retry = time.Duration(defaultRetryDelayMS) * time.Millisecond
	}
	endpoint := cfg.Device
	if cfg.Address != "" {
		endpoint = cfg.Address
	}

	post := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	for {
		rc, err := openNMEA(ctx, cfg)
		if err == nil {
			logger.Info("nmea source connected", "endpoint", endpoint)
			post(SourceConnected{Source: sourceNMEA, At: time.Now()})

			// Closing the stream unblocks the read on shutdown.
			stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
			dec := &nmeaDecoder{minSpeedKnots: cfg.MinSpeedKnots}
			err = readNMEA(ctx, rc, dec, events, logger)
			stop()
			_ = rc.Close()
		}

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("stream closed")
		}
		logger.Warn("nmea source failed; retrying", "endpoint", endpoint, "error", err, "retry_in", retry)
		post(SourceFailed{Source: sourceNMEA, Err: err, At: time.Now()})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}
