package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// compassctl - Command-line IPC Client
// ============================================================================
// This tool injects headings and positions into the compassd daemon and
// queries its state over the IPC socket.
//
// Usage:
//   compassctl heading 273.5
//   compassctl location 40.9 -74.3
//   compassctl turn -3
//   compassctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/compassd.sock)
// ============================================================================

// Event payloads (duplicated from the daemon for a standalone binary)
type HeadingSample struct {
	Degrees float64 `json:"degrees"`
	Source  string  `json:"source,omitempty"`
}

type LocationObserved struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Source    string  `json:"source,omitempty"`
}

type RotaryTurn struct {
	Steps int `json:"steps"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response. Data is set for state queries.
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const source = "compassctl"

func main() {
	socketPath := "/tmp/compassd.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var (
		line []byte
		err  error
	)

	switch args[0] {
	case "heading", "hdg":
		deg := floatArg(args, 1, "heading requires degrees")
		line, err = marshalEvent("heading_sample", HeadingSample{Degrees: deg, Source: source})

	case "location", "loc":
		lat := floatArg(args, 1, "location requires <lat> <lon>")
		lon := floatArg(args, 2, "location requires <lat> <lon>")
		line, err = marshalEvent("location", LocationObserved{Latitude: lat, Longitude: lon, Source: source})

	case "turn":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: turn requires a step count\n")
			os.Exit(1)
		}
		steps, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fmt.Fprintf(os.Stderr, "error: invalid step count: %v\n", convErr)
			os.Exit(1)
		}
		line, err = marshalEvent("rotary_turn", RotaryTurn{Steps: steps})

	case "state", "status":
		line, err = json.Marshal(EventEnvelope{Type: "get_state"})

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := send(socketPath, line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.Data) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, resp.Data, "", "  "); err != nil {
			fmt.Printf("%s\n", resp.Data)
			return
		}
		fmt.Println(out.String())
		return
	}
	fmt.Println("ok")
}

func floatArg(args []string, i int, missing string) float64 {
	if len(args) <= i {
		fmt.Fprintf(os.Stderr, "error: %s\n", missing)
		os.Exit(1)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid number %q: %v\n", args[i], err)
		os.Exit(1)
	}
	return v
}

func marshalEvent(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return json.Marshal(EventEnvelope{Type: typ, Data: data})
}

func send(socketPath string, line []byte) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return IPCResponse{}, fmt.Errorf("send: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `compassctl - Control the compassd daemon via IPC

Usage:
  compassctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/compassd.sock)

Commands:
  heading, hdg <deg>         Inject a raw compass heading
  location, loc <lat> <lon>  Report a position fix (decimal degrees)
  turn <steps>               Simulate knob detents (negative = counterclockwise)
  state, status              Print the daemon state as JSON
  help, -h, --help           Show this help message

Examples:
  compassctl heading 273.5
  compassctl location 40.9 -74.3
  compassctl -socket /run/compassd.sock state
`)
}
