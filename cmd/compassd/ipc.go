package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets local tools (compassctl, scripts, other daemons)
// inject heading samples, positions and knob turns, and query state.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "heading_sample", "data": {"degrees": 42}}
//   - Client sends: {"type": "get_state"} to receive a state snapshot
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// ipcGetState is the query-only request type. It carries no data and is
// answered with the current StateSnapshot.
const ipcGetState = "get_state"

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string         `json:"status"`          // "ok" or "error"
	Error  string         `json:"error,omitempty"` // error message if status == "error"
	Data   *StateSnapshot `json:"data,omitempty"`  // only for get_state
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, events, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(ctx context.Context, conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		if isGetState(line) {
			snap, err := requestSnapshot(ctx, events, time.Second)
			if err != nil {
				reply(IPCResponse{Status: "error", Error: fmt.Sprintf("get state: %v", err)})
				continue
			}
			reply(IPCResponse{Status: "ok", Data: &snap})
			continue
		}

		// Payload events only; the daemon assigns timestamps via TimedEvent.
		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			reply(IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			continue
		}
		ev = withDefaultSource(ev, sourceIPC)

		select {
		case events <- ev:
			reply(IPCResponse{Status: "ok"})
		default:
			reply(IPCResponse{Status: "error", Error: "event queue full"})
		}
	}

	logger.Debug("IPC connection closed")
}

func isGetState(line string) bool {
	var env EventEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return false
	}
	return env.Type == ipcGetState
}

// withDefaultSource tags events that arrived without a source.
func withDefaultSource(ev Event, source string) Event {
	switch e := ev.(type) {
	case HeadingSample:
		if e.Source == "" {
			e.Source = source
		}
		return e
	case LocationObserved:
		if e.Source == "" {
			e.Source = source
		}
		return e
	default:
		return ev
	}
}

// ============================================================================
// IPC Client Utility Functions
// ============================================================================

// SendIPCEvent sends an event to the daemon via IPC and returns the response
func SendIPCEvent(socketPath string, ev Event) error {
	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = sendIPCLine(socketPath, data)
	return err
}

// QueryIPCState asks the daemon for its current state snapshot.
func QueryIPCState(socketPath string) (StateSnapshot, error) {
	resp, err := sendIPCLine(socketPath, []byte(`{"type":"`+ipcGetState+`"}`))
	if err != nil {
		return StateSnapshot{}, err
	}
	if resp.Data == nil {
		return StateSnapshot{}, errors.New("ipc: empty state response")
	}
	return *resp.Data, nil
}

func sendIPCLine(socketPath string, line []byte) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(line))); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
