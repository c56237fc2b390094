package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen connects to the compassd /ws endpoint and prints the stream.
// Running needle frames are hidden unless -frames is set.

type envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type needleData struct {
	Angle   float64 `json:"angle"`
	Bearing float64 `json:"bearing"`
	North   float64 `json:"north"`
	South   float64 `json:"south"`
	Running bool    `json:"running"`
}

type turnData struct {
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Delta  float64 `json:"delta"`
	Source string  `json:"source"`
}

type locationData struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	DMS       string  `json:"dms"`
	Source    string  `json:"source"`
}

type dayPhaseData struct {
	Phase   string     `json:"phase"`
	Sunrise *time.Time `json:"sunrise"`
	Sunset  *time.Time `json:"sunset"`
}

func main() {
	var (
		wsURL  = flag.String("ws", "ws://127.0.0.1:3002/ws", "compassd websocket URL")
		frames = flag.Bool("frames", false, "Print every needle frame, not just resting ones")
		raw    = flag.Bool("raw", false, "Print messages as received")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The daemon pings; answer and keep extending the read deadline.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleTextMessage(message, *frames)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one envelope in a compact form.
func handleTextMessage(message []byte, frames bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	ts := env.Ts.Local().Format("15:04:05.000")

	switch env.Type {
	case "state_init":
		var pretty any
		_ = json.Unmarshal(env.Data, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("%s [INIT]\n%s\n", ts, out)

	case "needle":
		var n needleData
		if err := json.Unmarshal(env.Data, &n); err != nil {
			break
		}
		if n.Running && !frames {
			return
		}
		state := "REST"
		if n.Running {
			state = "MOVE"
		}
		fmt.Printf("%s [NEEDLE] %s bearing=%.1f north=%.1f south=%.1f\n", ts, state, n.Bearing, n.North, n.South)

	case "turn":
		var tr turnData
		if err := json.Unmarshal(env.Data, &tr); err != nil {
			break
		}
		fmt.Printf("%s [TURN] %.0f -> %.0f (%+.0f) via %s\n", ts, tr.From, tr.To, tr.Delta, tr.Source)

	case "location":
		var l locationData
		if err := json.Unmarshal(env.Data, &l); err != nil {
			break
		}
		fmt.Printf("%s [LOCATION] %s (%.5f, %.5f) via %s\n", ts, l.DMS, l.Latitude, l.Longitude, l.Source)

	case "day_phase":
		var p dayPhaseData
		if err := json.Unmarshal(env.Data, &p); err != nil {
			break
		}
		fmt.Printf("%s [DAY] %s sunrise=%s sunset=%s\n", ts, p.Phase, clockTime(p.Sunrise), clockTime(p.Sunset))

	default:
		fmt.Printf("%s [%s] %s\n", ts, env.Type, env.Data)
	}
}

func clockTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("15:04")
}
