package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Renderers (a browser page, an OLED driver, ws_listen) connect to /ws and
// draw the needles from the frames pushed here.
//
//   - DaemonState remains daemon-owned; the initial snapshot goes through the event loop.
//   - WS frames originate from reducer-emitted broadcasts.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//
// ============================================================================

// wsInitData is the `data` payload of "state_init".
type wsInitData struct {
	ClientID string        `json:"client_id"`
	State    StateSnapshot `json:"state"`
}

type wsNeedleData struct {
	Angle   float64 `json:"angle"`
	Bearing float64 `json:"bearing"`
	North   float64 `json:"north"`
	South   float64 `json:"south"`
	Running bool    `json:"running"`
}

type wsTurnData struct {
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Delta  float64 `json:"delta"`
	Source string  `json:"source,omitempty"`
}

type wsLocationData struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	DMS       string  `json:"dms"`
	Source    string  `json:"source,omitempty"`
}

type wsDayPhaseData struct {
	Phase   string     `json:"phase"`
	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "use now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 64
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "client_id", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "client_id", c.id, "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	id   string
	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a fresh id and a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 64
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

func (c *Client) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws pump exiting (close)", "client_id", c.id, "op", op, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws pump exiting", "client_id", c.id, "op", op, "error", err)
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for initial snapshot request on connect (through the event loop).
	events chan<- Event
}

// NewServer constructs the WS state server components. Register it on a
// mux, then start hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps must outlive the handler: net/http cancels r.Context() when the
	// handler returns. The hub owns the connection lifetime.
	go client.writePump(context.Background())
	go client.readPump()

	snap, err := requestSnapshot(r.Context(), s.events, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "client_id", client.id, "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope(wsOutboundEvent{
		Type: "state_init",
		Data: wsInitData{ClientID: client.id, State: snap},
	})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}

	// Enqueue init message; if client is already slow, disconnect.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// requestSnapshot asks the daemon loop for a StateSnapshot.
func requestSnapshot(ctx context.Context, events chan<- Event, timeout time.Duration) (StateSnapshot, error) {
	if events == nil {
		return StateSnapshot{}, errors.New("no daemon event channel")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted broadcasts, marshals them, and sends
// them to all hub clients.
//
// Needle frames are coalesced latest-wins: at most one frame is sent per
// window, and a pending frame is always flushed before any other event.
// A window <= 0 sends every frame.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, window time.Duration, clk clock.Clock, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}
	if clk == nil {
		clk = clock.New()
	}

	var pending *wsOutboundEvent
	var timer *clock.Timer
	var timerC <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerC:
			flushPending()
			// Keep the window open only while frames keep arriving.
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "needle" && window > 0 {
				if timer == nil {
					// First frame of a burst goes out immediately.
					send(ev)
					timer = clk.Timer(window)
					timerC = timer.C
					continue
				}
				copyEv := ev
				pending = &copyEv
				continue
			}

			flushPending()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastNeedle:
		return wsOutboundEvent{
			Type: "needle",
			Data: wsNeedleData{Angle: ev.Angle, Bearing: ev.Bearing, North: ev.North, South: ev.South, Running: ev.Running},
			At:   ev.At,
		}, true

	case BroadcastTurn:
		return wsOutboundEvent{
			Type: "turn",
			Data: wsTurnData{From: ev.From, To: ev.To, Delta: ev.Delta, Source: ev.Source},
			At:   ev.At,
		}, true

	case BroadcastLocation:
		return wsOutboundEvent{
			Type: "location",
			Data: wsLocationData{Latitude: ev.Latitude, Longitude: ev.Longitude, DMS: ev.DMS, Source: ev.Source},
			At:   ev.At,
		}, true

	case BroadcastDayPhase:
		d := wsDayPhaseData{Phase: ev.Phase}
		if !ev.Sunrise.IsZero() {
			t := ev.Sunrise
			d.Sunrise = &t
		}
		if !ev.Sunset.IsZero() {
			t := ev.Sunset
			d.Sunset = &t
		}
		return wsOutboundEvent{Type: "day_phase", Data: d, At: ev.At}, true

	default:
		return wsOutboundEvent{}, false
	}
}
