package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Rotation WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Clients connecting to /ws receive:
//   - "state_init" once, with the current StateSnapshot
//   - "rotation_changed" whenever the displayed rotation changes
//     (coalesced, latest wins, at most one per wsRotationCoalesceWindow)
//   - "shutdown" when the sampling loop stops
//
// Messages are JSON text frames: {type, ts, data}. The snapshot for
// state_init is requested through the loop's event channel; the hub never
// touches LoopState. Clients that cannot keep up are disconnected.
//
// Only the hub goroutine writes to or closes a client's send channel. A new
// client is registered before its snapshot is requested; broadcasts that
// arrive in between are held back and delivered right after state_init.
// ============================================================================

// wsRotationData is the `data` payload for "rotation_changed".
type wsRotationData struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

// wsShutdownData is the `data` payload for "shutdown".
type wsShutdownData struct {
	Reason string `json:"reason"`
}

// envelope is the wire format for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// wsRotationCoalesceWindow rate-limits rotation_changed per client.
	wsRotationCoalesceWindow = 100 * time.Millisecond
)

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	initc      chan clientInit

	// stopped is closed when Run returns.
	stopped chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

// clientInit carries a client's state_init frame to the hub.
type clientInit struct {
	client *Client
	msg    []byte
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 16).
	SendBuf int
	// BroadcastBuf is the hub inbound queue size (default 64).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 16
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 64
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		initc:      make(chan clientInit),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes registrations and broadcasts until ctx is canceled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping")
			h.drainBroadcasts()
			h.disconnectAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.drop(c, "unregister")

		case ci := <-h.initc:
			h.deliverInit(ci.client, ci.msg)

		case msg := <-h.broadcast:
			for _, c := range h.fanout(msg) {
				h.drop(c, "slow_client")
			}
		}
	}
}

// fanout enqueues msg on every client and returns the ones whose queue was full.
func (h *Hub) fanout(msg []byte) (slow []*Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.awaitingInit {
			// Keep one slot for state_init itself.
			if len(c.backlog)+1 >= cap(c.send) {
				slow = append(slow, c)
				continue
			}
			c.backlog = append(c.backlog, msg)
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

// deliverInit queues state_init followed by the broadcasts held back while
// the snapshot was in flight. Clients that already left are ignored.
func (h *Hub) deliverInit(c *Client, msg []byte) {
	h.mu.Lock()
	_, ok := h.clients[c]
	h.mu.Unlock()
	if !ok || !c.awaitingInit {
		return
	}

	queue := append([][]byte{msg}, c.backlog...)
	c.awaitingInit = false
	c.backlog = nil
	for _, m := range queue {
		select {
		case c.send <- m:
		default:
			h.drop(c, "slow_client")
			return
		}
	}
}

// drainBroadcasts hands queued frames to clients so a final "shutdown"
// message still goes out.
func (h *Hub) drainBroadcasts() {
	for {
		select {
		case msg := <-h.broadcast:
			h.fanout(msg)
		default:
			return
		}
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		// A client still waiting for state_init gets what was held back,
		// typically the final shutdown frame.
		for _, m := range c.backlog {
			select {
			case c.send <- m:
			default:
			}
		}
		c.backlog = nil
		c.close()
	}
}

func (h *Hub) drop(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// join registers c. It returns false if ctx ends or the hub has stopped
// first.
func (h *Hub) join(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-ctx.Done():
		return false
	case <-h.stopped:
		return false
	}
}

// leave asks the hub to drop c. Safe to call for clients already dropped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// sendInit hands c its state_init frame.
func (h *Hub) sendInit(c *Client, msg []byte) {
	select {
	case h.initc <- clientInit{client: c, msg: msg}:
	case <-h.stopped:
	}
}

// Broadcast enqueues a serialized frame for every client. Never blocks.
func (h *Hub) Broadcast(msg []byte) {
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

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	// Owned by the hub goroutine.
	awaitingInit bool
	backlog      [][]byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 16
	if hub != nil {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// close signals writePump to flush what is queued, send a close frame and
// release the connection.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// closeStatus extracts the websocket close code and text when present.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue to the socket and pings periodically.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames
// and notice disconnects.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.leave(c)
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub
	events chan<- Event
}

// NewServer builds the websocket server. Start Hub().Run and RunBroadcaster
// alongside it.
func NewServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	// Read-only feed bound to localhost by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection, registers the client and sends state_init.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	client.awaitingInit = true
	if !s.hub.join(r.Context(), client) {
		_ = conn.Close()
		return
	}

	// Pumps outlive the handler; the request context ends when we return.
	go client.writePump()
	go client.readPump()

	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		s.hub.leave(client)
		return
	}

	msg, err := marshalEnvelope("state_init", time.Now(), snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		s.hub.leave(client)
		return
	}
	s.hub.sendInit(client, msg)
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster converts reducer broadcasts into WS frames for the hub.
//
// rotation_changed is rate-limited: the latest pending value is flushed at
// most once per window while updates keep arriving. Any other message
// flushes the pending rotation first so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	c := rotationCoalescer{hub: hub, logger: logger}
	defer c.stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			return

		case <-c.tick():
			c.flush()
			c.stop()

		case b, ok := <-src:
			if !ok {
				c.flush()
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			switch ev := b.(type) {
			case BroadcastRotationChanged:
				c.set(ev)

			case BroadcastShutdown:
				c.flush()
				c.stop()
				msg, err := marshalEnvelope("shutdown", ev.At, wsShutdownData{Reason: ev.Reason})
				if err != nil {
					logger.Warn("ws broadcaster marshal failed", "error", err, "type", "shutdown")
					continue
				}
				hub.Broadcast(msg)
			}
		}
	}
}

// rotationCoalescer holds at most one pending rotation_changed message.
type rotationCoalescer struct {
	hub    *Hub
	logger *slog.Logger

	pending *BroadcastRotationChanged
	timer   *time.Timer
}

func (c *rotationCoalescer) set(ev BroadcastRotationChanged) {
	c.pending = &ev
	if c.timer == nil {
		c.timer = time.NewTimer(wsRotationCoalesceWindow)
	}
}

// tick returns the timer channel, or nil (blocks forever) when idle.
func (c *rotationCoalescer) tick() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

func (c *rotationCoalescer) stop() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
}

func (c *rotationCoalescer) flush() {
	if c.pending == nil {
		return
	}
	ev := *c.pending
	c.pending = nil

	msg, err := marshalEnvelope("rotation_changed", ev.At, wsRotationData{
		X:       ev.Rotation.X,
		Y:       ev.Rotation.Y,
		OffsetX: ev.Offset.X,
		OffsetY: ev.Offset.Y,
	})
	if err != nil {
		c.logger.Warn("ws broadcaster marshal failed", "error", err, "type", "rotation_changed")
		return
	}
	c.hub.Broadcast(msg)
}
