package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
	"github.com/nerrad567/labrig/internal/infrastructure/logging"
)

const (
	// defaultSendBuffer is the per-client outbound buffer when the
	// config leaves it unset.
	defaultSendBuffer = 64

	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Loopback-only service; no cross-origin surface to defend.
		return true
	},
}

// Hub streams routed records to WebSocket clients.
//
// The hub is registered as a data manager consumer: every record that
// passes its filter is marshalled once and fanned out. A client whose
// send buffer is full has that record dropped; a slow viewer must never
// stall the drain loop.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
	closed  bool
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close() //nolint:errcheck
}

// Name identifies the hub in data manager logs.
func (h *Hub) Name() string { return "ws-hub" }

// Consume fans one record out to every connected client.
// Never blocks: full client buffers drop the record instead.
func (h *Hub) Consume(rec data.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Close disconnects all clients. Idempotent; called both by the data
// manager at flush time and by Run on context cancellation.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many record sends were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

// unregister removes a client. Only the goroutine that actually removes
// it closes the send channel, preventing double-close during shutdown.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
}

// handleWebSocket upgrades the connection and streams records until the
// client disconnects or the hub shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sendBuffer := s.hub.cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !s.hub.register(client) {
		conn.Close() //nolint:errcheck
		return
	}
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go client.writePump()
	client.readPump()
}

// writePump drains the send channel onto the connection. Exits when the
// channel closes (hub shutdown or unregister).
func (c *wsClient) writePump() {
	defer c.conn.Close() //nolint:errcheck

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice the client going away.
func (c *wsClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout)) //nolint:errcheck
	}
}
