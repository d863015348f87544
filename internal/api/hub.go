package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mirrorcast/internal/logging"
)

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// Hub fans session events out to websocket subscribers. Every new subscriber
// first receives a snapshot of the current status. Subscribers that cannot
// keep up are disconnected.
type Hub struct {
	snapshot func() SessionStatus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub builds a hub. snapshot may be nil.
func NewHub(snapshot func() SessionStatus, logger *slog.Logger) *Hub {
	return &Hub{
		snapshot: snapshot,
		logger:   logging.NewComponentLogger(logger, "events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	c := h.add(conn)
	if c == nil {
		_ = conn.Close()
		return
	}
	defer h.remove(c)
	// Subscribers never send; reading only detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	c := newClient(conn)
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.snapshot != nil {
		status := h.snapshot()
		if data, err := json.Marshal(Event{Type: EventSnapshot, At: formatTime(time.Now()), Status: &status}); err == nil {
			h.mu.RLock()
			if _, ok := h.clients[c]; ok {
				select {
				case c.send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish sends evt to every subscriber without blocking.
func (h *Hub) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("event marshal failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "event_marshal_failed"),
			logging.String(logging.FieldErrorHint, "report this as a bug"),
			logging.String(logging.FieldImpact, "websocket subscribers miss one update"),
		)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Debug("websocket subscriber too slow, disconnecting")
		h.remove(c)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
