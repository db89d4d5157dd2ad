// Package realtime streams protection engine events to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mbd888/agentshield/internal/metrics"
	"github.com/mbd888/agentshield/internal/shield"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware; the hub accepts
	// whatever reached it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// client is one connected WebSocket subscriber with optional filters.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// wallet, when set, restricts delivery to one agent's events.
	wallet string
	// eventTypes, when non-empty, restricts delivery to those types.
	eventTypes map[string]bool
}

func (c *client) wants(ev *shield.Event) bool {
	if c.wallet != "" && c.wallet != ev.AgentWallet {
		return false
	}
	if len(c.eventTypes) > 0 && !c.eventTypes[ev.Type] {
		return false
	}
	return true
}

// Hub fans engine events out to connected WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan *shield.Event
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run in a goroutine before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *shield.Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.ActiveWebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			metrics.ActiveWebSocketClients.Set(float64(len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.ActiveWebSocketClients.Set(float64(len(h.clients)))
			}

		case ev := <-h.broadcast:
			msg, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("event marshal failed", "error", err)
				continue
			}
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow client, drop it.
					delete(h.clients, c)
					close(c.send)
					metrics.ActiveWebSocketClients.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
}

// Emit implements shield.Sink. Events are dropped when the broadcast buffer
// is full rather than blocking the engine.
func (h *Hub) Emit(_ context.Context, ev *shield.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("realtime broadcast buffer full, event dropped", "type", ev.Type)
	}
}

// ServeWS upgrades an HTTP request to a WebSocket subscription. Optional
// query params: wallet (single agent filter), events (comma-free repeated
// param, e.g. ?events=anomaly.detected&events=circuit_breaker.triggered).
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		wallet: c.Query("wallet"),
	}
	if types := c.QueryArray("events"); len(types) > 0 {
		cl.eventTypes = make(map[string]bool, len(types))
		for _, t := range types {
			cl.eventTypes[t] = true
		}
	}

	h.register <- cl
	go cl.writePump()
	go cl.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Inbound messages are ignored; reads only service pings and close.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
