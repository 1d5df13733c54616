// Package realtime streams booking updates over WebSocket.
//
// Counterparties subscribe to the bookings they participate in and
// receive every committed change in order, instead of polling.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/metrics"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		// Allow same-host connections
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Envelope is the wire form of a booking update.
type Envelope struct {
	BookingID string             `json:"bookingId"`
	Kind      booking.UpdateKind `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Booking   *booking.Booking   `json:"booking,omitempty"`
}

// command is what clients send to change their subscriptions.
type command struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Client represents one WebSocket connection and its booking subscriptions.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	cancels map[string]func() // booking id -> notifier cancel
	closed  bool
}

// Hub manages WebSocket connections and bridges them to the notifier.
type Hub struct {
	notifier   *booking.Notifier
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalUpdates atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a WebSocket hub fed by the given notifier.
func NewHub(notifier *booking.Notifier, logger *slog.Logger) *Hub {
	return &Hub{
		notifier:   notifier,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime hub shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				client.teardown()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				client.teardown()
				delete(h.clients, client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("client disconnected", "total", n)
		}
	}
}

// Stats returns hub statistics
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalUpdates":     h.totalUpdates.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	// Enforce connection limit
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		cancels: make(map[string]func()),
	}

	// An initial subscription may arrive as a query parameter.
	if id := r.URL.Query().Get("booking"); id != "" {
		client.subscribe(id)
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// subscribe attaches the client to one booking's update stream.
func (c *Client) subscribe(bookingID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.cancels[bookingID]; ok {
		c.mu.Unlock()
		return // already subscribed
	}
	ch, cancel := c.hub.notifier.Subscribe(bookingID)
	c.cancels[bookingID] = cancel
	c.mu.Unlock()

	go c.pump(bookingID, ch)
}

// unsubscribe detaches the client from one booking's update stream.
func (c *Client) unsubscribe(bookingID string) {
	c.mu.Lock()
	cancel, ok := c.cancels[bookingID]
	if ok {
		delete(c.cancels, bookingID)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// pump forwards one booking's updates into the client's send queue.
// The channel closes when the subscription is cancelled.
func (c *Client) pump(bookingID string, ch <-chan booking.Update) {
	for u := range ch {
		c.hub.totalUpdates.Add(1)
		data, err := json.Marshal(Envelope{
			BookingID: bookingID,
			Kind:      u.Kind,
			Timestamp: time.Now().UTC(),
			Booking:   u.Booking,
		})
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
			return
		default:
			// Client cannot keep up; disconnect it rather than block
			// the commit path.
			c.hub.logger.Warn("dropping slow websocket client", "booking_id", bookingID)
			select {
			case c.hub.unregister <- c:
			case <-c.done:
			}
			return
		}
	}
}

// teardown cancels subscriptions and stops the pumps. Caller holds the
// hub lock; safe to call more than once.
func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = make(map[string]func())
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	close(c.done)
}

// readPump reads messages from WebSocket (subscription commands, pings)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		for _, id := range cmd.Subscribe {
			c.subscribe(id)
		}
		for _, id := range cmd.Unsubscribe {
			c.unsubscribe(id)
		}
	}
}

// writePump writes messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
