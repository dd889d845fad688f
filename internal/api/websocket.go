package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"liquidity-hunter/internal/auth"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware and bearer tokens
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient represents a WebSocket client. Empty filters accept everything.
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *WSHub
	symbol    string
	types     map[events.EventType]bool
	closeOnce sync.Once
}

func (c *WSClient) wants(event events.Event) bool {
	if c.symbol != "" && event.Symbol != "" && event.Symbol != c.symbol {
		return false
	}
	return len(c.types) == 0 || c.types[event.Type]
}

// WSHub fans bus events out to WebSocket clients
type WSHub struct {
	clients     map[*WSClient]bool
	register    chan *WSClient
	unregister  chan *WSClient
	broadcast   chan events.Event
	done        chan struct{}
	unsubscribe func()
	mu          sync.RWMutex
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan events.Event, 4096),
		done:       make(chan struct{}),
	}
}

// Start subscribes the hub to every event on bus and runs it
func (h *WSHub) Start(bus *events.EventBus) {
	h.startOnce.Do(func() {
		h.unsubscribe = bus.SubscribeAll(h.BroadcastEvent)
		go h.run()
		logging.WebSocketContext("", "hub").Debug("WebSocket hub started")
	})
}

// Stop detaches the hub from the bus and disconnects every client
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
		close(h.done)
	})
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				logging.WebSocketContext("", "hub").WithError(err).Warn("Failed to marshal event")
				continue
			}
			h.mu.RLock()
			var slow []*WSClient
			for client := range h.clients {
				if !client.wants(event) {
					continue
				}
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// A client whose buffer is full is dropped
			for _, client := range slow {
				h.remove(client)
			}

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *WSHub) remove(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
}

func (c *WSClient) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// BroadcastEvent queues an event for every interested client
func (h *WSHub) BroadcastEvent(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		logging.WebSocketContext("", "hub").Warn("Broadcast channel full, dropping event", "type", string(event.Type))
	}
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.WebSocketContext(c.conn.RemoteAddr().String(), "events").WithError(err).Debug("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so that pongs and closes are processed
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.WebSocketContext(c.conn.RemoteAddr().String(), "events").WithError(err).Debug("WebSocket read error")
			}
			break
		}
	}
}

// handleWebSocket streams bus events. Query parameters: symbol filters by
// symbol, types is a comma separated list of event types, token carries the
// bearer token when auth is enabled.
func (s *Server) handleWebSocket(c *gin.Context) {
	if s.jwtManager != nil {
		claims, err := s.jwtManager.ValidateToken(c.Query("token"))
		if err != nil || !claims.HasScope(auth.ScopeRead) {
			errorResponse(c, http.StatusUnauthorized, "valid token required")
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WebSocketContext(c.ClientIP(), "events").WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    s.hub,
		symbol: strings.ToUpper(c.Query("symbol")),
		types:  make(map[events.EventType]bool),
	}
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			client.types[events.EventType(strings.ToUpper(t))] = true
		}
	}

	// Send initial connection confirmation before any event
	welcome, _ := json.Marshal(map[string]interface{}{
		"type":      "CONNECTED",
		"message":   "WebSocket connection established",
		"timestamp": time.Now(),
	})
	client.send <- welcome

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}
	logging.WebSocketContext(c.ClientIP(), "events").Debug("WebSocket client connected", "symbol", client.symbol)

	go client.writePump()
	go client.readPump()
}
