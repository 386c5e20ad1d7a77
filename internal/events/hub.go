// Package events broadcasts engine activity to dashboard WebSocket clients.
package events

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config controls which event types are broadcast
type Config struct {
	BroadcastScans       bool `yaml:"broadcast_scans" mapstructure:"broadcast_scans"`
	BroadcastFeedback    bool `yaml:"broadcast_feedback" mapstructure:"broadcast_feedback"`
	BroadcastRefinements bool `yaml:"broadcast_refinements" mapstructure:"broadcast_refinements"`
	BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// Client is one connected WebSocket peer
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// Hub maintains the set of active clients and fans events out to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	config     *Config
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run in a goroutine to start it.
func NewHub(config *Config, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		config:     config,
		logger:     logger,
	}
}

// Run handles client registration and event fan-out until the process exits
func (h *Hub) Run() {
	h.logger.Info("Starting event hub")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			active := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("Dashboard client connected",
				zap.String("client_id", client.id),
				zap.Int("active_connections", active))

			h.Broadcast(Event{
				Type:      EventTypeConnection,
				Timestamp: time.Now().UTC(),
				Data:      ConnectionEvent{Action: "connected", ClientID: client.id},
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			active := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("Dashboard client disconnected",
				zap.String("client_id", client.id),
				zap.Int("active_connections", active))

		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

// Broadcast queues an event for delivery if its type is enabled. A full
// queue drops the event rather than blocking the engine's write path.
func (h *Hub) Broadcast(event Event) {
	if !h.enabled(event.Type) {
		return
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)))
	}
}

func (h *Hub) enabled(eventType EventType) bool {
	if h.config == nil {
		return false
	}
	switch eventType {
	case EventTypeScan:
		return h.config.BroadcastScans
	case EventTypeFeedback:
		return h.config.BroadcastFeedback
	case EventTypeRefinement:
		return h.config.BroadcastRefinements
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

func (h *Hub) fanOut(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.id))
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// HandleWebSocket upgrades a request and attaches the client to the hub
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		id:   fmt.Sprintf("client_%d", time.Now().UnixNano()),
		conn: conn,
		send: make(chan Event, 256),
	}

	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

// ActiveConnections returns the number of connected clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Clients only speak pings; anything else just drains until close
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error",
					zap.String("client_id", client.id), zap.Error(err))
			}
			return
		}
	}
}
