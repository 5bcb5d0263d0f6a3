package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/observability"
)

// HubConfig tunes the live feed.
type HubConfig struct {
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration

	// QueueSize is the per-client outbound buffer. A client whose buffer is
	// full has messages dropped rather than stalling the broadcast.
	QueueSize int
}

// Hub fans published snapshots out to connected websocket clients. Each
// client subscribes to one user's feed; the broadcast never blocks on a slow
// client.
type Hub struct {
	config HubConfig
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn   *websocket.Conn
	userID string // empty means all users
	send   chan []byte
	once   sync.Once
}

// NewHub creates the hub.
func NewHub(config HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	return &Hub{
		config:  config,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Broadcast pushes a snapshot to every subscribed client.
func (h *Hub) Broadcast(snap stats.Snapshot) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": "snapshot",
		"data": snap,
	})
	if err != nil {
		h.logger.Error("snapshot marshal failed", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != "" && c.userID != snap.UserID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			observability.WSDropped.Inc()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer on the upgrade request.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and attaches the client to the feed.
// The user_id query parameter narrows the subscription to one user.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &wsClient{
		conn:   conn,
		userID: r.URL.Query().Get("user_id"),
		send:   make(chan []byte, h.config.QueueSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observability.WSClients.Inc()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) detach(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		observability.WSClients.Dec()
	}
	c.close()
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (h *Hub) writePump(c *wsClient) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.detach(c)
			return
		}
	}
}

// readPump drains incoming frames. Clients do not send data on the feed, but
// reads must run for close and ping frames to be processed.
func (h *Hub) readPump(c *wsClient) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.detach(c)
			return
		}
	}
}
