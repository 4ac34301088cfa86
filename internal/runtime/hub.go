package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/voxgen/internal/workspace"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Hub streams workspace events to connected WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*client]struct{}
	log      *slog.Logger
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

// NewHub accepts upgrades from the daemon's own host and from allowedOrigins.
func NewHub(log *slog.Logger, allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     newOriginPolicy(allowedOrigins).Allow,
		},
		clients: make(map[*client]struct{}),
		log:     log.With(slog.String("component", "event-hub")),
	}
}

// OnEvent fans evt out to every client. Slow clients drop events rather than block the workspace.
func (h *Hub) OnEvent(evt workspace.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn("failed to marshal event", slog.String("error", err.Error()))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.closed.Load() {
			continue
		}
		select {
		case c.sendCh <- data:
		default:
			h.log.Debug("dropping event for slow client", slog.String("type", string(evt.Type)))
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, sendCh: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.loop()

	// Inbound messages are ignored; reading detects the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	_ = c.conn.Close()
}
