package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
)

const (
	writeWait = 2 * time.Second

	// Predictions queued per client before it is dropped as too slow.
	sendQueue = 16
)

// The feed is only served to the local trainer page.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Prediction is the message broadcast for each live classification.
type Prediction struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	AvgDistance float64 `json:"avgDistance"`
	Timestamp   int64   `json:"timestamp"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live predictions out to WebSocket clients. A client that
// connects late is sent the latest prediction first.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	last    []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*liveClient]struct{}),
	}
}

// ServeHTTP upgrades the request and holds the connection open until the
// peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &liveClient{conn: conn, send: make(chan []byte, sendQueue)}
	h.register(c)
	go c.writeLoop()

	// Inbound messages are ignored; reading surfaces the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) register(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
}

// unregister is a no-op when Show already dropped c.
func (h *Hub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *liveClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Show broadcasts a classification result. It never blocks on a client.
func (h *Hub) Show(result knn.Result) {
	msg, err := json.Marshal(Prediction{
		Label:       result.Label,
		Confidence:  result.Confidence,
		AvgDistance: result.AvgDistance,
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Warn("failed to encode prediction", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow live client", slog.String("remote", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
