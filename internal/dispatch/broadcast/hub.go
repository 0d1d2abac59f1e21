package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/haulite/internal/dispatch/domain"
)

const defaultWriteTimeout = 5 * time.Second

// Hub fans dispatch events out to connected websocket observers. Delivery is
// best effort: a failed write evicts the client, there is no retry or queuing.
// Reconnecting observers receive a full snapshot instead of a replay.
type Hub struct {
	logger       *zap.Logger
	snapshot     func() any
	upgrader     websocket.Upgrader
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub constructs the hub. snapshot is called on every new connection to
// build the catch-up payload.
func NewHub(logger *zap.Logger, snapshot func() any) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
		clients:      make(map[*client]struct{}),
	}
}

// Handler upgrades the connection, registers the observer and pushes the
// current snapshot so the client does not have to wait for the next change.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := r.URL.Query().Get("client_id")
	if id == "" {
		id = uuid.NewString()
	}
	c := &client{id: id, conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.snapshot != nil {
		if err := c.writeJSON(map[string]any{"type": "snapshot", "snapshot": h.snapshot()}, h.writeTimeout); err != nil {
			h.remove(c)
			return
		}
	}
	go h.readPump(c)
}

// Publish implements domain.EventPublisher. The event's origin client is
// skipped on truck movement so a reporter never receives its own echo.
func (h *Hub) Publish(_ context.Context, event domain.DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if event.Type == domain.EventTruckMoved && event.Origin != "" && c.id == event.Origin {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(payload, h.writeTimeout); err != nil {
			h.remove(c)
		}
	}
	return nil
}

// ClientCount reports connected observers (for tests and health output).
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write is bounded by a deadline so one stalled observer cannot hold up the
// publishing dispatcher; a timed-out write evicts the client like any failure.
func (c *client) write(payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) writeJSON(v any, timeout time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(payload, timeout)
}
