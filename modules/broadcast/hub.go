package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Membership resolves which connections are joined to a room.
type Membership interface {
	Members(room string) []string
}

// FrameWriter is the write half of a websocket connection.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Frame is the envelope for every event sent to a client.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is an attached connection with its own outbound queue.
type Client struct {
	ID   string
	conn FrameWriter
	send chan []byte
	done chan struct{}
}

// Done is closed once the client's writer has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub fans events out to attached connections. Each client has a single
// writer goroutine, so frames for one connection are written in the order
// they were enqueued.
type Hub struct {
	clients    map[string]*Client
	members    Membership
	bufferSize int
	logger     types.Logger
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(members Membership, bufferSize int, logger types.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		clients:    make(map[string]*Client),
		members:    members,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Attach registers conn under connID and starts its writer.
func (h *Hub) Attach(connID string, conn FrameWriter) *Client {
	client := &Client{
		ID:   connID,
		conn: conn,
		send: make(chan []byte, h.bufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[connID]; ok {
		close(old.send)
	}
	h.clients[connID] = client
	h.mu.Unlock()

	go h.writePump(client)
	h.logger.Debug("Client attached", "connID", connID)
	return client
}

// Detach removes the client and stops its writer after queued frames are
// flushed.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connID]; ok {
		delete(h.clients, connID)
		close(client.send)
		h.logger.Debug("Client detached", "connID", connID)
	}
}

func (h *Hub) writePump(c *Client) {
	defer close(c.done)
	failed := false
	for data := range c.send {
		if failed {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("Failed to write to client", "connID", c.ID, "error", err)
			failed = true
		}
	}
}

// Emit delivers the event to every connection in room.
func (h *Hub) Emit(room, event string, payload any) {
	h.Deliver(h.members.Members(room), event, payload)
}

// EmitExcept delivers the event to every connection in room except one.
func (h *Hub) EmitExcept(room, except, event string, payload any) {
	ids := h.members.Members(room)
	out := ids[:0]
	for _, id := range ids {
		if id != except {
			out = append(out, id)
		}
	}
	h.Deliver(out, event, payload)
}

// Send delivers the event to a single connection.
func (h *Hub) Send(connID, event string, payload any) {
	h.Deliver([]string{connID}, event, payload)
}

// Deliver enqueues one frame per listed connection. Unknown connections are
// skipped and a full queue drops the frame.
func (h *Hub) Deliver(connIDs []string, event string, payload any) {
	if len(connIDs) == 0 {
		return
	}

	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("Failed to marshal frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range connIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Client queue full, dropping frame", "connID", id, "event", event)
		}
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close detaches every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}
