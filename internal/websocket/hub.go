package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// GameEvent is the wire envelope for every server-to-client frame.
type GameEvent struct {
	Type   string      `json:"type"`
	RoomID string      `json:"room_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ErrClientGone reports a send against a closed or saturated client.
var ErrClientGone = errors.New("client is gone or not keeping up")

// Hub tracks every live connection and the room each one has joined.
// Connections exist before and independently of room membership; a client
// lands in a room bucket only after a successful join.
type Hub struct {
	// All connections by conn id.
	clients map[string]*Client

	// Joined connections bucketed by room PIN.
	rooms map[string]map[string]*Client

	mu sync.RWMutex

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *GameEvent

	onDisconnect func(connID, pin string)

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *GameEvent, 256),
		logger:     logger,
	}
}

// SetDisconnectHandler installs the callback fired after a connection
// drops. The pin is the room the client had joined, or "".
func (h *Hub) SetDisconnectHandler(fn func(connID, pin string)) {
	h.onDisconnect = fn
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)
		case client := <-h.Unregister:
			h.handleUnregister(client)
		case event := <-h.Broadcast:
			h.handleBroadcast(event)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client connected", "conn_id", client.ID, "total", total)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	if _, known := h.clients[client.ID]; !known {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	pin := client.RoomID
	if pin != "" {
		h.removeFromRoom(pin, client.ID)
	}
	client.closeSend()
	h.mu.Unlock()

	h.logger.Debug("client disconnected", "conn_id", client.ID, "room", pin)

	if h.onDisconnect != nil {
		go h.onDisconnect(client.ID, pin)
	}
}

// JoinRoom moves the client into a room bucket, leaving any previous one.
func (h *Hub) JoinRoom(client *Client, pin string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.RoomID != "" && client.RoomID != pin {
		h.removeFromRoom(client.RoomID, client.ID)
	}
	bucket, ok := h.rooms[pin]
	if !ok {
		bucket = make(map[string]*Client)
		h.rooms[pin] = bucket
	}
	bucket[client.ID] = client
	client.RoomID = pin
}

// LeaveRoom detaches the client from its room without closing the
// connection. Used on voluntary leaves and kicks.
func (h *Hub) LeaveRoom(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.RoomID != "" {
		h.removeFromRoom(client.RoomID, client.ID)
		client.RoomID = ""
	}
}

// removeFromRoom drops a conn from a bucket. Callers hold h.mu.
func (h *Hub) removeFromRoom(pin, connID string) {
	bucket, ok := h.rooms[pin]
	if !ok {
		return
	}
	delete(bucket, connID)
	if len(bucket) == 0 {
		delete(h.rooms, pin)
	}
}

// GetPlayerCount returns the number of live connections joined to a room.
func (h *Hub) GetPlayerCount(pin string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[pin])
}

// Client returns the live client for a conn id, or nil.
func (h *Hub) Client(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// BroadcastToRoom queues an event for every connection in the room.
func (h *Hub) BroadcastToRoom(pin string, event GameEvent) {
	event.RoomID = pin
	h.Broadcast <- &event
}

func (h *Hub) handleBroadcast(event *GameEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[event.RoomID] {
		if err := client.trySend(event); err != nil {
			// Slow consumer; drop the frame rather than stall the room.
			h.logger.Warn("dropping frame for slow client",
				"conn_id", client.ID, "type", event.Type)
		}
	}
}

// SendToClient delivers one event to a single connection.
func (h *Hub) SendToClient(client *Client, event GameEvent) error {
	return client.trySend(&event)
}

// SendToConn delivers one event to the connection with the given id.
func (h *Hub) SendToConn(connID string, event GameEvent) error {
	client := h.Client(connID)
	if client == nil {
		return ErrClientGone
	}
	return h.SendToClient(client, event)
}

// ForceDisconnect closes a connection after the delay. The close makes
// the read pump exit, which unregisters the client normally.
func (h *Hub) ForceDisconnect(connID string, delay time.Duration) {
	client := h.Client(connID)
	if client == nil {
		return
	}
	h.logger.Info("forcing disconnect", "conn_id", connID, "delay", delay)
	time.AfterFunc(delay, func() {
		client.conn.Close()
	})
}
