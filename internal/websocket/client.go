// internal/websocket/client.go

package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JosueRDx/DotsGo-backend/internal/guard"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Client is one live websocket connection. The conn id is fresh per
// connection; the same human reconnecting arrives as a new Client.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	send   chan *GameEvent
	sendMu sync.Mutex
	closed bool

	// ID is the volatile connection identifier.
	ID string

	// RoomID is the PIN of the joined room, "" before joining. Owned by
	// the hub under its lock.
	RoomID string

	// Username is set once the join succeeds; for logs only.
	Username string

	// Identity carries the handshake fingerprint and client address.
	Identity guard.Identity

	messageHandler func(*Client, []byte) error
}

func NewClient(hub *Hub, conn *websocket.Conn, clientID string, identity guard.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *GameEvent, 256),
		ID:       clientID,
		Identity: identity,
	}
}

// SetMessageHandler sets the function to handle incoming messages
func (c *Client) SetMessageHandler(handler func(*Client, []byte) error) {
	c.messageHandler = handler
}

// trySend queues an event without ever blocking; it fails once the client
// has unregistered or the buffer is full.
func (c *Client) trySend(event *GameEvent) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClientGone
	}
	select {
	case c.send <- event:
		return nil
	default:
		return ErrClientGone
	}
}

// closeSend marks the client dead and wakes the write pump. Called once,
// by the hub, during unregistration.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps messages from the WebSocket connection to the handler.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "conn_id", c.ID, "error", err)
			}
			break
		}

		if c.messageHandler != nil {
			if err := c.messageHandler(c, message); err != nil {
				slog.Warn("message handling failed", "conn_id", c.ID, "error", err)
			}
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
