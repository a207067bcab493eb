package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ipsstech/pairtalk/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. A peer that falls this far behind is
	// treated as disconnected.
	sendBufferSize = 64
)

// Client is one live duplex connection bound to at most one identity.
type Client struct {
	ID uuid.UUID

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// authID is the identity proven by the bearer token at upgrade time.
	// identity is set once the client joins; zero means not yet registered.
	authID   int64
	identity atomic.Int64

	// mu orders close against trySend: the channel may be closed from the
	// hub's disconnect path while a registry fan-out still holds a snapshot
	// referencing this client, and a send on a closed channel panics even
	// inside a select with a default case.
	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, authID int64) *Client {
	return &Client{
		ID:     uuid.New(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		authID: authID,
	}
}

// Identity returns the identity this connection is registered under, or zero
// before join.
func (c *Client) Identity() int64 {
	return c.identity.Load()
}

// trySend queues a frame without blocking. False means the connection is
// already closed or its buffer is full.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendEvent marshals and queues one event for this connection only.
func (c *Client) sendEvent(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return
	}
	frame, err := json.Marshal(models.Event{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event frame")
		return
	}
	c.trySend(frame)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames off the websocket and hands them to the hub. It owns
// the disconnect path: when it returns, for any reason, cleanup runs.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.ID.String()).Msg("websocket closed")
			}
			return
		}
		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.sendEvent(models.EventError, map[string]string{"message": "malformed event"})
			continue
		}
		c.hub.handleEvent(c, ev)
	}
}

// writePump drains the send channel onto the websocket with bounded write
// deadlines, pinging while idle.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
