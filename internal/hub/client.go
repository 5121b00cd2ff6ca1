// Package hub owns the live side of the server: websocket clients, the
// connection registry, the per-room actors, and the routing between them.
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Every outbound write carries this deadline; a missed deadline tears
	// the connection down.
	writeWait = 5 * time.Second

	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10

	// Inbound frames larger than this are rejected by the transport.
	maxMessageSize = 4096

	sendBufferSize = 32
)

// Close codes for server-initiated disconnects.
const (
	CloseReplaced        = 4000
	CloseUnauthenticated = 4001
	CloseServerShutdown  = 4002
)

// Client is one websocket connection. It carries no identity; the registry
// maps connections to players.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue queues a frame for the write pump without blocking. Reports false
// when the client is closed or its buffer is full; the caller treats either
// as a delivery failure.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, which stops the write pump
// and closes the connection.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// closeWith sends a close control frame with the given code, then shuts the
// client down.
func (c *Client) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.shutdown()
}

// readPump reads frames and hands them to the hub until the connection dies,
// then triggers cleanup. Runs as one goroutine per connection.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.route(c, data)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings. Runs as one goroutine per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
