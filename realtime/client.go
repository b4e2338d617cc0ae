package realtime

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
// Outbound messages go through a buffered channel so one slow or dead
// subscriber never blocks fan-out to the others.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	done chan struct{}

	closed   atomic.Bool
	kiosk    atomic.Bool
	deviceID atomic.Value // string, set on kiosk registration
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
	}
}

// close marks the client dead and wakes its write pump. The send channel
// itself is never closed: a pairing timer or broadcast holding a stale
// reference must drop its message, not panic.
func (c *Client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

func (c *Client) ID() uint64 {
	return c.id
}

// IsKiosk reports whether this connection registered as a field device.
func (c *Client) IsKiosk() bool {
	return c.kiosk.Load()
}

// DeviceID returns the self-reported device identifier, if any.
func (c *Client) DeviceID() string {
	if v := c.deviceID.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Send queues a message for delivery, dropping it if the client has
// disconnected or its buffer is full. Fan-out is best-effort per
// subscriber.
func (c *Client) Send(msg Message) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Unexpected websocket close from client %d: %v", c.id, err)
			}
			return
		}
		c.hub.route(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
