package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 16 * 1024           // Largest inbound frame accepted from a peer.
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       ConnID
	identity Identity
	log      *slog.Logger

	mu     sync.Mutex
	send   chan []byte // Buffered channel of outbound frames.
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity, bufferSize int) *Client {
	id := ConnID(uuid.NewString())
	return &Client{
		hub:      hub,
		conn:     conn,
		id:       id,
		identity: identity,
		log:      hub.log.With("conn_id", id, "user_id", identity.ID),
		send:     make(chan []byte, bufferSize),
	}
}

func (c *Client) ID() ConnID {
	return c.id
}

func (c *Client) Identity() Identity {
	return c.identity
}

// Deliver queues frame for the write pump. A client whose buffer is full is
// closed rather than allowed to stall the sender.
func (c *Client) Deliver(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return ErrSlowConsumer
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send) // Stops the write pump.
}

// ReadPump pumps frames from the websocket connection to the hub. Every exit
// path, graceful or not, ends in Hub.Disconnect.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(ctx, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Connection dropped", "error", err)
			}
			return
		}
		c.dispatch(ctx, frame)
	}
}

// dispatch keeps a panic in one operation from taking the process down.
func (c *Client) dispatch(ctx context.Context, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic in dispatch", "panic", r)
		}
	}()
	c.hub.Dispatch(ctx, c, frame)
}

// WritePump pumps frames from the send buffer to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per websocket message: each carries a complete JSON event.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
