package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Client owns one socket's outbound side: a bounded send queue drained by
// writePump. It is the hub's delivery target for this connection.
type Client struct {
	sock Socket
	send chan []byte

	pingInterval  time.Duration
	writeDeadline time.Duration
	log           *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

func newClient(sock Socket, buffer int, pingInterval, writeDeadline time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		sock:          sock,
		send:          make(chan []byte, buffer),
		pingInterval:  pingInterval,
		writeDeadline: writeDeadline,
		log:           log,
	}
}

// Enqueue hands a frame to the write pump without blocking. False means the
// queue is full or the client is closed; the hub treats that as a delivery
// failure.
func (c *Client) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// CloseSlow implements the hub's disconnect-on-overflow policy.
func (c *Client) CloseSlow() { c.close() }

// close shuts the send queue and the socket. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
		_ = c.sock.Close()
	}
	c.mu.Unlock()
}

// writePump serializes all socket writes: queued frames plus keepalive
// pings. It exits when the queue closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeDeadline))
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeDeadline))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
