package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Conn is one viewer websocket. Outbound frames are queued on a buffered
// channel drained by writePump; a viewer that falls that far behind is dropped.
type Conn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	originID int64
	username string
}

func newConn(ws *websocket.Conn, log *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:   id,
		ws:   ws,
		log:  log.With("conn", id),
		send: make(chan []byte, sendBuffer),
	}
}

// ID is the connection identifier, also used as the viewer id.
func (c *Conn) ID() string { return c.id }

// Send queues a frame without blocking. It reports false when the connection is
// gone or its queue overflowed, in which case the connection is closed.
func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("viewer send queue full, dropping connection")
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Origin returns the origin the viewer is admitted to, or 0.
func (c *Conn) Origin() (int64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.originID, c.username
}

func (c *Conn) attach(originID int64, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.originID = originID
	c.username = username
}

// detach clears the origin if it is still originID.
func (c *Conn) detach(originID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.originID != originID {
		return false
	}
	c.originID = 0
	c.username = ""
	return true
}

// readPump delivers inbound frames to handle until the socket fails.
func (c *Conn) readPump(handle func([]byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("viewer read failed", slog.Any("error", err))
			}
			return
		}
		handle(data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("viewer write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
