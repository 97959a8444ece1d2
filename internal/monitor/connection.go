package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket connection bound to one exam channel.
// All writes go through a single writer goroutine; gorilla/websocket
// permits only one concurrent writer per connection.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte // Buffered to absorb broadcast bursts
	examID    string      // Bound at handshake time, fixed for the connection's lifetime
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper and starts its writer.
func NewConnection(conn *websocket.Conn, examID string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		examID:  examID,
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// ExamID returns the exam channel this connection is registered under.
func (c *Connection) ExamID() string {
	return c.examID
}

// IsOpen reports whether the connection is still usable for delivery.
func (c *Connection) IsOpen() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// writeLoop cancels the connection context on every exit path so a
// transport failure marks the connection closed; later WriteJSON calls
// fail with ErrConnectionClosed instead of queueing to a dead writer.
// writeCh is never closed, queued frames are simply abandoned.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON frame for delivery with a 5-second bound.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the writer goroutine and the underlying connection.
// Safe to call from any goroutine, any number of times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
