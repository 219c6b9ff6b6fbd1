package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a gorilla connection. Session notifications
// arrive on timer goroutines while the read loop answers requests, and
// gorilla allows only one concurrent writer.
type Conn struct {
	raw *websocket.Conn
	mu  sync.Mutex
}

// Wrap returns a write-serialized view of conn.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{raw: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.SetWriteDeadline(time.Now().Add(writeWait))
	return c.raw.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one raw frame. It sets a read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.raw.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.raw.ReadMessage()
	return data, err
}

func (c *Conn) Close() error {
	return c.raw.Close()
}
