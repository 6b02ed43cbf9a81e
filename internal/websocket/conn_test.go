package websocket

import (
	"errors"
	"sync"
	"time"
)

type frame struct {
	Type int
	Data []byte
}

// fakeConn is an in-memory Connection. Reads return queued frames and then
// readErr.
type fakeConn struct {
	mu sync.Mutex

	reads   []frame
	readErr error
	written []frame
	closed  bool

	readLimit   int64
	pongHandler func(string) error
	addr        string
}

func newFakeConn() *fakeConn {
	return &fakeConn{addr: "10.0.0.7:51200", readErr: errors.New("connection closed")}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.written = append(c.written, frame{Type: messageType, Data: data})
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reads) > 0 {
		f := c.reads[0]
		c.reads = c.reads[1:]
		return f.Type, f.Data, nil
	}
	return 0, nil, c.readErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Written() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.written...)
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
