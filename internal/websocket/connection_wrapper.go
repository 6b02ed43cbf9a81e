package websocket

import (
	"github.com/gorilla/websocket"
)

// wsConn adapts *websocket.Conn to Connection
type wsConn struct {
	*websocket.Conn
}

// WrapConn wraps a gorilla connection
func WrapConn(conn *websocket.Conn) Connection {
	return wsConn{Conn: conn}
}

// RemoteAddr returns the peer address as a string
func (c wsConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
