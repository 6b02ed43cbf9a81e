package websocket

import (
	"time"

	"diveops/pkg/contracts/events"
)

// Connection is the subset of a gorilla connection the pumps use, so they
// can run against a fake in tests.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// Broadcaster is what the services layer needs from the hub
type Broadcaster interface {
	BroadcastMessage(msg events.WebSocketMessage)
	BroadcastUpdate(msgType events.MessageType, subject, action string, data any)
	ClientCount() int
}

var _ Broadcaster = (*Hub)(nil)
