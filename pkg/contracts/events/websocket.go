// Package events defines the messages pushed to wizard clients over the
// WebSocket feed.
package events

import (
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeWizardSnapshot carries the full published state of one session
	MessageTypeWizardSnapshot MessageType = "wizard:snapshot"
	// MessageTypeWizardNotification carries a user-facing notice raised by a session
	MessageTypeWizardNotification MessageType = "wizard:notification"
	// MessageTypeSessionClosed is sent once when a session is closed
	MessageTypeSessionClosed MessageType = "wizard:closed"

	MessageTypeConnection MessageType = "connection"
	MessageTypeError      MessageType = "error"
)

// Actions carried alongside a message type
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionClosed   = "closed"
	ActionNotified = "notified"
)

// BaseMessage is the envelope shared by every message
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage is a complete message. Subject names the wizard session
// the message concerns; clients watching a single session only receive
// messages with that subject.
type WebSocketMessage struct {
	BaseMessage
	Subject string `json:"subject,omitempty"`
	Action  string `json:"action,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewMessage builds a message stamped with a fresh id and the current time
func NewMessage(msgType MessageType, subject, action string, data any) WebSocketMessage {
	return WebSocketMessage{
		BaseMessage: BaseMessage{
			ID:        uuid.NewString(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
		},
		Subject: subject,
		Action:  action,
		Data:    data,
	}
}

// ConnectionData is the payload of the greeting sent to a new client
type ConnectionData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Subject  string `json:"subject,omitempty"`
	Message  string `json:"message"`
}

// ErrorData is the payload of an error message
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}
