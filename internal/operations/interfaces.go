package operations

import (
	"context"
	"time"

	"diveops/pkg/contracts/domain"
)

// RecordStore reads and writes operation records
type RecordStore interface {
	// FetchRecord returns nil, nil when the record does not exist
	FetchRecord(ctx context.Context, id string) (*domain.OperationRecord, error)
	CreateRecord(ctx context.Context, fields map[string]any) (string, error)
	UpdateRecord(ctx context.Context, id string, fields map[string]any) error
}

// ReadinessService reports the signing state of the safety documents
type ReadinessService interface {
	CheckReadiness(ctx context.Context, recordID string) (domain.DocumentReadiness, error)
}

// Notifier surfaces a message to the user. Delivery is fire and forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationLevel is the severity of a Notification
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a user-facing message raised by a session
type Notification struct {
	SessionID string            `json:"session_id,omitempty"`
	RecordID  string            `json:"record_id,omitempty"`
	Step      StepID            `json:"step,omitempty"`
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Time      time.Time         `json:"time"`
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f(ctx, n)
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}
