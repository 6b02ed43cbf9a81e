package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"diveops/internal/operations"
)

// RecordingNotifier keeps every notification it receives
type RecordingNotifier struct {
	mu    sync.Mutex
	notes []operations.Notification
}

// Notify implements operations.Notifier
func (n *RecordingNotifier) Notify(_ context.Context, note operations.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

// Notifications returns a copy of what was received
func (n *RecordingNotifier) Notifications() []operations.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]operations.Notification(nil), n.notes...)
}

// Count returns how many notifications were received
func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// DiscardLogger returns a logger that writes nowhere
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
