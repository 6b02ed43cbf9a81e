package services

import (
	"context"
	"log/slog"

	"diveops/internal/operations"
	"diveops/internal/websocket"
	"diveops/pkg/contracts/events"
)

// HubNotifier logs session notifications and pushes them to the websocket
// clients watching the session.
type HubNotifier struct {
	hub    websocket.Broadcaster
	logger *slog.Logger
}

// NewHubNotifier creates a notifier
func NewHubNotifier(hub websocket.Broadcaster, logger *slog.Logger) *HubNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HubNotifier{hub: hub, logger: logger.With(slog.String("component", "notifier"))}
}

// Notify implements operations.Notifier
func (n *HubNotifier) Notify(ctx context.Context, note operations.Notification) {
	level := slog.LevelInfo
	switch note.Level {
	case operations.NotificationWarning:
		level = slog.LevelWarn
	case operations.NotificationError:
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "wizard_notification",
		slog.String("session_id", note.SessionID),
		slog.String("record_id", note.RecordID),
		slog.String("step", string(note.Step)),
		slog.String("title", note.Title),
		slog.String("message", note.Message))

	n.hub.BroadcastUpdate(events.MessageTypeWizardNotification, note.SessionID, events.ActionNotified, note)
}

var _ operations.Notifier = (*HubNotifier)(nil)
