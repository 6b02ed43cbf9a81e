package services

import (
	"log/slog"
	"sync"

	"diveops/internal/operations"
	"diveops/internal/websocket"
	"diveops/pkg/contracts/events"
)

const broadcastQueue = 256

// SnapshotBroadcaster is the single writer of wizard state to the websocket
// hub. Sessions hand it snapshots from their Subscribe callbacks; a single
// goroutine forwards them in arrival order and keeps the latest snapshot
// of every open session.
type SnapshotBroadcaster struct {
	mu     sync.RWMutex
	latest map[string]operations.Snapshot

	hub    websocket.Broadcaster
	logger *slog.Logger

	updates  chan snapshotUpdate
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type snapshotUpdate struct {
	action    string
	sessionID string
	snapshot  operations.Snapshot
}

// NewSnapshotBroadcaster creates a broadcaster and starts its loop
func NewSnapshotBroadcaster(hub websocket.Broadcaster, logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &SnapshotBroadcaster{
		latest:  make(map[string]operations.Snapshot),
		hub:     hub,
		logger:  logger.With(slog.String("component", "snapshot_broadcaster")),
		updates: make(chan snapshotUpdate, broadcastQueue),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *SnapshotBroadcaster) run() {
	defer close(b.done)
	for {
		select {
		case u := <-b.updates:
			b.handle(u)
		case <-b.stop:
			// deliver what was queued before Stop
			for {
				select {
				case u := <-b.updates:
					b.handle(u)
				default:
					return
				}
			}
		}
	}
}

func (b *SnapshotBroadcaster) handle(u snapshotUpdate) {
	b.mu.Lock()
	if u.action == events.ActionClosed {
		delete(b.latest, u.sessionID)
	} else {
		b.latest[u.sessionID] = u.snapshot
	}
	b.mu.Unlock()

	if u.action == events.ActionClosed {
		b.hub.BroadcastUpdate(events.MessageTypeSessionClosed, u.sessionID, u.action,
			map[string]string{"session_id": u.sessionID})
		return
	}
	b.hub.BroadcastUpdate(events.MessageTypeWizardSnapshot, u.sessionID, u.action, u.snapshot)
	b.logger.Debug("snapshot_broadcast",
		slog.String("session_id", u.sessionID),
		slog.String("action", u.action),
		slog.Int("current_step_index", u.snapshot.CurrentStepIndex))
}

func (b *SnapshotBroadcaster) enqueue(u snapshotUpdate) {
	select {
	case <-b.stop:
		return
	default:
	}
	select {
	case b.updates <- u:
	case <-b.stop:
	}
}

// Publish queues a snapshot for delivery
func (b *SnapshotBroadcaster) Publish(action string, snap operations.Snapshot) {
	b.enqueue(snapshotUpdate{action: action, sessionID: snap.SessionID, snapshot: snap})
}

// Closed announces that a session ended and forgets its snapshot
func (b *SnapshotBroadcaster) Closed(sessionID string) {
	b.enqueue(snapshotUpdate{action: events.ActionClosed, sessionID: sessionID})
}

// Latest returns the last snapshot delivered for a session
func (b *SnapshotBroadcaster) Latest(sessionID string) (operations.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.latest[sessionID]
	return snap, ok
}

// Stop delivers queued updates and ends the loop. Later publishes are dropped.
func (b *SnapshotBroadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}
