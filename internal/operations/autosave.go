package operations

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type clearedMarker struct{}

// Cleared marks a field the user explicitly emptied. CleanPayload turns it
// into a nil write so it is not confused with a field that was never touched.
var Cleared = clearedMarker{}

// CleanPayload drops keys whose value is "" or nil and maps Cleared to nil.
// The input map is not modified.
func CleanPayload(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
			out[k] = v
		case clearedMarker:
			out[k] = nil
		default:
			out[k] = v
		}
	}
	return out
}

// SaveFunc performs one partial write of cleaned fields
type SaveFunc func(ctx context.Context, fields map[string]any) error

// AutoSaveStatus is the auto-save state shown to the user
type AutoSaveStatus struct {
	InFlight     bool      `json:"in_flight"`
	Pending      bool      `json:"pending"`
	ScheduledAt  time.Time `json:"scheduled_at,omitempty"`
	LastSaveTime time.Time `json:"last_save_time,omitempty"`
}

// AutoSaverConfig wires an AutoSaver to its collaborators
type AutoSaverConfig struct {
	Delay    time.Duration
	Save     SaveFunc
	Clock    Clock
	Notifier Notifier
	Logger   *slog.Logger
	Tracer   *Tracer

	// OnSaved runs after each successful write with its completion time.
	OnSaved func(completedAt time.Time)
	// OnChange runs after every status transition.
	OnChange func(AutoSaveStatus)
}

// AutoSaver coalesces partial edits and writes them once the input has been
// quiet for Delay. Each Trigger cancels the pending flush and reschedules it;
// the flushed payload is every triggered key merged with later calls winning.
// Failed writes are reported once and not retried.
type AutoSaver struct {
	cfg AutoSaverConfig
	ctx context.Context

	mu           sync.Mutex
	pending      Timer
	scheduledAt  time.Time
	accumulator  map[string]any
	seq          uint64
	inFlight     int
	lastSaveTime time.Time
	closed       bool

	wg sync.WaitGroup
}

// NewAutoSaver creates an auto-saver. ctx is used for the writes it issues
// and is expected to outlive individual requests.
func NewAutoSaver(ctx context.Context, cfg AutoSaverConfig) *AutoSaver {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultAutoSaveDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = DefaultTracer()
	}
	return &AutoSaver{
		cfg:         cfg,
		ctx:         ctx,
		accumulator: make(map[string]any),
	}
}

// Trigger merges fields into the pending payload and restarts the debounce delay.
func (a *AutoSaver) Trigger(fields map[string]any) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}

	for k, v := range fields {
		a.accumulator[k] = v
	}

	if a.pending != nil {
		a.pending.Stop()
	}
	a.seq++
	seq := a.seq
	a.scheduledAt = a.cfg.Clock.Now().Add(a.cfg.Delay)
	a.pending = a.cfg.Clock.AfterFunc(a.cfg.Delay, func() { a.fire(seq) })
	status := a.statusLocked()
	a.mu.Unlock()

	a.cfg.Logger.Debug("autosave_scheduled",
		slog.Int("fields", len(fields)),
		slog.Time("scheduled_at", status.ScheduledAt))
	a.changed(status)
}

func (a *AutoSaver) fire(seq uint64) {
	a.mu.Lock()
	if a.closed || seq != a.seq {
		a.mu.Unlock()
		return
	}
	a.pending = nil
	a.scheduledAt = time.Time{}
	payload := CleanPayload(a.accumulator)
	a.accumulator = make(map[string]any)

	if len(payload) == 0 {
		status := a.statusLocked()
		a.mu.Unlock()
		a.cfg.Logger.Debug("autosave_skipped_empty_payload")
		a.cfg.Tracer.RecordAutoSaveSkipped(a.ctx)
		a.changed(status)
		return
	}

	a.inFlight++
	a.wg.Add(1)
	status := a.statusLocked()
	a.mu.Unlock()

	a.changed(status)
	a.flush(payload)
}

func (a *AutoSaver) flush(payload map[string]any) {
	defer a.wg.Done()

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, span := a.cfg.Tracer.TraceAutoSaveFlush(a.ctx, keys)
	started := a.cfg.Clock.Now()
	err := a.cfg.Save(ctx, payload)
	completed := a.cfg.Clock.Now()
	a.cfg.Tracer.RecordAutoSaveFlush(ctx, span, completed.Sub(started), err)

	a.mu.Lock()
	a.inFlight--
	if err == nil && completed.After(a.lastSaveTime) {
		a.lastSaveTime = completed
	}
	if err != nil && !a.closed {
		a.carryOverLocked(payload)
	}
	status := a.statusLocked()
	closed := a.closed
	a.mu.Unlock()

	if err != nil {
		perr := NewPersistenceError("autosave", err)
		a.cfg.Logger.Error("autosave_flush_failed",
			slog.Any("fields", keys),
			slog.String("error", perr.Error()))
		if closed {
			return
		}
		a.cfg.Notifier.Notify(ctx, Notification{
			Level:   NotificationError,
			Title:   "Could not save automatically",
			Message: "Your latest changes were not saved. They will be saved with your next edit.",
			Time:    completed,
		})
	} else {
		a.cfg.Logger.Info("autosave_flushed",
			slog.Any("fields", keys),
			slog.Duration("duration", completed.Sub(started)))
		if closed {
			return
		}
		if a.cfg.OnSaved != nil {
			a.cfg.OnSaved(completed)
		}
	}

	a.changed(status)
}

// carryOverLocked returns a failed payload to the accumulator so it rides
// with the next edit. Keys edited since the flush keep their newer value.
// Nothing is rescheduled.
func (a *AutoSaver) carryOverLocked(payload map[string]any) {
	for k, v := range payload {
		if _, ok := a.accumulator[k]; ok {
			continue
		}
		if v == nil {
			v = Cleared
		}
		a.accumulator[k] = v
	}
}

// Status returns the current auto-save state
func (a *AutoSaver) Status() AutoSaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *AutoSaver) statusLocked() AutoSaveStatus {
	return AutoSaveStatus{
		InFlight:     a.inFlight > 0,
		Pending:      a.pending != nil,
		ScheduledAt:  a.scheduledAt,
		LastSaveTime: a.lastSaveTime,
	}
}

func (a *AutoSaver) changed(status AutoSaveStatus) {
	if a.cfg.OnChange != nil {
		a.cfg.OnChange(status)
	}
}

// Close cancels any pending flush and drops buffered edits. A write already
// in flight runs to completion.
func (a *AutoSaver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
	a.seq++
	a.scheduledAt = time.Time{}
	a.accumulator = nil
}

// Wait blocks until writes already in flight have finished.
func (a *AutoSaver) Wait() {
	a.wg.Wait()
}
