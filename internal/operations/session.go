package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"diveops/pkg/contracts/domain"
)

// SessionDeps are the collaborators a Session needs. Records and Readiness
// are required; the rest fall back to no-op or real-time defaults.
type SessionDeps struct {
	Records   RecordStore
	Readiness ReadinessService
	Notifier  Notifier
	Clock     Clock
	Logger    *slog.Logger
	Tracer    *Tracer
}

// Snapshot is the published state of a session
type Snapshot struct {
	SessionID        string      `json:"session_id"`
	RecordID         string      `json:"record_id,omitempty"`
	Steps            []StepState `json:"steps"`
	CurrentStep      StepState   `json:"current_step"`
	CurrentStepIndex int         `json:"current_step_index"`
	Progress         int         `json:"progress"`
	CanFinish        bool        `json:"can_finish"`
	IsAutoSaving     bool        `json:"is_auto_saving"`
	AutoSavePending  bool        `json:"auto_save_pending"`
	LastSaveTime     *time.Time  `json:"last_save_time,omitempty"`
	Submitted        []StepID    `json:"submitted"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// sameState compares everything except UpdatedAt
func (s Snapshot) sameState(o Snapshot) bool {
	if s.SessionID != o.SessionID || s.RecordID != o.RecordID ||
		s.CurrentStepIndex != o.CurrentStepIndex || s.Progress != o.Progress ||
		s.CanFinish != o.CanFinish || s.IsAutoSaving != o.IsAutoSaving ||
		s.AutoSavePending != o.AutoSavePending {
		return false
	}
	if !statesEqual(s.Steps, o.Steps) {
		return false
	}
	if (s.LastSaveTime == nil) != (o.LastSaveTime == nil) {
		return false
	}
	if s.LastSaveTime != nil && !s.LastSaveTime.Equal(*o.LastSaveTime) {
		return false
	}
	if len(s.Submitted) != len(o.Submitted) {
		return false
	}
	for i := range s.Submitted {
		if s.Submitted[i] != o.Submitted[i] {
			return false
		}
	}
	return true
}

// Session drives one wizard over one operation record. It polls the record
// store and the readiness service while a record identity exists, derives
// step statuses from what it fetched, guards navigation, and routes step
// data to either an identity write or the auto-saver.
//
// Poll results issued before the completion time of the last successful
// write are discarded, and every successful write refetches the record, so
// a slow poll never hides a write the user just made.
type Session struct {
	id       string
	deps     SessionDeps
	opts     SessionOptions
	logger   *slog.Logger
	notifier Notifier
	saver    *AutoSaver

	pollCtx    context.Context
	cancelPoll context.CancelFunc

	mu               sync.Mutex
	recordID         string
	record           *domain.OperationRecord
	readiness        domain.DocumentReadiness
	deriver          Deriver
	states           []StepState
	nav              Navigator
	payloads         map[StepID]map[string]any
	lastWriteAt      time.Time
	creating         chan struct{} // closed when an in-flight create finishes
	recordFailing    bool
	documentsFailing bool
	polling          bool
	recordTimer      Timer
	documentTimer    Timer
	advanceTimers    map[uint64]Timer
	advanceSeq       uint64
	subscribers      map[uint64]func(Snapshot)
	subscriberSeq    uint64
	published        *Snapshot
	updatedAt        time.Time
	started          bool
	closed           bool
}

// NewSession creates a session. Nothing is fetched until Start.
func NewSession(deps SessionDeps, opts SessionOptions) (*Session, error) {
	if deps.Records == nil {
		return nil, NewValidationError("", "record store is required")
	}
	if deps.Readiness == nil {
		return nil, NewValidationError("", "readiness service is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = DefaultTracer()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	next := deps.Notifier
	if next == nil {
		next = nopNotifier{}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            opts.ID,
		deps:          deps,
		opts:          opts,
		logger:        deps.Logger.With(slog.String("component", "wizard_session"), slog.String("session_id", opts.ID)),
		pollCtx:       pollCtx,
		cancelPoll:    cancel,
		recordID:      opts.RecordID,
		payloads:      make(map[StepID]map[string]any),
		advanceTimers: make(map[uint64]Timer),
		subscribers:   make(map[uint64]func(Snapshot)),
	}
	s.notifier = NotifierFunc(func(ctx context.Context, n Notification) {
		n.SessionID = s.id
		next.Notify(ctx, n)
	})
	s.saver = NewAutoSaver(context.Background(), AutoSaverConfig{
		Delay:    opts.AutoSaveDelay,
		Save:     s.saveFields,
		Clock:    deps.Clock,
		Notifier: s.notifier,
		Logger:   s.logger.With(slog.String("component", "autosave")),
		Tracer:   deps.Tracer,
		OnSaved:  s.onSaved,
		OnChange: s.onAutoSaveChange,
	})

	s.rederiveLocked()
	return s, nil
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// RecordID returns the record identity, or "" before the operation step completes
func (s *Session) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordID
}

// Start mounts the session. When resuming a record it fetches the record and
// readiness, re-points navigation to the first incomplete step and starts
// polling. It returns a not_found error if the record does not exist.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	recordID := s.recordID
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	s.logger.InfoContext(ctx, "session_started", slog.String("record_id", recordID))
	if recordID == "" {
		return nil
	}

	if err := s.Refresh(ctx); err != nil && !IsPersistenceError(err) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil && !s.recordFailing {
		return NewNotFoundError("operation record", recordID)
	}
	s.startPollingLocked()
	return nil
}

// Refresh fetches the record and the document readiness concurrently. Failures
// are notified and returned as persistence errors; the session stays usable.
func (s *Session) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.fetchRecord(ctx) })
	g.Go(func() error { return s.fetchReadiness(ctx) })
	return g.Wait()
}

func (s *Session) fetchRecord(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	id := s.recordID
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	issued := s.deps.Clock.Now()
	ctx, span := s.deps.Tracer.TracePoll(ctx, "record", id)
	record, err := s.deps.Records.FetchRecord(ctx, id)
	s.deps.Tracer.RecordPoll(ctx, span, "record", err)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		first := !s.recordFailing
		s.recordFailing = true
		s.mu.Unlock()
		return s.pollFailed(ctx, "record", id, first, err)
	}
	recovered := s.recordFailing
	s.recordFailing = false
	if issued.Before(s.lastWriteAt) {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "poll_result_discarded_stale",
			slog.String("source", "record"),
			slog.Time("issued_at", issued))
		return nil
	}
	s.record = record
	s.rederiveLocked()
	notify := s.publishLocked()
	s.mu.Unlock()

	if recovered {
		s.logger.InfoContext(ctx, "poll_recovered", slog.String("source", "record"))
	}
	notify()
	return nil
}

func (s *Session) fetchReadiness(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	id := s.recordID
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	ctx, span := s.deps.Tracer.TracePoll(ctx, "documents", id)
	readiness, err := s.deps.Readiness.CheckReadiness(ctx, id)
	s.deps.Tracer.RecordPoll(ctx, span, "documents", err)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		first := !s.documentsFailing
		s.documentsFailing = true
		s.mu.Unlock()
		return s.pollFailed(ctx, "documents", id, first, err)
	}
	recovered := s.documentsFailing
	s.documentsFailing = false
	s.readiness = readiness
	s.rederiveLocked()
	notify := s.publishLocked()
	s.mu.Unlock()

	if recovered {
		s.logger.InfoContext(ctx, "poll_recovered", slog.String("source", "documents"))
	}
	notify()
	return nil
}

// pollFailed logs every failure and notifies only on the first of a streak.
func (s *Session) pollFailed(ctx context.Context, source, recordID string, first bool, err error) error {
	perr := NewPersistenceError("fetch_"+source, err)
	s.logger.WarnContext(ctx, "poll_failed",
		slog.String("source", source),
		slog.String("record_id", recordID),
		slog.Bool("first_failure", first),
		slog.String("error", err.Error()))
	if first {
		s.notifier.Notify(ctx, Notification{
			RecordID: recordID,
			Level:    NotificationWarning,
			Title:    "Could not refresh the operation",
			Message:  fmt.Sprintf("Loading the latest %s state failed. Retrying in the background.", source),
			Time:     s.deps.Clock.Now(),
		})
	}
	return perr
}

func (s *Session) startPollingLocked() {
	if s.polling || s.closed || s.recordID == "" {
		return
	}
	s.polling = true
	s.schedulePollLocked(&s.recordTimer, s.opts.RecordPollInterval, s.fetchRecord)
	s.schedulePollLocked(&s.documentTimer, s.opts.DocumentPollInterval, s.fetchReadiness)
}

func (s *Session) schedulePollLocked(slot *Timer, interval time.Duration, fetch func(context.Context) error) {
	*slot = s.deps.Clock.AfterFunc(interval, func() {
		_ = fetch(s.pollCtx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.schedulePollLocked(slot, interval, fetch)
		}
	})
}

// CompleteStep records data as the step's payload and persists it. The
// operation step adopts data["id"] or creates the record; once the identity
// exists its fields are written directly. Every other step goes through the
// auto-saver. On success an advance to the next step is scheduled.
func (s *Session) CompleteStep(ctx context.Context, step StepID, data map[string]any) error {
	if StepIndex(step) < 0 {
		return &OperationError{Type: ErrorTypeValidation, Step: string(step), Message: "unknown step", Cause: ErrUnknownStep}
	}

	ctx, span := s.deps.Tracer.TraceStepCompletion(ctx, s.id, step)
	defer span.End()

	fields, err := recordFields(step, data)
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.mu.Lock()
	// a second operation completion waits for an in-flight create and then
	// updates the record it produced
	for step == StepOperation && s.recordID == "" && s.creating != nil && !s.closed {
		wait := s.creating
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	recordID := s.recordID
	if step != StepOperation && recordID == "" {
		s.mu.Unlock()
		return NewInvalidStateError(string(step), "the operation record has not been created yet")
	}
	var created chan struct{}
	if step == StepOperation && recordID == "" {
		created = make(chan struct{})
		s.creating = created
	}
	s.mu.Unlock()

	if step == StepOperation {
		err := s.completeOperation(ctx, recordID, data, fields)
		if created != nil {
			s.mu.Lock()
			s.creating = nil
			s.mu.Unlock()
			close(created)
		}
		if err != nil {
			span.RecordError(err)
			return err
		}
	} else {
		s.saver.Trigger(fields)
	}

	s.mu.Lock()
	if !s.closed {
		s.payloads[step] = copyPayload(data)
		s.scheduleAdvanceLocked()
	}
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	s.logger.InfoContext(ctx, "step_completed",
		slog.String("step", string(step)),
		slog.Int("fields", len(fields)))
	return nil
}

func (s *Session) completeOperation(ctx context.Context, recordID string, data, fields map[string]any) error {
	supplied, _ := data[domain.FieldID].(string)
	cleaned := CleanPayload(fields)

	switch {
	case recordID == "" && supplied != "":
		s.adoptIdentity(ctx, supplied)
	case recordID == "":
		id, err := s.deps.Records.CreateRecord(ctx, cleaned)
		if err != nil {
			return s.writeFailed(ctx, "create_record", recordID, err)
		}
		s.markWritten(s.deps.Clock.Now())
		s.adoptIdentity(ctx, id)
	default:
		if supplied != "" && supplied != recordID {
			s.logger.WarnContext(ctx, "identity_change_ignored",
				slog.String("record_id", recordID),
				slog.String("supplied_id", supplied))
		}
		if len(cleaned) > 0 {
			if err := s.deps.Records.UpdateRecord(ctx, recordID, cleaned); err != nil {
				return s.writeFailed(ctx, "update_record", recordID, err)
			}
			s.markWritten(s.deps.Clock.Now())
		}
	}

	_ = s.Refresh(ctx)
	return nil
}

func (s *Session) adoptIdentity(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordID != "" {
		return
	}
	s.recordID = id
	s.startPollingLocked()
	s.logger.InfoContext(ctx, "record_identity_adopted", slog.String("record_id", id))
}

func (s *Session) writeFailed(ctx context.Context, op, recordID string, err error) error {
	perr := NewPersistenceError(op, err)
	perr.Step = string(StepOperation)
	s.logger.ErrorContext(ctx, "record_write_failed",
		slog.String("op", op),
		slog.String("record_id", recordID),
		slog.String("error", err.Error()))
	s.notifier.Notify(ctx, Notification{
		RecordID: recordID,
		Step:     StepOperation,
		Level:    NotificationError,
		Title:    "Could not save the operation",
		Message:  "The general information could not be saved. Please try again.",
		Time:     s.deps.Clock.Now(),
	})
	return perr
}

func (s *Session) markWritten(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.lastWriteAt) {
		s.lastWriteAt = at
	}
}

// saveFields is the auto-saver's write path
func (s *Session) saveFields(ctx context.Context, fields map[string]any) error {
	id := s.RecordID()
	if id == "" {
		return ErrNoRecord
	}
	return s.deps.Records.UpdateRecord(ctx, id, fields)
}

// onSaved invalidates the cached record after an auto-save write
func (s *Session) onSaved(completedAt time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if completedAt.After(s.lastWriteAt) {
		s.lastWriteAt = completedAt
	}
	s.mu.Unlock()

	_ = s.fetchRecord(s.pollCtx)
}

func (s *Session) onAutoSaveChange(AutoSaveStatus) {
	s.mu.Lock()
	if s.closed || !s.started {
		s.mu.Unlock()
		return
	}
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

// scheduleAdvanceLocked moves to the next step after the advance delay. The
// move is guarded like any other, so it does nothing if derivation has not
// caught up with the completion yet.
func (s *Session) scheduleAdvanceLocked() {
	s.advanceSeq++
	key := s.advanceSeq
	s.advanceTimers[key] = s.deps.Clock.AfterFunc(s.opts.AutoAdvanceDelay, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.advanceTimers, key)
		from := s.nav.Current()
		moved := s.nav.NextStep(s.states)
		notify := s.publishLocked()
		s.mu.Unlock()

		if moved {
			s.logger.Debug("auto_advanced", slog.Int("from", from), slog.Int("to", from+1))
		} else {
			s.logger.Debug("auto_advance_denied", slog.Int("from", from))
			s.deps.Tracer.RecordNavigationRejected(s.pollCtx, "auto_advance")
		}
		notify()
	})
}

// GoToStep moves to step i if it is navigable
func (s *Session) GoToStep(i int) bool {
	return s.navigate("goto", func(n *Navigator, states []StepState) bool {
		return n.GoToStep(states, i)
	})
}

// NextStep moves forward one step if it is navigable
func (s *Session) NextStep() bool {
	return s.navigate("next", func(n *Navigator, states []StepState) bool {
		return n.NextStep(states)
	})
}

// PreviousStep moves back one step unless already at the first
func (s *Session) PreviousStep() bool {
	return s.navigate("previous", func(n *Navigator, _ []StepState) bool {
		return n.PreviousStep()
	})
}

func (s *Session) navigate(action string, move func(*Navigator, []StepState) bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	moved := move(&s.nav, s.states)
	current := s.nav.Current()
	notify := s.publishLocked()
	s.mu.Unlock()

	if !moved {
		s.deps.Tracer.RecordNavigationRejected(s.pollCtx, action)
		s.logger.Debug("navigation_rejected", slog.String("action", action), slog.Int("current", current))
	}
	notify()
	return moved
}

// rederiveLocked recomputes step states and, when they changed, re-points
// navigation at the first incomplete step.
func (s *Session) rederiveLocked() {
	states := s.deriver.Derive(s.record, s.readiness, s.recordID != "")
	if s.states != nil && statesEqual(states, s.states) {
		s.states = states
		return
	}
	s.states = states

	first := FirstIncompleteIndex(states)
	if current := s.nav.Current(); current != first {
		s.logger.Debug("navigation_resynced", slog.Int("from", current), slog.Int("to", first))
		s.nav.Reset(first)
	}
}

// Snapshot returns the current published state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	status := s.saver.Status()
	idx := s.nav.Current()

	snap := Snapshot{
		SessionID:        s.id,
		RecordID:         s.recordID,
		Steps:            append([]StepState(nil), s.states...),
		CurrentStepIndex: idx,
		Progress:         Progress(s.states),
		CanFinish:        CanFinish(s.states),
		IsAutoSaving:     status.InFlight,
		AutoSavePending:  status.Pending,
		Submitted:        make([]StepID, 0, len(s.payloads)),
		UpdatedAt:        s.updatedAt,
	}
	if idx >= 0 && idx < len(s.states) {
		snap.CurrentStep = s.states[idx]
	}
	if !status.LastSaveTime.IsZero() {
		t := status.LastSaveTime
		snap.LastSaveTime = &t
	}
	for _, d := range stepTable {
		if _, ok := s.payloads[d.ID]; ok {
			snap.Submitted = append(snap.Submitted, d.ID)
		}
	}
	return snap
}

// publishLocked records the snapshot and returns a func that delivers it to
// subscribers. It must be called with the lock held and the returned func
// invoked after releasing it. Nothing is delivered if the state is unchanged.
func (s *Session) publishLocked() func() {
	snap := s.snapshotLocked()
	if s.published != nil && s.published.sameState(snap) {
		return func() {}
	}
	s.updatedAt = s.deps.Clock.Now()
	snap.UpdatedAt = s.updatedAt
	s.published = &snap

	if !s.started || len(s.subscribers) == 0 {
		return func() {}
	}
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(snap)
		}
	}
}

// Subscribe registers fn to receive every changed snapshot. fn runs outside
// the session lock and may call back into the session. The returned func
// cancels the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriberSeq++
	key := s.subscriberSeq
	if s.subscribers != nil {
		s.subscribers[key] = fn
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, key)
	}
}

// StepPayload returns a copy of the last data submitted for step
func (s *Session) StepPayload(step StepID) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[step]
	if !ok {
		return nil, false
	}
	return copyPayload(p), true
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops polling, pending auto-advances and the auto-saver. Buffered
// edits that have not been flushed are dropped. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.recordTimer != nil {
		s.recordTimer.Stop()
	}
	if s.documentTimer != nil {
		s.documentTimer.Stop()
	}
	for key, t := range s.advanceTimers {
		t.Stop()
		delete(s.advanceTimers, key)
	}
	s.subscribers = nil
	recordID := s.recordID
	s.mu.Unlock()

	s.cancelPoll()
	s.saver.Close()
	s.logger.Info("session_closed", slog.String("record_id", recordID))
}

// recordFields keeps the writable record keys of data and validates them
func recordFields(step StepID, data map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(data))
	for k, v := range data {
		if domain.IsWritableField(k) {
			fields[k] = v
		}
	}
	if err := domain.ValidateFields(CleanPayload(fields)); err != nil {
		return nil, &OperationError{
			Type:    ErrorTypeValidation,
			Step:    string(step),
			Message: "invalid step data",
			Cause:   err,
		}
	}
	return fields, nil
}

func copyPayload(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
