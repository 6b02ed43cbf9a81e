package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"diveops/internal/config"
	"diveops/internal/operations"
	"diveops/internal/store"
	"diveops/internal/websocket"
	api "diveops/pkg/contracts/api/v1"
	"diveops/pkg/contracts/domain"
	"diveops/pkg/contracts/events"
)

// RecordLister enumerates stored operation records
type RecordLister interface {
	ListRecords(ctx context.Context) ([]*domain.OperationRecord, error)
}

// WizardDeps are the collaborators of a WizardService. Records and
// Readiness are required.
type WizardDeps struct {
	Records   operations.RecordStore
	Readiness operations.ReadinessService
	Hub       websocket.Broadcaster
	Clock     operations.Clock
	Tracer    *operations.Tracer
	Logger    *slog.Logger
}

type liveSession struct {
	session     *operations.Session
	unsubscribe func()
	createdAt   time.Time
}

// WizardService owns the open wizard sessions
type WizardService struct {
	deps        WizardDeps
	cfg         config.WizardConfig
	logger      *slog.Logger
	broadcaster *SnapshotBroadcaster
	notifier    *HubNotifier

	mu       sync.RWMutex
	sessions map[string]*liveSession
	closed   bool
}

// NewWizardService creates the service
func NewWizardService(deps WizardDeps, cfg config.WizardConfig) (*WizardService, error) {
	if deps.Records == nil || deps.Readiness == nil {
		return nil, operations.NewValidationError("", "record store and readiness service are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = discardHub{}
	}
	if deps.Clock == nil {
		deps.Clock = operations.RealClock()
	}
	if deps.Tracer == nil {
		deps.Tracer = operations.DefaultTracer()
	}

	return &WizardService{
		deps:        deps,
		cfg:         cfg,
		logger:      deps.Logger.With(slog.String("service", "wizard")),
		broadcaster: NewSnapshotBroadcaster(deps.Hub, deps.Logger),
		notifier:    NewHubNotifier(deps.Hub, deps.Logger),
		sessions:    make(map[string]*liveSession),
	}, nil
}

func (s *WizardService) sessionOptions(recordID string) operations.SessionOptions {
	return operations.SessionOptions{
		RecordID:             recordID,
		RecordPollInterval:   s.cfg.RecordPollInterval,
		DocumentPollInterval: s.cfg.DocumentPollInterval,
		AutoSaveDelay:        s.cfg.AutoSaveDelay,
		AutoAdvanceDelay:     s.cfg.AutoAdvanceDelay,
	}
}

func (s *WizardService) atCapacityLocked() bool {
	return s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions
}

// CreateSession opens a wizard. An empty recordID starts a new operation;
// otherwise the existing record is loaded and the wizard resumes at its
// first incomplete step.
func (s *WizardService) CreateSession(ctx context.Context, recordID string) (operations.Snapshot, error) {
	s.mu.RLock()
	full, closed := s.atCapacityLocked(), s.closed
	s.mu.RUnlock()
	if closed {
		return operations.Snapshot{}, operations.ErrSessionClosed
	}
	if full {
		return operations.Snapshot{}, ErrSessionLimit
	}

	session, err := operations.NewSession(operations.SessionDeps{
		Records:   s.deps.Records,
		Readiness: s.deps.Readiness,
		Notifier:  s.notifier,
		Clock:     s.deps.Clock,
		Logger:    s.deps.Logger,
		Tracer:    s.deps.Tracer,
	}, s.sessionOptions(recordID))
	if err != nil {
		return operations.Snapshot{}, err
	}
	if err := session.Start(ctx); err != nil {
		session.Close()
		return operations.Snapshot{}, fmt.Errorf("start wizard session: %w", err)
	}

	live := &liveSession{session: session, createdAt: s.deps.Clock.Now()}
	s.mu.Lock()
	if s.closed || s.atCapacityLocked() {
		closed := s.closed
		s.mu.Unlock()
		session.Close()
		if closed {
			return operations.Snapshot{}, operations.ErrSessionClosed
		}
		return operations.Snapshot{}, ErrSessionLimit
	}
	s.sessions[session.ID()] = live
	s.mu.Unlock()

	live.unsubscribe = session.Subscribe(func(snap operations.Snapshot) {
		s.broadcaster.Publish(events.ActionUpdated, snap)
	})
	s.deps.Tracer.RecordSessionDelta(ctx, 1)

	snap := session.Snapshot()
	s.broadcaster.Publish(events.ActionCreated, snap)
	s.logger.InfoContext(ctx, "session_created",
		slog.String("session_id", session.ID()),
		slog.String("record_id", snap.RecordID),
		slog.Int("current_step_index", snap.CurrentStepIndex))
	return snap, nil
}

func (s *WizardService) lookup(id string) (*operations.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return live.session, nil
}

// GetSession returns the current snapshot of a session
func (s *WizardService) GetSession(id string) (operations.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return operations.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// ListSessions returns a snapshot of every open session, oldest first
func (s *WizardService) ListSessions() []operations.Snapshot {
	s.mu.RLock()
	live := make([]*liveSession, 0, len(s.sessions))
	for _, l := range s.sessions {
		live = append(live, l)
	}
	s.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		if !live[i].createdAt.Equal(live[j].createdAt) {
			return live[i].createdAt.Before(live[j].createdAt)
		}
		return live[i].session.ID() < live[j].session.ID()
	})
	out := make([]operations.Snapshot, 0, len(live))
	for _, l := range live {
		out = append(out, l.session.Snapshot())
	}
	return out
}

// Count returns the number of open sessions
func (s *WizardService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Navigate applies a navigation action. A guard rejection is not an error:
// moved is false and the snapshot shows the unchanged position.
func (s *WizardService) Navigate(ctx context.Context, id, action string, index *int) (bool, operations.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return false, operations.Snapshot{}, err
	}

	var moved bool
	switch action {
	case api.ActionGoTo:
		if index == nil {
			return false, operations.Snapshot{}, operations.NewValidationError("", "index is required for goto")
		}
		moved = session.GoToStep(*index)
	case api.ActionNext:
		moved = session.NextStep()
	case api.ActionPrevious:
		moved = session.PreviousStep()
	default:
		return false, operations.Snapshot{}, operations.NewValidationError("", fmt.Sprintf("unknown navigation action %q", action))
	}

	snap := session.Snapshot()
	s.logger.DebugContext(ctx, "session_navigated",
		slog.String("session_id", id),
		slog.String("action", action),
		slog.Bool("moved", moved),
		slog.Int("current_step_index", snap.CurrentStepIndex))
	return moved, snap, nil
}

// CompleteStep submits data for a step
func (s *WizardService) CompleteStep(ctx context.Context, id, step string, data map[string]any) (operations.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return operations.Snapshot{}, err
	}
	stepID, err := operations.ParseStepID(step)
	if err != nil {
		return operations.Snapshot{}, &operations.OperationError{
			Type:    operations.ErrorTypeValidation,
			Step:    step,
			Message: "unknown step",
			Cause:   err,
		}
	}
	if err := session.CompleteStep(ctx, stepID, explicitClears(data)); err != nil {
		return operations.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// explicitClears turns a record field sent as JSON null into
// operations.Cleared. A field that is absent stays untouched.
func explicitClears(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == nil && domain.IsWritableField(k) {
			out[k] = operations.Cleared
			continue
		}
		out[k] = v
	}
	return out
}

// Refresh refetches the record and document readiness of a session
func (s *WizardService) Refresh(ctx context.Context, id string) (operations.Snapshot, error) {
	session, err := s.lookup(id)
	if err != nil {
		return operations.Snapshot{}, err
	}
	if err := session.Refresh(ctx); err != nil {
		return operations.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// CloseSession closes one session
func (s *WizardService) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	live, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.closeLive(ctx, live)
	return nil
}

func (s *WizardService) closeLive(ctx context.Context, live *liveSession) {
	if live.unsubscribe != nil {
		live.unsubscribe()
	}
	live.session.Close()
	s.broadcaster.Closed(live.session.ID())
	s.deps.Tracer.RecordSessionDelta(ctx, -1)
	s.logger.InfoContext(ctx, "session_removed", slog.String("session_id", live.session.ID()))
}

// CloseAll closes every session and stops broadcasting. The service
// rejects new sessions afterwards.
func (s *WizardService) CloseAll(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	live := make([]*liveSession, 0, len(s.sessions))
	for id, l := range s.sessions {
		live = append(live, l)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, l := range live {
		s.closeLive(ctx, l)
	}
	s.broadcaster.Stop()
	s.logger.InfoContext(ctx, "sessions_closed", slog.Int("count", len(live)))
}

// Record returns a stored operation record
func (s *WizardService) Record(ctx context.Context, id string) (*domain.OperationRecord, error) {
	rec, err := s.deps.Records.FetchRecord(ctx, id)
	if err != nil {
		return nil, operations.NewPersistenceError("fetch_record", err)
	}
	if rec == nil {
		return nil, operations.NewNotFoundError("operation record", id)
	}
	return rec, nil
}

// ListRecords returns every stored record when the store supports listing
func (s *WizardService) ListRecords(ctx context.Context) ([]*domain.OperationRecord, error) {
	lister, ok := s.deps.Records.(RecordLister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	records, err := lister.ListRecords(ctx)
	if err != nil {
		return nil, operations.NewPersistenceError("list_records", err)
	}
	return records, nil
}

func (s *WizardService) signer() (store.DocumentSigner, bool) {
	if signer, ok := s.deps.Readiness.(store.DocumentSigner); ok {
		return signer, true
	}
	signer, ok := s.deps.Records.(store.DocumentSigner)
	return signer, ok
}

// SignDocument marks a safety document signed and refreshes the sessions
// editing that record.
func (s *WizardService) SignDocument(ctx context.Context, recordID, kind string) error {
	return s.changeDocument(ctx, recordID, kind, true)
}

// RevokeDocument clears a document signature
func (s *WizardService) RevokeDocument(ctx context.Context, recordID, kind string) error {
	return s.changeDocument(ctx, recordID, kind, false)
}

func (s *WizardService) changeDocument(ctx context.Context, recordID, kind string, sign bool) error {
	signer, ok := s.signer()
	if !ok {
		return ErrSigningUnsupported
	}
	docKind, err := domain.ParseDocumentKind(kind)
	if err != nil {
		return &operations.OperationError{Type: operations.ErrorTypeValidation, Message: "unknown document kind", Cause: err}
	}

	op, event := "sign_document", "document_signed"
	if sign {
		err = signer.SignDocument(ctx, recordID, docKind)
	} else {
		op, event = "revoke_document", "document_revoked"
		err = signer.RevokeDocument(ctx, recordID, docKind)
	}
	if err != nil {
		if operations.GetErrorType(err) != "" {
			return err
		}
		return operations.NewPersistenceError(op, err)
	}

	s.logger.InfoContext(ctx, event,
		slog.String("record_id", recordID),
		slog.String("kind", string(docKind)))
	s.refreshRecord(ctx, recordID)
	return nil
}

// refreshRecord makes sessions on recordID pick up a change before their
// next poll
func (s *WizardService) refreshRecord(ctx context.Context, recordID string) {
	s.mu.RLock()
	var targets []*operations.Session
	for _, l := range s.sessions {
		if l.session.RecordID() == recordID {
			targets = append(targets, l.session)
		}
	}
	s.mu.RUnlock()

	for _, session := range targets {
		if err := session.Refresh(ctx); err != nil {
			s.logger.WarnContext(ctx, "session_refresh_failed",
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()))
		}
	}
}

type discardHub struct{}

func (discardHub) BroadcastMessage(events.WebSocketMessage) {}

func (discardHub) BroadcastUpdate(events.MessageType, string, string, any) {}

func (discardHub) ClientCount() int { return 0 }
