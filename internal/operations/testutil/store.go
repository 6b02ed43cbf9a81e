package testutil

import (
	"context"
	"fmt"
	"sync"

	"diveops/internal/operations"
	"diveops/pkg/contracts/domain"
)

// UpdateCall records one UpdateRecord invocation
type UpdateCall struct {
	ID     string
	Fields map[string]any
}

// ScriptedStore is an in-memory RecordStore and ReadinessService whose
// failures and side effects are set by the test.
type ScriptedStore struct {
	mu        sync.Mutex
	records   map[string]*domain.OperationRecord
	readiness map[string]domain.DocumentReadiness
	nextID    int

	fetchErr     error
	createErr    error
	updateErr    error
	readinessErr error

	fetches   int
	checks    int
	creates   []map[string]any
	updates   []UpdateCall
	onFetch  func(id string)
	onCreate func()
	onUpdate func(id string)
}

var (
	_ operations.RecordStore      = (*ScriptedStore)(nil)
	_ operations.ReadinessService = (*ScriptedStore)(nil)
)

// NewScriptedStore returns an empty store
func NewScriptedStore() *ScriptedStore {
	return &ScriptedStore{
		records:   make(map[string]*domain.OperationRecord),
		readiness: make(map[string]domain.DocumentReadiness),
	}
}

// PutRecord stores a copy of record under its ID
func (s *ScriptedStore) PutRecord(record *domain.OperationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
}

// SetReadiness sets the readiness reported for id
func (s *ScriptedStore) SetReadiness(id string, r domain.DocumentReadiness) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness[id] = r
}

// FailFetch makes FetchRecord return err until called again with nil
func (s *ScriptedStore) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// FailCreate makes CreateRecord return err
func (s *ScriptedStore) FailCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// FailUpdate makes UpdateRecord return err
func (s *ScriptedStore) FailUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// FailReadiness makes CheckReadiness return err
func (s *ScriptedStore) FailReadiness(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readinessErr = err
}

// OnFetch registers a hook run inside FetchRecord before it reads the record
func (s *ScriptedStore) OnFetch(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFetch = fn
}

// OnCreate registers a hook run inside CreateRecord before it stores anything
func (s *ScriptedStore) OnCreate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCreate = fn
}

// OnUpdate registers a hook run inside UpdateRecord before it applies fields
func (s *ScriptedStore) OnUpdate(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// FetchRecord implements operations.RecordStore
func (s *ScriptedStore) FetchRecord(_ context.Context, id string) (*domain.OperationRecord, error) {
	s.mu.Lock()
	hook := s.onFetch
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

// CreateRecord implements operations.RecordStore
func (s *ScriptedStore) CreateRecord(_ context.Context, fields map[string]any) (string, error) {
	s.mu.Lock()
	hook := s.onCreate
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, copyFields(fields))
	if s.createErr != nil {
		return "", s.createErr
	}

	s.nextID++
	record := &domain.OperationRecord{ID: fmt.Sprintf("op-%d", s.nextID)}
	if err := record.Apply(fields); err != nil {
		return "", err
	}
	s.records[record.ID] = record
	return record.ID, nil
}

// UpdateRecord implements operations.RecordStore
func (s *ScriptedStore) UpdateRecord(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	hook := s.onUpdate
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, UpdateCall{ID: id, Fields: copyFields(fields)})
	if s.updateErr != nil {
		return s.updateErr
	}
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s not found", id)
	}
	return r.Apply(fields)
}

// CheckReadiness implements operations.ReadinessService
func (s *ScriptedStore) CheckReadiness(_ context.Context, id string) (domain.DocumentReadiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.readinessErr != nil {
		return domain.DocumentReadiness{}, s.readinessErr
	}
	return s.readiness[id], nil
}

// Record returns a copy of the stored record, or nil
func (s *ScriptedStore) Record(id string) *domain.OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

// Updates returns every UpdateRecord call so far
func (s *ScriptedStore) Updates() []UpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateCall(nil), s.updates...)
}

// Creates returns the fields of every CreateRecord call so far
func (s *ScriptedStore) Creates() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.creates...)
}

// Fetches returns the number of FetchRecord calls
func (s *ScriptedStore) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// ReadinessChecks returns the number of CheckReadiness calls
func (s *ScriptedStore) ReadinessChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
