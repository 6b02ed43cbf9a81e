package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"diveops/pkg/contracts/domain"
)

// Stats summarizes the contents of a MemoryStore
type Stats struct {
	Records         int `json:"records"`
	SignedDocuments int `json:"signed_documents"`
}

// MemoryStore is an in-memory Store. Records are copied on the way in and
// on the way out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.OperationRecord
	signed  map[string]map[domain.DocumentKind]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*domain.OperationRecord),
		signed:  make(map[string]map[domain.DocumentKind]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FetchRecord returns a copy of the record, or nil if it does not exist
func (s *MemoryStore) FetchRecord(_ context.Context, id string) (*domain.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

// CreateRecord stores a new record built from fields and returns its id
func (s *MemoryStore) CreateRecord(_ context.Context, fields map[string]any) (string, error) {
	now := s.now()
	record := &domain.OperationRecord{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := record.Apply(fields); err != nil {
		return "", invalidFields(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return record.ID, nil
}

// UpdateRecord applies a partial write to an existing record
func (s *MemoryStore) UpdateRecord(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return recordNotFound(id)
	}
	next := r.Clone()
	if err := next.Apply(fields); err != nil {
		return invalidFields(err)
	}
	next.UpdatedAt = s.now()
	s.records[id] = next
	return nil
}

// ListRecords returns copies of every record, oldest first
func (s *MemoryStore) ListRecords(_ context.Context) ([]*domain.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.OperationRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CheckReadiness reports which safety documents are signed for id
func (s *MemoryStore) CheckReadiness(_ context.Context, id string) (domain.DocumentReadiness, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signed := make(map[domain.DocumentKind]bool, len(s.signed[id]))
	for kind := range s.signed[id] {
		signed[kind] = true
	}
	return domain.ReadinessFromSigned(signed), nil
}

// SignDocument marks a document signed. Signing twice keeps the first time.
func (s *MemoryStore) SignDocument(_ context.Context, recordID string, kind domain.DocumentKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[recordID]; !ok {
		return recordNotFound(recordID)
	}
	docs, ok := s.signed[recordID]
	if !ok {
		docs = make(map[domain.DocumentKind]time.Time)
		s.signed[recordID] = docs
	}
	if _, done := docs[kind]; !done {
		docs[kind] = s.now()
	}
	return nil
}

// RevokeDocument marks a document unsigned
func (s *MemoryStore) RevokeDocument(_ context.Context, recordID string, kind domain.DocumentKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[recordID]; !ok {
		return recordNotFound(recordID)
	}
	delete(s.signed[recordID], kind)
	return nil
}

// GetStats returns record and signature counts
func (s *MemoryStore) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Records: len(s.records)}
	for _, docs := range s.signed {
		stats.SignedDocuments += len(docs)
	}
	return stats
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }
