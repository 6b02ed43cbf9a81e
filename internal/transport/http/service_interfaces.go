package http

import (
	"context"

	"diveops/internal/operations"
	"diveops/pkg/contracts/domain"
)

// WizardService is the session API the wizard handler needs
type WizardService interface {
	CreateSession(ctx context.Context, recordID string) (operations.Snapshot, error)
	GetSession(id string) (operations.Snapshot, error)
	ListSessions() []operations.Snapshot
	CloseSession(ctx context.Context, id string) error
	Navigate(ctx context.Context, id, action string, index *int) (bool, operations.Snapshot, error)
	CompleteStep(ctx context.Context, id, step string, data map[string]any) (operations.Snapshot, error)
	Refresh(ctx context.Context, id string) (operations.Snapshot, error)
}

// RecordService is the record API the records handler needs
type RecordService interface {
	Record(ctx context.Context, id string) (*domain.OperationRecord, error)
	ListRecords(ctx context.Context) ([]*domain.OperationRecord, error)
	SignDocument(ctx context.Context, recordID, kind string) error
	RevokeDocument(ctx context.Context, recordID, kind string) error
}
