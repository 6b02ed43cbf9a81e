// Package store holds the operation record backends: an in-memory store
// for development and tests, and a MySQL store for deployments.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"diveops/internal/config"
	"diveops/internal/operations"
	"diveops/pkg/contracts/domain"
)

// DocumentSigner marks safety documents signed or unsigned. It stands in
// for the external signing subsystem.
type DocumentSigner interface {
	SignDocument(ctx context.Context, recordID string, kind domain.DocumentKind) error
	RevokeDocument(ctx context.Context, recordID string, kind domain.DocumentKind) error
}

// Store is everything a backend provides to the application
type Store interface {
	operations.RecordStore
	operations.ReadinessService
	DocumentSigner

	ListRecords(ctx context.Context) ([]*domain.OperationRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MySQLStore)(nil)
)

// Open returns the backend named by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", config.StoreDriverMemory:
		logger.Info("store_opened", slog.String("driver", config.StoreDriverMemory))
		return NewMemoryStore(), nil
	case config.StoreDriverMySQL:
		s, err := OpenMySQL(ctx, cfg.MySQL, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// invalidFields wraps a domain field error as a validation error
func invalidFields(err error) error {
	return &operations.OperationError{
		Type:    operations.ErrorTypeValidation,
		Message: "invalid record fields",
		Cause:   err,
	}
}

func recordNotFound(id string) error {
	return operations.NewNotFoundError("operation record", id)
}
