package port

import (
	"context"
	"errors"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by ImprestRepository.Update when the stored version moved on
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateKey is returned when inserting an idempotency key that already exists
	ErrDuplicateKey = errors.New("duplicate key")
)

// ListFilter narrows ImprestRepository.List. Zero values mean no filter.
type ListFilter struct {
	RequesterID string
	Department  string
	Status      workflow.State
	Limit       int
	Offset      int
}

// ImprestRepository defines persistence operations for Imprest records
type ImprestRepository interface {
	Create(ctx context.Context, rec *entity.Imprest) error
	GetByID(ctx context.Context, id string) (*entity.Imprest, error)

	// List returns records ordered by request date, newest first
	List(ctx context.Context, filter ListFilter) ([]*entity.Imprest, error)

	// Update writes rec if the stored version equals expectedVersion.
	// rec.Version must already hold the new version.
	Update(ctx context.Context, rec *entity.Imprest, expectedVersion int64) error
}

// HistoryRepository is the append-only audit trail
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.ImprestHistory) error
	GetByImprestID(ctx context.Context, imprestID string) ([]*entity.ImprestHistory, error)
}

// IdempotencyRepository records keys of non-idempotent operations
type IdempotencyRepository interface {
	// Get returns ErrNotFound when the key is unused
	Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error)

	// Create returns ErrDuplicateKey when the key exists
	Create(ctx context.Context, rec *entity.IdempotencyRecord) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
