package workflow

import (
	"context"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
)

// TransitionRequest asks the engine to apply one command to one record
type TransitionRequest struct {
	ImprestID string

	// ExpectedVersion is the version the caller last read; zero skips the check
	ExpectedVersion int64

	Actor   entity.Actor
	Command imprest.Command

	// IdempotencyKey makes a retried request return the stored outcome instead of re-applying
	IdempotencyKey string
}

// TransitionResult is the authoritative record after a transition
type TransitionResult struct {
	Record *entity.Imprest

	// Replayed is true when the idempotency key matched an earlier request
	Replayed bool
}

// Engine applies imprest transitions as atomic read-modify-write operations
type Engine interface {
	// Create persists a new record with its creation history row
	Create(ctx context.Context, rec *entity.Imprest, actor entity.Actor) error

	// Apply loads the record, applies the command and persists it with compare-and-swap
	Apply(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
}
