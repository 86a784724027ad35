package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/dispatcher"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	imprestRepo     port.ImprestRepository
	historyRepo     port.HistoryRepository
	idempotencyRepo port.IdempotencyRepository
	txManager       port.TransactionManager
	dispatcher      dispatcher.Dispatcher
	logger          *zap.Logger
	now             func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new transition engine
func NewEngine(
	imprestRepo port.ImprestRepository,
	historyRepo port.HistoryRepository,
	idempotencyRepo port.IdempotencyRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		imprestRepo:     imprestRepo,
		historyRepo:     historyRepo,
		idempotencyRepo: idempotencyRepo,
		txManager:       txManager,
		logger:          zap.NewNop(),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create persists a new record with its creation history row
func (e *engineImpl) Create(ctx context.Context, rec *entity.Imprest, actor entity.Actor) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.imprestRepo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("failed to create imprest: %w", err)
		}
		return e.appendHistory(txCtx, &entity.ImprestHistory{
			ImprestID: rec.ID,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Action:    entity.ActionCreate,
			NewStatus: rec.Status.String(),
			Comments:  rec.PaymentReason,
			Timestamp: rec.CreatedAt,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Imprest created",
		zap.String("imprest_id", rec.ID),
		zap.String("requester_id", rec.RequesterID),
		zap.String("amount", rec.Amount.String()),
		zap.String("currency", rec.Currency))

	e.emit(ctx, event.TypeImprestCreated, rec, map[string]interface{}{
		"new_status": rec.Status.String(),
		"actor_id":   actor.ID,
	})
	return nil
}

// Apply loads the record, applies the command and persists it with compare-and-swap
func (e *engineImpl) Apply(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.Command == nil {
		return nil, fmt.Errorf("%w: no command", imprest.ErrInvalidInput)
	}

	var (
		result   *entity.Imprest
		previous workflow.State
		replayed bool
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if req.IdempotencyKey != "" {
			rec, err := e.replay(txCtx, req)
			if err != nil {
				return err
			}
			if rec != nil {
				result, replayed = rec, true
				return nil
			}
		}

		current, err := e.load(txCtx, req.ImprestID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && current.Version != req.ExpectedVersion {
			return fmt.Errorf("%w: expected version %d, found %d", imprest.ErrStaleState, req.ExpectedVersion, current.Version)
		}

		next, err := imprest.Apply(txCtx, current, req.Actor, req.Command, e.now())
		if err != nil {
			return err
		}
		next.Version = current.Version + 1

		if err := e.imprestRepo.Update(txCtx, next, current.Version); err != nil {
			if errors.Is(err, port.ErrVersionConflict) {
				return fmt.Errorf("%w: %s changed concurrently", imprest.ErrStaleState, req.ImprestID)
			}
			return fmt.Errorf("failed to update imprest: %w", err)
		}

		if err := e.appendHistory(txCtx, &entity.ImprestHistory{
			ImprestID:      next.ID,
			ActorID:        req.Actor.ID,
			ActorRole:      req.Actor.Role,
			Action:         req.Command.Operation(),
			PreviousStatus: current.Status.String(),
			NewStatus:      next.Status.String(),
			Comments:       req.Command.Note(),
			Timestamp:      next.UpdatedAt,
		}); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			err := e.idempotencyRepo.Create(txCtx, &entity.IdempotencyRecord{
				Key:       req.IdempotencyKey,
				ImprestID: next.ID,
				Operation: req.Command.Operation(),
				ActorID:   req.Actor.ID,
				CreatedAt: next.UpdatedAt,
			})
			if errors.Is(err, port.ErrDuplicateKey) {
				return fmt.Errorf("%w: %s", imprest.ErrIdempotencyConflict, req.IdempotencyKey)
			}
			if err != nil {
				return fmt.Errorf("failed to record idempotency key: %w", err)
			}
		}

		result, previous = next, current.Status
		return nil
	})
	if err != nil {
		e.logger.Debug("Transition refused",
			zap.String("imprest_id", req.ImprestID),
			zap.String("operation", req.Command.Operation()),
			zap.String("actor_id", req.Actor.ID),
			zap.Error(err))
		return nil, err
	}

	if replayed {
		e.logger.Info("Idempotent replay",
			zap.String("imprest_id", req.ImprestID),
			zap.String("operation", req.Command.Operation()),
			zap.String("idempotency_key", req.IdempotencyKey))
		return &TransitionResult{Record: result, Replayed: true}, nil
	}

	e.logger.Info("Imprest transitioned",
		zap.String("imprest_id", result.ID),
		zap.String("operation", req.Command.Operation()),
		zap.String("from", previous.String()),
		zap.String("to", result.Status.String()),
		zap.Int64("version", result.Version),
		zap.String("actor_id", req.Actor.ID))

	if typ, ok := event.ForTrigger(req.Command.Trigger()); ok {
		e.emit(ctx, typ, result, map[string]interface{}{
			"previous_status": previous.String(),
			"new_status":      result.Status.String(),
			"operation":       req.Command.Operation(),
			"actor_id":        req.Actor.ID,
			"actor_role":      string(req.Actor.Role),
			"comments":        req.Command.Note(),
		})
	}

	return &TransitionResult{Record: result}, nil
}

// replay returns the current record when the key was already used for this request,
// nil when the key is new
func (e *engineImpl) replay(ctx context.Context, req TransitionRequest) (*entity.Imprest, error) {
	used, err := e.idempotencyRepo.Get(ctx, req.IdempotencyKey)
	if errors.Is(err, port.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if used.ImprestID != req.ImprestID || used.Operation != req.Command.Operation() || used.ActorID != req.Actor.ID {
		return nil, fmt.Errorf("%w: %s was used for %s on %s", imprest.ErrIdempotencyConflict, req.IdempotencyKey, used.Operation, used.ImprestID)
	}
	return e.load(ctx, req.ImprestID)
}

func (e *engineImpl) load(ctx context.Context, id string) (*entity.Imprest, error) {
	rec, err := e.imprestRepo.GetByID(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", imprest.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load imprest: %w", err)
	}
	if err := imprest.Reconcile(rec); err != nil {
		return nil, fmt.Errorf("stored accounting of %s is invalid: %w", id, err)
	}
	return rec, nil
}

func (e *engineImpl) appendHistory(ctx context.Context, h *entity.ImprestHistory) error {
	if err := e.historyRepo.Create(ctx, h); err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	return nil
}

// emit dispatches after commit; handler failures never reach the caller
func (e *engineImpl) emit(ctx context.Context, typ event.Type, rec *entity.Imprest, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	payload["requester_id"] = rec.RequesterID
	payload["requester_name"] = rec.RequesterName
	payload["department"] = rec.Department
	payload["amount"] = rec.EffectiveAmount().String()
	payload["currency"] = rec.Currency
	payload["version"] = rec.Version
	e.dispatcher.DispatchAsync(ctx, event.NewEvent(typ, rec.ID, payload))
}
