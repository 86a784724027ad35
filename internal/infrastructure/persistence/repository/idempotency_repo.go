package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/sqlite"
)

// IdempotencyRepository implements port.IdempotencyRepository
type IdempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency key repository
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) port.IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the request a key was first used for
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	query := `SELECT key, imprest_id, operation, actor_id, created_at FROM idempotency_keys WHERE key = ?`

	var (
		rec       entity.IdempotencyRecord
		createdAt string
	)
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.ImprestID, &rec.Operation, &rec.ActorID, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency key", zap.Error(err))
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create stores a key
func (r *IdempotencyRepository) Create(ctx context.Context, rec *entity.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_keys (key, imprest_id, operation, actor_id, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		rec.Key, rec.ImprestID, rec.Operation, rec.ActorID, formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return port.ErrDuplicateKey
		}
		r.logger.Error("Failed to create idempotency key", zap.Error(err))
		return fmt.Errorf("failed to create idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.IdempotencyRepository = (*IdempotencyRepository)(nil)
