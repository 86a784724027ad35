package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ImprestHistory) error {
	query := `
		INSERT INTO imprest_history (
			imprest_id, actor_id, actor_role, action,
			previous_status, new_status, comments, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		history.ImprestID,
		history.ActorID,
		string(history.ActorRole),
		history.Action,
		history.PreviousStatus,
		history.NewStatus,
		history.Comments,
		formatTime(history.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("imprest_id", history.ImprestID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByImprestID retrieves the audit trail of an imprest, oldest first
func (r *HistoryRepository) GetByImprestID(ctx context.Context, imprestID string) ([]*entity.ImprestHistory, error) {
	query := `
		SELECT id, imprest_id, actor_id, actor_role, action,
			previous_status, new_status, comments, timestamp
		FROM imprest_history
		WHERE imprest_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, imprestID)
	if err != nil {
		r.logger.Error("Failed to get history by imprest ID", zap.String("imprest_id", imprestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := []*entity.ImprestHistory{}
	for rows.Next() {
		var (
			record    entity.ImprestHistory
			role      string
			timestamp string
		)
		err := rows.Scan(
			&record.ID,
			&record.ImprestID,
			&record.ActorID,
			&role,
			&record.Action,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Comments,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.ActorRole = entity.Role(role)
		if record.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

func (r *HistoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
