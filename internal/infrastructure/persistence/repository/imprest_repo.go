package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/sqlite"
)

const imprestColumns = `
	id, requester_id, requester_name, department, payment_reason, payment_type,
	currency, amount, explanation, attachment_urls, request_date, due_date,
	status, version, hod_approval, accountant_approval, rejection, disbursement,
	acknowledgment, dispute_resolution, accounting, created_at, updated_at`

// ImprestRepository implements port.ImprestRepository
type ImprestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewImprestRepository creates a new imprest repository
func NewImprestRepository(db *sql.DB, logger *zap.Logger) port.ImprestRepository {
	return &ImprestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new imprest
func (r *ImprestRepository) Create(ctx context.Context, rec *entity.Imprest) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO imprests (` + imprestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		rec.ID, rec.RequesterID, rec.RequesterName, rec.Department, rec.PaymentReason, string(rec.PaymentType),
		rec.Currency, rec.Amount.String(), rec.Explanation, row.attachments, formatTime(rec.RequestDate), formatTime(rec.DueDate),
		rec.Status.String(), rec.Version, row.hod, row.accountant, row.rejection, row.disbursement,
		row.acknowledgment, row.resolution, row.accounting, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: imprest %s", port.ErrDuplicateKey, rec.ID)
		}
		r.logger.Error("Failed to create imprest", zap.String("imprest_id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to create imprest: %w", err)
	}
	return nil
}

// GetByID retrieves an imprest by ID
func (r *ImprestRepository) GetByID(ctx context.Context, id string) (*entity.Imprest, error) {
	query := `SELECT ` + imprestColumns + ` FROM imprests WHERE id = ?`

	rec, err := scanImprest(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: imprest %s", port.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get imprest", zap.String("imprest_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get imprest: %w", err)
	}
	return rec, nil
}

// List returns records matching the filter, newest request first
func (r *ImprestRepository) List(ctx context.Context, filter port.ListFilter) ([]*entity.Imprest, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.Department != "" {
		where = append(where, "department = ?")
		args = append(args, filter.Department)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status.String())
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + imprestColumns + ` FROM imprests`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY request_date DESC, id ASC")
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.getExecutor(ctx).QueryContext(ctx, b.String(), args...)
	if err != nil {
		r.logger.Error("Failed to list imprests", zap.Error(err))
		return nil, fmt.Errorf("failed to list imprests: %w", err)
	}
	defer rows.Close()

	records := []*entity.Imprest{}
	for rows.Next() {
		rec, err := scanImprest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan imprest: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Update writes the record if the stored version still equals expectedVersion
func (r *ImprestRepository) Update(ctx context.Context, rec *entity.Imprest, expectedVersion int64) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE imprests SET
			status = ?, version = ?, hod_approval = ?, accountant_approval = ?,
			rejection = ?, disbursement = ?, acknowledgment = ?, dispute_resolution = ?,
			accounting = ?, attachment_urls = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		rec.Status.String(), rec.Version, row.hod, row.accountant,
		row.rejection, row.disbursement, row.acknowledgment, row.resolution,
		row.accounting, row.attachments, formatTime(rec.UpdatedAt),
		rec.ID, expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update imprest", zap.String("imprest_id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update imprest: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: imprest %s at version %d", port.ErrVersionConflict, rec.ID, expectedVersion)
	}
	return nil
}

func (r *ImprestRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// imprestRow holds the encoded JSON columns of a record
type imprestRow struct {
	attachments    string
	hod            sql.NullString
	accountant     sql.NullString
	rejection      sql.NullString
	disbursement   sql.NullString
	acknowledgment sql.NullString
	resolution     sql.NullString
	accounting     sql.NullString
}

func toRow(rec *entity.Imprest) (*imprestRow, error) {
	urls := rec.AttachmentURLs
	if urls == nil {
		urls = []string{}
	}
	attachments, err := json.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachment urls: %w", err)
	}

	row := &imprestRow{attachments: string(attachments)}
	encoders := []func() error{
		func() (err error) { row.hod, err = encodeJSON(rec.HODApproval); return },
		func() (err error) { row.accountant, err = encodeJSON(rec.AccountantApproval); return },
		func() (err error) { row.rejection, err = encodeJSON(rec.Rejection); return },
		func() (err error) { row.disbursement, err = encodeJSON(rec.Disbursement); return },
		func() (err error) { row.acknowledgment, err = encodeJSON(rec.Acknowledgment); return },
		func() (err error) { row.resolution, err = encodeJSON(rec.DisputeResolution); return },
		func() (err error) { row.accounting, err = encodeJSON(rec.Accounting); return },
	}
	for _, encode := range encoders {
		if err := encode(); err != nil {
			return nil, fmt.Errorf("failed to encode imprest %s: %w", rec.ID, err)
		}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImprest(s rowScanner) (*entity.Imprest, error) {
	var (
		rec                         entity.Imprest
		paymentType, amount, status string
		attachments                 string
		requestDate, dueDate        string
		createdAt, updatedAt        string
		row                         imprestRow
	)

	err := s.Scan(
		&rec.ID, &rec.RequesterID, &rec.RequesterName, &rec.Department, &rec.PaymentReason, &paymentType,
		&rec.Currency, &amount, &rec.Explanation, &attachments, &requestDate, &dueDate,
		&status, &rec.Version, &row.hod, &row.accountant, &row.rejection, &row.disbursement,
		&row.acknowledgment, &row.resolution, &row.accounting, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.PaymentType = entity.PaymentType(paymentType)
	if rec.Status, err = workflow.ParseState(status); err != nil {
		return nil, err
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if err := json.Unmarshal([]byte(attachments), &rec.AttachmentURLs); err != nil {
		return nil, fmt.Errorf("invalid attachment urls: %w", err)
	}
	for _, ts := range []struct {
		dst *time.Time
		raw string
	}{
		{&rec.RequestDate, requestDate},
		{&rec.DueDate, dueDate},
		{&rec.CreatedAt, createdAt},
		{&rec.UpdatedAt, updatedAt},
	} {
		if *ts.dst, err = parseTime(ts.raw); err != nil {
			return nil, err
		}
	}

	if rec.HODApproval, err = decodeJSON[entity.Approval](row.hod); err != nil {
		return nil, fmt.Errorf("invalid hod_approval: %w", err)
	}
	if rec.AccountantApproval, err = decodeJSON[entity.Approval](row.accountant); err != nil {
		return nil, fmt.Errorf("invalid accountant_approval: %w", err)
	}
	if rec.Rejection, err = decodeJSON[entity.Rejection](row.rejection); err != nil {
		return nil, fmt.Errorf("invalid rejection: %w", err)
	}
	if rec.Disbursement, err = decodeJSON[entity.Disbursement](row.disbursement); err != nil {
		return nil, fmt.Errorf("invalid disbursement: %w", err)
	}
	if rec.Acknowledgment, err = decodeJSON[entity.Acknowledgment](row.acknowledgment); err != nil {
		return nil, fmt.Errorf("invalid acknowledgment: %w", err)
	}
	if rec.DisputeResolution, err = decodeJSON[entity.DisputeResolution](row.resolution); err != nil {
		return nil, fmt.Errorf("invalid dispute_resolution: %w", err)
	}
	if rec.Accounting, err = decodeJSON[entity.Accounting](row.accounting); err != nil {
		return nil, fmt.Errorf("invalid accounting: %w", err)
	}

	return &rec, nil
}

// Verify interface compliance
var _ port.ImprestRepository = (*ImprestRepository)(nil)
