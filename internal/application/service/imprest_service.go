package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	domainwf "github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Target identifies the record a mutation applies to and who applies it
type Target struct {
	ImprestID string
	Actor     entity.Actor

	// ExpectedVersion is optional; zero skips the staleness check
	ExpectedVersion int64
}

// AccountingInput is an accounting submission with optional receipt files.
// Files attach in order to the receipts that carry no URL yet.
type AccountingInput struct {
	Receipts []imprest.ReceiptInput
	Comments string
	Files    []port.UploadedFile
}

// ListQuery narrows a listing; the actor's scope is always applied on top
type ListQuery struct {
	Status     domainwf.State
	Department string
	Limit      int
	Offset     int
}

// ImprestService is the use-case layer over the transition engine
type ImprestService interface {
	Create(ctx context.Context, actor entity.Actor, req imprest.NewRequest) (*entity.Imprest, error)
	ApproveHOD(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error)
	ApproveAccountant(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error)
	Reject(ctx context.Context, t Target, reason string) (*workflow.TransitionResult, error)
	Disburse(ctx context.Context, t Target, idempotencyKey string, amount decimal.Decimal, comments string) (*workflow.TransitionResult, error)
	AcknowledgeReceipt(ctx context.Context, t Target, received bool, comments string) (*workflow.TransitionResult, error)
	SubmitAccounting(ctx context.Context, t Target, idempotencyKey string, in AccountingInput) (*workflow.TransitionResult, error)
	VerifyAccounting(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error)
	ResolveDispute(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error)

	GetMine(ctx context.Context, actor entity.Actor, q ListQuery) ([]*entity.Imprest, error)
	GetAll(ctx context.Context, actor entity.Actor, q ListQuery) ([]*entity.Imprest, error)
	GetByID(ctx context.Context, actor entity.Actor, id string) (*entity.Imprest, error)
	History(ctx context.Context, actor entity.Actor, id string) ([]*entity.ImprestHistory, error)
}

type imprestServiceImpl struct {
	engine      workflow.Engine
	imprestRepo port.ImprestRepository
	historyRepo port.HistoryRepository
	receipts    port.ReceiptStorage
	logger      *zap.Logger

	window time.Duration
	now    func() time.Time
	newID  func() string
}

// ServiceOption configures the imprest service
type ServiceOption func(*imprestServiceImpl)

// WithAccountingWindow sets how long after the request accounting falls due
func WithAccountingWindow(d time.Duration) ServiceOption {
	return func(s *imprestServiceImpl) {
		s.window = d
	}
}

// WithReceiptStorage enables receipt file uploads on accounting submissions
func WithReceiptStorage(rs port.ReceiptStorage) ServiceOption {
	return func(s *imprestServiceImpl) {
		s.receipts = rs
	}
}

// WithServiceClock overrides time.Now, for tests
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *imprestServiceImpl) {
		s.now = now
	}
}

// WithIDGenerator overrides the record id generator, for tests
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *imprestServiceImpl) {
		s.newID = gen
	}
}

// NewImprestService creates a new ImprestService
func NewImprestService(
	engine workflow.Engine,
	imprestRepo port.ImprestRepository,
	historyRepo port.HistoryRepository,
	logger *zap.Logger,
	opts ...ServiceOption,
) ImprestService {
	s := &imprestServiceImpl{
		engine:      engine,
		imprestRepo: imprestRepo,
		historyRepo: historyRepo,
		logger:      logger,
		window:      imprest.DefaultAccountingWindow,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new request in pending_hod
func (s *imprestServiceImpl) Create(ctx context.Context, actor entity.Actor, req imprest.NewRequest) (*entity.Imprest, error) {
	rec, err := imprest.New(actor, req, s.newID(), s.now(), s.window)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Create(ctx, rec, actor); err != nil {
		s.logger.Error("Failed to create imprest", zap.String("requester_id", actor.ID), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

func (s *imprestServiceImpl) ApproveHOD(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.ApproveHOD{Comments: comments}, "")
}

func (s *imprestServiceImpl) ApproveAccountant(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.ApproveAccountant{Comments: comments}, "")
}

func (s *imprestServiceImpl) Reject(ctx context.Context, t Target, reason string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.Reject{Reason: reason}, "")
}

// Disburse releases funds; the key makes client retries safe
func (s *imprestServiceImpl) Disburse(ctx context.Context, t Target, idempotencyKey string, amount decimal.Decimal, comments string) (*workflow.TransitionResult, error) {
	if err := requireKey(idempotencyKey); err != nil {
		return nil, err
	}
	return s.apply(ctx, t, imprest.Disburse{Amount: amount, Comments: comments}, idempotencyKey)
}

func (s *imprestServiceImpl) AcknowledgeReceipt(ctx context.Context, t Target, received bool, comments string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.Acknowledge{Received: received, Comments: comments}, "")
}

// SubmitAccounting stages any receipt files, then applies the submission.
// Staged files are discarded unless the submission commits.
func (s *imprestServiceImpl) SubmitAccounting(ctx context.Context, t Target, idempotencyKey string, in AccountingInput) (*workflow.TransitionResult, error) {
	if err := requireKey(idempotencyKey); err != nil {
		return nil, err
	}

	receipts := append([]imprest.ReceiptInput(nil), in.Receipts...)
	var staged []string
	if len(in.Files) > 0 {
		open := make([]int, 0, len(receipts))
		for i, r := range receipts {
			if strings.TrimSpace(r.ReceiptURL) == "" {
				open = append(open, i)
			}
		}
		if len(in.Files) > len(open) {
			return nil, &imprest.ValidationError{
				Field:  "receipt_files",
				Reason: fmt.Sprintf("%d files for %d receipts without a url", len(in.Files), len(open)),
				Err:    imprest.ErrInvalidReceipt,
			}
		}
		if s.receipts == nil {
			return nil, fmt.Errorf("receipt uploads are not configured")
		}

		urls, err := s.receipts.Stage(ctx, t.ImprestID, in.Files)
		if err != nil {
			s.logger.Error("Failed to stage receipt files", zap.String("imprest_id", t.ImprestID), zap.Error(err))
			return nil, fmt.Errorf("failed to stage receipt files: %w", err)
		}
		staged = urls
		for i, url := range urls {
			receipts[open[i]].ReceiptURL = url
		}
	}

	res, err := s.apply(ctx, t, imprest.SubmitAccounting{Receipts: receipts, Comments: in.Comments}, idempotencyKey)
	if len(staged) > 0 && (err != nil || res.Replayed) {
		// context may already be cancelled; clean up regardless
		if derr := s.receipts.Discard(context.WithoutCancel(ctx), staged); derr != nil {
			s.logger.Warn("Failed to discard staged receipts",
				zap.String("imprest_id", t.ImprestID),
				zap.Strings("urls", staged),
				zap.Error(derr))
		}
	}
	return res, err
}

func (s *imprestServiceImpl) VerifyAccounting(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.VerifyAccounting{Comments: comments}, "")
}

func (s *imprestServiceImpl) ResolveDispute(ctx context.Context, t Target, comments string) (*workflow.TransitionResult, error) {
	return s.apply(ctx, t, imprest.ResolveDispute{Comments: comments}, "")
}

func (s *imprestServiceImpl) apply(ctx context.Context, t Target, cmd imprest.Command, key string) (*workflow.TransitionResult, error) {
	if t.Actor.ID == "" {
		return nil, imprest.ErrUnauthorized
	}
	return s.engine.Apply(ctx, workflow.TransitionRequest{
		ImprestID:       t.ImprestID,
		ExpectedVersion: t.ExpectedVersion,
		Actor:           t.Actor,
		Command:         cmd,
		IdempotencyKey:  key,
	})
}

// GetMine lists the actor's own requests, newest first
func (s *imprestServiceImpl) GetMine(ctx context.Context, actor entity.Actor, q ListQuery) ([]*entity.Imprest, error) {
	if actor.ID == "" {
		return nil, imprest.ErrUnauthorized
	}
	return s.list(ctx, port.ListFilter{
		RequesterID: actor.ID,
		Status:      q.Status,
		Department:  q.Department,
		Limit:       q.Limit,
		Offset:      q.Offset,
	})
}

// GetAll lists every record the actor may see
func (s *imprestServiceImpl) GetAll(ctx context.Context, actor entity.Actor, q ListQuery) ([]*entity.Imprest, error) {
	filter, err := ScopedFilter(actor, q)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, filter)
}

// ScopedFilter narrows a query to the records the actor may list
func ScopedFilter(actor entity.Actor, q ListQuery) (port.ListFilter, error) {
	if actor.ID == "" {
		return port.ListFilter{}, imprest.ErrUnauthorized
	}
	filter := port.ListFilter{
		Status:     q.Status,
		Department: q.Department,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	switch imprest.ListScope(actor) {
	case imprest.ScopeDepartment:
		if q.Department != "" && q.Department != actor.Department {
			return port.ListFilter{}, fmt.Errorf("%w: cannot list department %s", imprest.ErrForbidden, q.Department)
		}
		filter.Department = actor.Department
	case imprest.ScopeOwn:
		filter.RequesterID = actor.ID
	}
	return filter, nil
}

func (s *imprestServiceImpl) list(ctx context.Context, filter port.ListFilter) ([]*entity.Imprest, error) {
	records, err := s.imprestRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list imprests", zap.Error(err))
		return nil, err
	}
	for _, rec := range records {
		if err := imprest.Reconcile(rec); err != nil {
			return nil, fmt.Errorf("stored accounting of %s is invalid: %w", rec.ID, err)
		}
	}
	return records, nil
}

// GetByID returns one record if the actor may view it
func (s *imprestServiceImpl) GetByID(ctx context.Context, actor entity.Actor, id string) (*entity.Imprest, error) {
	if actor.ID == "" {
		return nil, imprest.ErrUnauthorized
	}
	rec, err := s.imprestRepo.GetByID(ctx, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", imprest.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("Failed to get imprest", zap.String("imprest_id", id), zap.Error(err))
		return nil, err
	}
	if !imprest.CanView(actor, rec) {
		return nil, fmt.Errorf("%w: %s may not view %s", imprest.ErrForbidden, actor.ID, id)
	}
	if err := imprest.Reconcile(rec); err != nil {
		return nil, fmt.Errorf("stored accounting of %s is invalid: %w", id, err)
	}
	return rec, nil
}

// History returns the audit trail of a record the actor may view
func (s *imprestServiceImpl) History(ctx context.Context, actor entity.Actor, id string) ([]*entity.ImprestHistory, error) {
	if _, err := s.GetByID(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.historyRepo.GetByImprestID(ctx, id)
}

func requireKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &imprest.ValidationError{
			Field:  "idempotency_key",
			Reason: "an idempotency key is required",
			Err:    imprest.ErrInvalidInput,
		}
	}
	return nil
}
