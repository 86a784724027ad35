package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/port"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/infrastructure/persistence/sqlite"
	"github.com/lord-charles/srcc-dashboard-sub000/pkg/database"
)

var (
	testNow    = time.Date(2026, 2, 10, 8, 30, 0, 123456789, time.UTC)
	employee   = entity.Actor{ID: "u-emp", Name: "Wanjiru", Role: entity.RoleEmployee, Department: "ops"}
	hod        = entity.Actor{ID: "u-hod", Name: "Otieno", Role: entity.RoleHOD, Department: "ops"}
	accountant = entity.Actor{ID: "u-acc", Name: "Kamau", Role: entity.RoleAccountant, Department: "finance"}
)

func setupDB(t *testing.T) (*sql.DB, *sqlite.DB) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "imprest.db")

	require.NoError(t, database.NewMigrator(path, logger).Up())

	db, err := database.New(database.Config{Path: path}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db.DB, sqlite.NewDB(db.DB, logger)
}

func newImprest(t *testing.T, id string, actor entity.Actor, at time.Time) *entity.Imprest {
	t.Helper()
	rec, err := imprest.New(actor, imprest.NewRequest{
		PaymentReason:  "Site visit",
		Currency:       "KES",
		Amount:         decimal.RequireFromString("2500.50"),
		PaymentType:    entity.PaymentTypeTravel,
		Explanation:    "matatu fare",
		AttachmentURLs: []string{"/files/quote.pdf"},
	}, id, at, 0)
	require.NoError(t, err)
	return rec
}

func step(t *testing.T, rec *entity.Imprest, actor entity.Actor, cmd imprest.Command) *entity.Imprest {
	t.Helper()
	next, err := imprest.Apply(context.Background(), rec, actor, cmd, testNow.Add(time.Hour))
	require.NoError(t, err)
	next.Version = rec.Version + 1
	return next
}

func TestImprestRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := setupDB(t)
	logger := zaptest.NewLogger(t)
	repo := NewImprestRepository(db, logger)

	rec := newImprest(t, "imp-1", employee, testNow)
	require.NoError(t, repo.Create(ctx, rec))
	assert.ErrorIs(t, repo.Create(ctx, rec), port.ErrDuplicateKey)

	got, err := repo.GetByID(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingHOD, got.Status)
	assert.True(t, rec.Amount.Equal(got.Amount))
	assert.True(t, rec.RequestDate.Equal(got.RequestDate))
	assert.True(t, rec.DueDate.Equal(got.DueDate))
	assert.Equal(t, []string{"/files/quote.pdf"}, got.AttachmentURLs)
	assert.Nil(t, got.HODApproval)

	// drive through every sub-structure column
	next := step(t, got, hod, imprest.ApproveHOD{Comments: "fine"})
	require.NoError(t, repo.Update(ctx, next, got.Version))
	prev := next
	next = step(t, prev, accountant, imprest.ApproveAccountant{})
	require.NoError(t, repo.Update(ctx, next, prev.Version))
	prev = next
	next = step(t, prev, accountant, imprest.Disburse{Amount: decimal.RequireFromString("2000")})
	require.NoError(t, repo.Update(ctx, next, prev.Version))
	prev = next
	next = step(t, prev, employee, imprest.Acknowledge{Received: true})
	require.NoError(t, repo.Update(ctx, next, prev.Version))
	prev = next
	next = step(t, prev, employee, imprest.SubmitAccounting{Receipts: []imprest.ReceiptInput{
		{Description: "fare", Amount: decimal.RequireFromString("1500.25"), ReceiptURL: "/files/r1.jpg"},
		{Description: "lunch", Amount: decimal.RequireFromString("300")},
	}})
	require.NoError(t, repo.Update(ctx, next, prev.Version))

	got, err = repo.GetByID(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateAccounted, got.Status)
	assert.Equal(t, int64(6), got.Version)
	require.NotNil(t, got.HODApproval)
	assert.Equal(t, "fine", got.HODApproval.Comments)
	assert.Equal(t, hod.ID, got.HODApproval.Approver.ID)
	require.NotNil(t, got.Disbursement)
	assert.True(t, decimal.NewFromInt(2000).Equal(got.Disbursement.Amount))
	require.NotNil(t, got.Acknowledgment)
	assert.True(t, got.Acknowledgment.Received)
	require.NotNil(t, got.Accounting)
	require.Len(t, got.Accounting.Receipts, 2)
	assert.Equal(t, "/files/r1.jpg", got.Accounting.Receipts[0].ReceiptURL)
	assert.True(t, decimal.RequireFromString("1800.25").Equal(got.Accounting.TotalAmount))
	assert.True(t, decimal.RequireFromString("199.75").Equal(got.Accounting.Balance))
	assert.Equal(t, entity.ClassificationSurplus, got.Accounting.Classification)
	assert.NoError(t, got.Validate())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestImprestRepository_UpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db, _ := setupDB(t)
	repo := NewImprestRepository(db, zaptest.NewLogger(t))

	rec := newImprest(t, "imp-1", employee, testNow)
	require.NoError(t, repo.Create(ctx, rec))

	first := step(t, rec, hod, imprest.ApproveHOD{})
	second := step(t, rec, hod, imprest.Reject{Reason: "duplicate"})

	require.NoError(t, repo.Update(ctx, first, 1))
	assert.ErrorIs(t, repo.Update(ctx, second, 1), port.ErrVersionConflict)

	got, err := repo.GetByID(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingAccountant, got.Status)
	assert.Nil(t, got.Rejection)

	missing := newImprest(t, "ghost", employee, testNow)
	assert.ErrorIs(t, repo.Update(ctx, missing, 1), port.ErrVersionConflict)
}

func TestImprestRepository_List(t *testing.T) {
	ctx := context.Background()
	db, _ := setupDB(t)
	repo := NewImprestRepository(db, zaptest.NewLogger(t))

	other := entity.Actor{ID: "u-other", Name: "Mwangi", Role: entity.RoleEmployee, Department: "it"}
	require.NoError(t, repo.Create(ctx, newImprest(t, "a", employee, testNow)))
	require.NoError(t, repo.Create(ctx, newImprest(t, "b", employee, testNow.Add(48*time.Hour))))
	require.NoError(t, repo.Create(ctx, newImprest(t, "c", other, testNow.Add(24*time.Hour))))
	require.NoError(t, repo.Create(ctx, newImprest(t, "d", other, testNow.Add(24*time.Hour))))

	ids := func(recs []*entity.Imprest) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.ID)
		}
		return out
	}

	all, err := repo.List(ctx, port.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids(all))

	mine, err := repo.List(ctx, port.ListFilter{RequesterID: employee.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(mine))

	it, err := repo.List(ctx, port.ListFilter{Department: "it", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(it))

	pending, err := repo.List(ctx, port.ListFilter{Status: workflow.StateApproved})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHistoryAndIdempotency(t *testing.T) {
	ctx := context.Background()
	db, _ := setupDB(t)
	logger := zaptest.NewLogger(t)
	imprests := NewImprestRepository(db, logger)
	history := NewHistoryRepository(db, logger)
	keys := NewIdempotencyRepository(db, logger)

	require.NoError(t, imprests.Create(ctx, newImprest(t, "imp-1", employee, testNow)))

	first := &entity.ImprestHistory{ImprestID: "imp-1", ActorID: employee.ID, ActorRole: entity.RoleEmployee, Action: entity.ActionCreate, NewStatus: "pending_hod", Timestamp: testNow}
	second := &entity.ImprestHistory{ImprestID: "imp-1", ActorID: hod.ID, ActorRole: entity.RoleHOD, Action: "approve_hod", PreviousStatus: "pending_hod", NewStatus: "pending_accountant", Comments: "ok", Timestamp: testNow.Add(time.Minute)}
	require.NoError(t, history.Create(ctx, second))
	require.NoError(t, history.Create(ctx, first))
	assert.NotZero(t, first.ID)

	trail, err := history.GetByImprestID(ctx, "imp-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, entity.ActionCreate, trail[0].Action)
	assert.Equal(t, entity.RoleHOD, trail[1].ActorRole)
	assert.True(t, testNow.Equal(trail[0].Timestamp))

	empty, err := history.GetByImprestID(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)

	key := &entity.IdempotencyRecord{Key: "k-1", ImprestID: "imp-1", Operation: "disburse", ActorID: accountant.ID, CreatedAt: testNow}
	require.NoError(t, keys.Create(ctx, key))
	assert.ErrorIs(t, keys.Create(ctx, key), port.ErrDuplicateKey)

	stored, err := keys.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, "disburse", stored.Operation)
	assert.True(t, testNow.Equal(stored.CreatedAt))

	_, err = keys.Get(ctx, "k-2")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	db, txManager := setupDB(t)
	logger := zaptest.NewLogger(t)
	imprests := NewImprestRepository(db, logger)
	history := NewHistoryRepository(db, logger)
	boom := errors.New("boom")

	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, imprests.Create(txCtx, newImprest(t, "imp-1", employee, testNow)))
		require.NoError(t, history.Create(txCtx, &entity.ImprestHistory{ImprestID: "imp-1", ActorID: employee.ID, ActorRole: entity.RoleEmployee, Action: entity.ActionCreate, NewStatus: "pending_hod", Timestamp: testNow}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = imprests.GetByID(ctx, "imp-1")
	assert.ErrorIs(t, err, port.ErrNotFound)
	trail, err := history.GetByImprestID(ctx, "imp-1")
	require.NoError(t, err)
	assert.Empty(t, trail)

	require.NoError(t, txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return imprests.Create(txCtx, newImprest(t, "imp-1", employee, testNow))
	}))
	_, err = imprests.GetByID(ctx, "imp-1")
	assert.NoError(t, err)
}
