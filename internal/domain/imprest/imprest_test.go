package imprest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

var (
	testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	employee   = entity.Actor{ID: "u-emp", Name: "Wanjiru", Role: entity.RoleEmployee, Department: "ops"}
	hod        = entity.Actor{ID: "u-hod", Name: "Otieno", Role: entity.RoleHOD, Department: "ops"}
	otherHOD   = entity.Actor{ID: "u-hod2", Name: "Achieng", Role: entity.RoleHOD, Department: "finance"}
	accountant = entity.Actor{ID: "u-acc", Name: "Kamau", Role: entity.RoleAccountant, Department: "finance"}
	admin      = entity.Actor{ID: "u-adm", Name: "Njeri", Role: entity.RoleAdmin, Department: "it"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRecord(t *testing.T) *entity.Imprest {
	t.Helper()
	rec, err := New(employee, NewRequest{
		PaymentReason: "Field visit to Nakuru",
		Currency:      "KES",
		Amount:        dec("5000"),
		PaymentType:   entity.PaymentTypeTravel,
		Explanation:   "fuel and lunch",
	}, "imp-1", testNow, 0)
	require.NoError(t, err)
	return rec
}

func mustApply(t *testing.T, rec *entity.Imprest, actor entity.Actor, cmd Command) *entity.Imprest {
	t.Helper()
	next, err := Apply(context.Background(), rec, actor, cmd, testNow.Add(time.Hour))
	require.NoError(t, err)
	return next
}

// advance drives a fresh record to the requested state along the happy path
func advance(t *testing.T, to workflow.State) *entity.Imprest {
	t.Helper()
	rec := newRecord(t)
	steps := []struct {
		state workflow.State
		actor entity.Actor
		cmd   Command
	}{
		{workflow.StatePendingAccountant, hod, ApproveHOD{Comments: "ok"}},
		{workflow.StateApproved, accountant, ApproveAccountant{Comments: "ok"}},
		{workflow.StatePendingAcknowledgment, accountant, Disburse{Amount: dec("5000")}},
		{workflow.StateDisbursed, employee, Acknowledge{Received: true}},
		{workflow.StateAccounted, employee, SubmitAccounting{Receipts: []ReceiptInput{{Description: "fuel", Amount: dec("5000")}}}},
		{workflow.StateClosed, accountant, VerifyAccounting{}},
	}
	if rec.Status == to {
		return rec
	}
	for _, s := range steps {
		rec = mustApply(t, rec, s.actor, s.cmd)
		if s.state == to {
			return rec
		}
	}
	switch to {
	case workflow.StateRejected:
		return mustApply(t, newRecord(t), hod, Reject{Reason: "no"})
	case workflow.StateDisputed, workflow.StateResolvedDispute:
		rec = advance(t, workflow.StatePendingAcknowledgment)
		rec = mustApply(t, rec, employee, Acknowledge{Received: false, Comments: "short by 500"})
		if to == workflow.StateDisputed {
			return rec
		}
		return mustApply(t, rec, admin, ResolveDispute{Comments: "cash found"})
	}
	t.Fatalf("cannot reach %s", to)
	return nil
}

func TestNew(t *testing.T) {
	rec := newRecord(t)

	assert.Equal(t, "imp-1", rec.ID)
	assert.Equal(t, workflow.StatePendingHOD, rec.Status)
	assert.Equal(t, employee.ID, rec.RequesterID)
	assert.Equal(t, "ops", rec.Department)
	assert.Equal(t, "KES", rec.Currency)
	assert.True(t, rec.Amount.Equal(dec("5000")))
	assert.Equal(t, testNow.Add(DefaultAccountingWindow), rec.DueDate)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, 0, ApprovalProgress(rec))
	assert.NoError(t, rec.Validate())
}

func TestNew_Validation(t *testing.T) {
	valid := NewRequest{PaymentReason: "trip", Currency: "kes", Amount: dec("10"), PaymentType: entity.PaymentTypeFuel}

	tests := []struct {
		name   string
		mutate func(r *NewRequest)
		field  string
	}{
		{"empty reason", func(r *NewRequest) { r.PaymentReason = "  " }, "payment_reason"},
		{"bad currency", func(r *NewRequest) { r.Currency = "KE" }, "currency"},
		{"zero amount", func(r *NewRequest) { r.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(r *NewRequest) { r.Amount = dec("-1") }, "amount"},
		{"sub-cent amount", func(r *NewRequest) { r.Amount = dec("10.005") }, "amount"},
		{"unknown payment type", func(r *NewRequest) { r.PaymentType = "gift" }, "payment_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := New(employee, req, "x", testNow, time.Hour)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tt.field, FieldOf(err))
		})
	}

	rec, err := New(employee, valid, "x", testNow, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "KES", rec.Currency)
	assert.Equal(t, testNow.Add(time.Hour), rec.DueDate)

	_, err = New(entity.Actor{}, valid, "x", testNow, time.Hour)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestScenario_ApprovalChain(t *testing.T) {
	rec := newRecord(t)

	rec = mustApply(t, rec, hod, ApproveHOD{Comments: "ok"})
	assert.Equal(t, workflow.StatePendingAccountant, rec.Status)
	assert.Equal(t, 50, ApprovalProgress(rec))
	require.NotNil(t, rec.HODApproval)
	assert.Equal(t, hod.ID, rec.HODApproval.Approver.ID)
	assert.Equal(t, "ok", rec.HODApproval.Comments)

	rec = mustApply(t, rec, accountant, ApproveAccountant{Comments: "ok"})
	assert.Equal(t, workflow.StateApproved, rec.Status)
	assert.Equal(t, 100, ApprovalProgress(rec))
	require.NotNil(t, rec.AccountantApproval)
}

func TestScenario_Disburse(t *testing.T) {
	rec := advance(t, workflow.StateApproved)

	rec = mustApply(t, rec, accountant, Disburse{Amount: dec("5000"), Comments: "mpesa"})
	assert.Equal(t, workflow.StatePendingAcknowledgment, rec.Status)
	require.NotNil(t, rec.Disbursement)
	assert.True(t, rec.Disbursement.Amount.Equal(dec("5000")))
	assert.Equal(t, accountant.ID, rec.Disbursement.DisbursedBy.ID)
}

func TestDisburse_AmountGuard(t *testing.T) {
	rec := advance(t, workflow.StateApproved)

	for _, amount := range []string{"0", "-10", "5000.01"} {
		_, err := Apply(context.Background(), rec, accountant, Disburse{Amount: dec(amount)}, testNow)
		require.Error(t, err, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, workflow.StateApproved, rec.Status)
		assert.Nil(t, rec.Disbursement)
	}

	partial := mustApply(t, rec, accountant, Disburse{Amount: dec("3500")})
	assert.True(t, partial.DisbursedAmount().Equal(dec("3500")))
	assert.True(t, partial.EffectiveAmount().Equal(dec("3500")))
}

func TestScenario_Acknowledge(t *testing.T) {
	preAck := advance(t, workflow.StatePendingAcknowledgment)

	received := mustApply(t, preAck, employee, Acknowledge{Received: true})
	assert.Equal(t, workflow.StateDisbursed, received.Status)
	require.NotNil(t, received.Acknowledgment)
	assert.True(t, received.Acknowledgment.Received)

	_, err := Apply(context.Background(), preAck, employee, Acknowledge{Received: false, Comments: ""}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingComments)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "comments", FieldOf(err))
	assert.Equal(t, workflow.StatePendingAcknowledgment, preAck.Status)
	assert.Nil(t, preAck.Acknowledgment)

	disputed := mustApply(t, preAck, employee, Acknowledge{Received: false, Comments: "short by 500"})
	assert.Equal(t, workflow.StateDisputed, disputed.Status)
	assert.False(t, disputed.Acknowledgment.Received)
}

func TestResolveDispute(t *testing.T) {
	rec := advance(t, workflow.StateDisputed)

	_, err := Apply(context.Background(), rec, admin, ResolveDispute{Comments: " "}, testNow)
	assert.ErrorIs(t, err, ErrMissingComments)

	_, err = Apply(context.Background(), rec, accountant, ResolveDispute{Comments: "ok"}, testNow)
	assert.ErrorIs(t, err, ErrForbidden)

	resolved := mustApply(t, rec, admin, ResolveDispute{Comments: "cash found in till"})
	assert.Equal(t, workflow.StateResolvedDispute, resolved.Status)
	require.NotNil(t, resolved.DisputeResolution)
	assert.Empty(t, NextTriggers(resolved))
}

func TestScenario_SubmitAccounting(t *testing.T) {
	rec := advance(t, workflow.StateDisbursed)

	rec = mustApply(t, rec, employee, SubmitAccounting{Receipts: []ReceiptInput{
		{Description: "fuel", Amount: dec("3000")},
		{Description: "lunch", Amount: dec("1500")},
	}})

	assert.Equal(t, workflow.StateAccounted, rec.Status)
	require.NotNil(t, rec.Accounting)
	assert.True(t, rec.Accounting.TotalAmount.Equal(dec("4500")))
	assert.True(t, rec.Accounting.Balance.Equal(dec("500")))
	assert.Equal(t, entity.ClassificationSurplus, rec.Accounting.Classification)
	assert.Len(t, rec.Accounting.Receipts, 2)
}

func TestScenario_EmptyReceipts(t *testing.T) {
	rec := advance(t, workflow.StateDisbursed)

	_, err := Apply(context.Background(), rec, employee, SubmitAccounting{}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyReceipts)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, workflow.StateDisbursed, rec.Status)
	assert.Nil(t, rec.Accounting)
}

func TestSubmitAccounting_InvalidReceipts(t *testing.T) {
	rec := advance(t, workflow.StateDisbursed)

	_, err := Apply(context.Background(), rec, employee, SubmitAccounting{Receipts: []ReceiptInput{
		{Description: "fuel", Amount: dec("10")},
		{Description: "refund", Amount: dec("-5")},
	}}, testNow)
	assert.ErrorIs(t, err, ErrInvalidReceipt)
	assert.Equal(t, "receipts[1].amount", FieldOf(err))

	_, err = Apply(context.Background(), rec, employee, SubmitAccounting{Receipts: []ReceiptInput{
		{Description: " ", Amount: dec("10")},
	}}, testNow)
	assert.ErrorIs(t, err, ErrInvalidReceipt)
	assert.Equal(t, "receipts[0].description", FieldOf(err))

	_, err = Apply(context.Background(), rec, accountant, SubmitAccounting{Receipts: []ReceiptInput{
		{Description: "fuel", Amount: dec("10")},
	}}, testNow)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestScenario_RejectThenApprove(t *testing.T) {
	rec := newRecord(t)

	_, err := Apply(context.Background(), rec, hod, Reject{Reason: ""}, testNow)
	assert.ErrorIs(t, err, ErrMissingReason)
	assert.Equal(t, "reason", FieldOf(err))

	rec = mustApply(t, rec, hod, Reject{Reason: "insufficient justification"})
	assert.Equal(t, workflow.StateRejected, rec.Status)
	require.NotNil(t, rec.Rejection)
	assert.Equal(t, workflow.StatePendingHOD, rec.Rejection.Stage)
	assert.Equal(t, 100, ApprovalProgress(rec))

	_, err = Apply(context.Background(), rec, accountant, ApproveAccountant{Comments: "ok"}, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, KindState, KindOf(err))
}

func TestReject_AtAccountantStage(t *testing.T) {
	rec := advance(t, workflow.StatePendingAccountant)

	_, err := Apply(context.Background(), rec, hod, Reject{Reason: "no"}, testNow)
	assert.ErrorIs(t, err, ErrForbidden)

	rejected := mustApply(t, rec, accountant, Reject{Reason: "over budget"})
	assert.Equal(t, workflow.StateRejected, rejected.Status)
	assert.Equal(t, workflow.StatePendingAccountant, rejected.Rejection.Stage)
	assert.NoError(t, rejected.Validate())
}

func TestApprovalProgress(t *testing.T) {
	rec := newRecord(t)
	assert.Equal(t, 0, ApprovalProgress(rec))

	rec.HODApproval = &entity.Approval{Timestamp: testNow}
	rec.Status = workflow.StatePendingAccountant
	assert.Equal(t, 50, ApprovalProgress(rec))

	rec.AccountantApproval = &entity.Approval{Timestamp: testNow}
	assert.Equal(t, 100, ApprovalProgress(rec))

	rec.AccountantApproval = nil
	rec.Status = workflow.StateRejected
	assert.Equal(t, 100, ApprovalProgress(rec))
}

func TestVerifyAccounting(t *testing.T) {
	rec := advance(t, workflow.StateAccounted)

	_, err := Apply(context.Background(), rec, employee, VerifyAccounting{}, testNow)
	assert.ErrorIs(t, err, ErrForbidden)

	closed := mustApply(t, rec, accountant, VerifyAccounting{Comments: "receipts match"})
	assert.Equal(t, workflow.StateClosed, closed.Status)
	require.NotNil(t, closed.Accounting.Verification)
	assert.Equal(t, accountant.ID, closed.Accounting.Verification.VerifiedBy.ID)
	assert.Nil(t, rec.Accounting.Verification)
}

func TestIllegalTransitionsDoNotMutate(t *testing.T) {
	commands := []struct {
		name  string
		actor entity.Actor
		cmd   Command
	}{
		{"approve_hod", hod, ApproveHOD{Comments: "ok"}},
		{"approve_accountant", accountant, ApproveAccountant{Comments: "ok"}},
		{"reject", accountant, Reject{Reason: "no"}},
		{"disburse", accountant, Disburse{Amount: dec("100")}},
		{"acknowledge", employee, Acknowledge{Received: true}},
		{"dispute", employee, Acknowledge{Received: false, Comments: "missing"}},
		{"resolve", admin, ResolveDispute{Comments: "done"}},
		{"submit_accounting", employee, SubmitAccounting{Receipts: []ReceiptInput{{Description: "a", Amount: dec("1")}}}},
		{"verify", accountant, VerifyAccounting{}},
	}

	for _, state := range workflow.AllStates {
		rec := advance(t, state)
		permitted := map[workflow.Trigger]bool{}
		for _, tr := range NextTriggers(rec) {
			permitted[tr] = true
		}

		for _, c := range commands {
			if permitted[c.cmd.Trigger()] {
				continue
			}
			t.Run(string(state)+"/"+c.name, func(t *testing.T) {
				before := rec.Clone()
				_, err := Apply(context.Background(), rec, c.actor, c.cmd, testNow)
				require.Error(t, err)
				assert.Equal(t, KindState, KindOf(err))
				assert.Equal(t, before, rec)
			})
		}
	}
}

func TestAuthorize(t *testing.T) {
	rec := newRecord(t)

	err := Authorize(entity.Actor{}, workflow.TriggerHODApprove, rec)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	err = Authorize(employee, workflow.TriggerHODApprove, rec)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindForbidden, KindOf(err))

	assert.ErrorIs(t, Authorize(otherHOD, workflow.TriggerHODApprove, rec), ErrForbidden)
	assert.ErrorIs(t, Authorize(accountant, workflow.TriggerHODApprove, rec), ErrForbidden)
	assert.NoError(t, Authorize(hod, workflow.TriggerHODApprove, rec))
	assert.NoError(t, Authorize(employee, workflow.TriggerAcknowledgeReceived, rec))
	assert.ErrorIs(t, Authorize(hod, workflow.TriggerSubmitAccounting, rec), ErrForbidden)
	assert.NoError(t, Authorize(admin, workflow.TriggerResolveDispute, rec))
}

func TestCanView(t *testing.T) {
	rec := newRecord(t)
	stranger := entity.Actor{ID: "u-x", Role: entity.RoleEmployee, Department: "ops"}

	assert.True(t, CanView(employee, rec))
	assert.True(t, CanView(hod, rec))
	assert.False(t, CanView(otherHOD, rec))
	assert.True(t, CanView(accountant, rec))
	assert.True(t, CanView(admin, rec))
	assert.False(t, CanView(stranger, rec))

	assert.Equal(t, ScopeOwn, ListScope(employee))
	assert.Equal(t, ScopeDepartment, ListScope(hod))
	assert.Equal(t, ScopeAll, ListScope(accountant))
}

func TestComputeBalance(t *testing.T) {
	receipts := func(amounts ...string) []entity.Receipt {
		out := make([]entity.Receipt, 0, len(amounts))
		for _, a := range amounts {
			out = append(out, entity.Receipt{Description: "r", Amount: dec(a)})
		}
		return out
	}

	tests := []struct {
		name     string
		amount   string
		receipts []entity.Receipt
		total    string
		balance  string
		class    entity.Classification
	}{
		{"surplus", "5000", receipts("3000", "1500"), "4500", "500", entity.ClassificationSurplus},
		{"balanced", "5000", receipts("3000", "2000"), "5000", "0", entity.ClassificationBalanced},
		{"deficit", "5000", receipts("3000", "2500.50"), "5500.50", "-500.50", entity.ClassificationDeficit},
		{"exact decimal", "0.3", receipts("0.1", "0.2"), "0.3", "0", entity.ClassificationBalanced},
		{"zero receipt", "10", receipts("0", "10"), "10", "0", entity.ClassificationBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeBalance(dec(tt.amount), tt.receipts)
			require.NoError(t, err)
			assert.True(t, got.Total.Equal(dec(tt.total)), got.Total.String())
			assert.True(t, got.Balance.Equal(dec(tt.balance)), got.Balance.String())
			assert.Equal(t, tt.class, got.Classification)
			assert.Equal(t, got.Classification == entity.ClassificationBalanced, got.Balance.IsZero())
		})
	}

	_, err := ComputeBalance(dec("10"), receipts("-1"))
	assert.ErrorIs(t, err, ErrInvalidReceipt)
}

func TestReconcile_RecomputesStoredFigures(t *testing.T) {
	rec := advance(t, workflow.StateAccounted)
	rec.Accounting.TotalAmount = dec("1")
	rec.Accounting.Balance = dec("4999")
	rec.Accounting.Classification = entity.ClassificationSurplus

	require.NoError(t, Reconcile(rec))
	assert.True(t, rec.Accounting.TotalAmount.Equal(dec("5000")))
	assert.True(t, rec.Accounting.Balance.IsZero())
	assert.Equal(t, entity.ClassificationBalanced, rec.Accounting.Classification)
	assert.NoError(t, Reconcile(newRecord(t)))
}

func TestApply_InvariantChecked(t *testing.T) {
	rec := advance(t, workflow.StateDisbursed)
	rec.AccountantApproval = nil

	_, err := Apply(context.Background(), rec, employee, SubmitAccounting{Receipts: []ReceiptInput{{Description: "a", Amount: dec("1")}}}, testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrInvariantViolated))
	assert.Equal(t, KindInternal, KindOf(err))
}
