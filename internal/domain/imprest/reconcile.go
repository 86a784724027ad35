package imprest

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Reconciliation is the receipts-vs-amount outcome of an accounting
type Reconciliation struct {
	Total          decimal.Decimal       `json:"total"`
	Balance        decimal.Decimal       `json:"balance"`
	Classification entity.Classification `json:"classification"`
}

// ComputeBalance sums the receipts and classifies amount minus total.
// Balanced means exactly zero; decimals compare without tolerance.
func ComputeBalance(amount decimal.Decimal, receipts []entity.Receipt) (Reconciliation, error) {
	total := decimal.Zero
	for i, r := range receipts {
		if r.Amount.IsNegative() {
			return Reconciliation{}, invalid(fmt.Sprintf("receipts[%d].amount", i), ErrInvalidReceipt, "receipt amount cannot be negative")
		}
		total = total.Add(r.Amount)
	}

	balance := amount.Sub(total)
	return Reconciliation{
		Total:          total,
		Balance:        balance,
		Classification: Classify(balance),
	}, nil
}

// Classify maps a balance to balanced, surplus or deficit
func Classify(balance decimal.Decimal) entity.Classification {
	switch balance.Sign() {
	case 0:
		return entity.ClassificationBalanced
	case 1:
		return entity.ClassificationSurplus
	default:
		return entity.ClassificationDeficit
	}
}

// Reconcile recomputes the derived accounting figures of a loaded record from its receipts
func Reconcile(rec *entity.Imprest) error {
	if rec == nil || rec.Accounting == nil {
		return nil
	}
	result, err := ComputeBalance(rec.DisbursedAmount(), rec.Accounting.Receipts)
	if err != nil {
		return err
	}
	rec.Accounting.TotalAmount = result.Total
	rec.Accounting.Balance = result.Balance
	rec.Accounting.Classification = result.Classification
	return nil
}

// ReceiptInput is one receipt line as submitted by the requester
type ReceiptInput struct {
	Description string
	Amount      decimal.Decimal
	ReceiptURL  string
}

// SubmitAccounting reconciles receipts against the disbursed amount and awaits verification
type SubmitAccounting struct {
	Receipts []ReceiptInput
	Comments string
}

func (SubmitAccounting) Trigger() workflow.Trigger { return workflow.TriggerSubmitAccounting }
func (SubmitAccounting) Operation() string         { return "submit_accounting" }
func (c SubmitAccounting) Note() string            { return c.Comments }

func (c SubmitAccounting) apply(ctx context.Context, t *transition) error {
	receipts := make([]entity.Receipt, 0, len(c.Receipts))
	for _, in := range c.Receipts {
		receipts = append(receipts, entity.Receipt{
			Description: strings.TrimSpace(in.Description),
			Amount:      in.Amount,
			ReceiptURL:  in.ReceiptURL,
			UploadedAt:  t.now,
		})
	}

	var result Reconciliation
	guard := func(context.Context) error {
		if len(receipts) == 0 {
			return invalid("receipts", ErrEmptyReceipts, "at least one receipt is required")
		}
		for i, r := range receipts {
			if r.Description == "" {
				return invalid(fmt.Sprintf("receipts[%d].description", i), ErrInvalidReceipt, "receipt description is required")
			}
		}
		var err error
		result, err = ComputeBalance(t.rec.DisbursedAmount(), receipts)
		return err
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}

	t.rec.Accounting = &entity.Accounting{
		SubmittedBy:    t.actor.Party(),
		SubmittedAt:    t.now,
		Receipts:       receipts,
		TotalAmount:    result.Total,
		Balance:        result.Balance,
		Classification: result.Classification,
		Comments:       strings.TrimSpace(c.Comments),
	}
	return nil
}

// VerifyAccounting is the accountant's sign-off on submitted receipts; it closes the record
type VerifyAccounting struct {
	Comments string
}

func (VerifyAccounting) Trigger() workflow.Trigger { return workflow.TriggerVerifyAccounting }
func (VerifyAccounting) Operation() string         { return "verify_accounting" }
func (c VerifyAccounting) Note() string            { return c.Comments }

func (c VerifyAccounting) apply(ctx context.Context, t *transition) error {
	guard := func(context.Context) error {
		if t.rec.Accounting == nil {
			return fmt.Errorf("%w: no accounting submitted", ErrInvalidState)
		}
		return nil
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.Accounting.Verification = &entity.Verification{
		VerifiedBy: t.actor.Party(),
		Timestamp:  t.now,
		Comments:   strings.TrimSpace(c.Comments),
	}
	return nil
}
