package imprest

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Disburse releases approved funds. Amount may be lower than requested (partial release).
type Disburse struct {
	Amount   decimal.Decimal
	Comments string
}

func (Disburse) Trigger() workflow.Trigger { return workflow.TriggerDisburse }
func (Disburse) Operation() string         { return "disburse" }
func (c Disburse) Note() string            { return c.Comments }

func (c Disburse) apply(ctx context.Context, t *transition) error {
	requested := t.rec.Amount
	guard := func(context.Context) error {
		if !c.Amount.IsPositive() {
			return invalid("amount", ErrInvalidAmount, "disbursed amount must be greater than zero")
		}
		if c.Amount.GreaterThan(requested) {
			return invalid("amount", ErrInvalidAmount, "disbursed amount exceeds the requested "+requested.String())
		}
		return nil
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.Disbursement = &entity.Disbursement{
		DisbursedBy: t.actor.Party(),
		Timestamp:   t.now,
		Amount:      c.Amount,
		Comments:    strings.TrimSpace(c.Comments),
	}
	return nil
}
