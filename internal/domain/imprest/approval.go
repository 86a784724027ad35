package imprest

import (
	"context"
	"errors"
	"strings"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

var errHODApprovalMissing = errors.New("hod approval missing")

// ApproveHOD is the department head's sign-off
type ApproveHOD struct {
	Comments string
}

func (ApproveHOD) Trigger() workflow.Trigger { return workflow.TriggerHODApprove }
func (ApproveHOD) Operation() string         { return "approve_hod" }
func (c ApproveHOD) Note() string            { return c.Comments }

func (c ApproveHOD) apply(ctx context.Context, t *transition) error {
	if err := t.fire(ctx, c.Trigger(), nil); err != nil {
		return err
	}
	t.rec.HODApproval = &entity.Approval{
		Approver:  t.actor.Party(),
		Timestamp: t.now,
		Comments:  strings.TrimSpace(c.Comments),
	}
	return nil
}

// ApproveAccountant is the finance sign-off; it requires the HOD stage to have passed
type ApproveAccountant struct {
	Comments string
}

func (ApproveAccountant) Trigger() workflow.Trigger { return workflow.TriggerAccountantApprove }
func (ApproveAccountant) Operation() string         { return "approve_accountant" }
func (c ApproveAccountant) Note() string            { return c.Comments }

func (c ApproveAccountant) apply(ctx context.Context, t *transition) error {
	guard := func(context.Context) error {
		if t.rec.HODApproval == nil {
			return errHODApprovalMissing
		}
		return nil
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.AccountantApproval = &entity.Approval{
		Approver:  t.actor.Party(),
		Timestamp: t.now,
		Comments:  strings.TrimSpace(c.Comments),
	}
	return nil
}

// Reject terminates the workflow from either approval stage
type Reject struct {
	Reason string
}

func (Reject) Trigger() workflow.Trigger { return workflow.TriggerReject }
func (Reject) Operation() string         { return "reject" }
func (c Reject) Note() string            { return c.Reason }

func (c Reject) apply(ctx context.Context, t *transition) error {
	reason := strings.TrimSpace(c.Reason)
	stage := t.rec.Status
	guard := func(context.Context) error {
		if reason == "" {
			return invalid("reason", ErrMissingReason, "a rejection reason is required")
		}
		return nil
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.Rejection = &entity.Rejection{
		RejectedBy: t.actor.Party(),
		Stage:      stage,
		Timestamp:  t.now,
		Reason:     reason,
	}
	return nil
}

// ApprovalProgress returns the sign-off completion percentage shown on progress bars
func ApprovalProgress(rec *entity.Imprest) int {
	switch rec.Status {
	case workflow.StateApproved, workflow.StateDisbursed, workflow.StateRejected:
		return 100
	}
	progress := 0
	if rec.HODApproval != nil {
		progress += 50
	}
	if rec.AccountantApproval != nil {
		progress += 50
	}
	return progress
}
