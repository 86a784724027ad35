package imprest

import (
	"context"
	"strings"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Acknowledge is the requester's confirmation of receipt.
// Received=false opens a dispute and needs comments as evidence.
type Acknowledge struct {
	Received bool
	Comments string
}

func (c Acknowledge) Trigger() workflow.Trigger {
	if c.Received {
		return workflow.TriggerAcknowledgeReceived
	}
	return workflow.TriggerAcknowledgeDisputed
}

func (Acknowledge) Operation() string { return "acknowledge" }
func (c Acknowledge) Note() string    { return c.Comments }

func (c Acknowledge) apply(ctx context.Context, t *transition) error {
	comments := strings.TrimSpace(c.Comments)
	var guard workflow.GuardFunc
	if !c.Received {
		guard = func(context.Context) error {
			if comments == "" {
				return invalid("comments", ErrMissingComments, "comments are required when disputing receipt")
			}
			return nil
		}
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.Acknowledgment = &entity.Acknowledgment{
		AcknowledgedBy: t.actor.Party(),
		Timestamp:      t.now,
		Received:       c.Received,
		Comments:       comments,
	}
	return nil
}

// ResolveDispute is the administrative close-out of a disputed disbursement
type ResolveDispute struct {
	Comments string
}

func (ResolveDispute) Trigger() workflow.Trigger { return workflow.TriggerResolveDispute }
func (ResolveDispute) Operation() string         { return "resolve_dispute" }
func (c ResolveDispute) Note() string            { return c.Comments }

func (c ResolveDispute) apply(ctx context.Context, t *transition) error {
	comments := strings.TrimSpace(c.Comments)
	guard := func(context.Context) error {
		if comments == "" {
			return invalid("comments", ErrMissingComments, "resolution notes are required")
		}
		return nil
	}
	if err := t.fire(ctx, c.Trigger(), guard); err != nil {
		return err
	}
	t.rec.DisputeResolution = &entity.DisputeResolution{
		ResolvedBy: t.actor.Party(),
		Timestamp:  t.now,
		Comments:   comments,
	}
	return nil
}
