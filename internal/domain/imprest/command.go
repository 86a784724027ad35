// Package imprest implements the imprest lifecycle: sign-off, disbursement,
// acknowledgment, dispute resolution and accountability reconciliation.
//
// Every operation is a Command applied to a copy of the record. A command that
// fails returns an error and leaves the caller's record untouched.
package imprest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Command is a requested transition. The set of commands is closed to this package.
type Command interface {
	// Trigger is the state machine trigger the command fires
	Trigger() workflow.Trigger

	// Operation is the stable name used for history rows and idempotency keys
	Operation() string

	// Note is the free text recorded in the audit trail
	Note() string

	apply(ctx context.Context, t *transition) error
}

type transition struct {
	rec   *entity.Imprest
	actor entity.Actor
	now   time.Time
}

// fire runs the trigger through the imprest state machine and stores the resulting status
func (t *transition) fire(ctx context.Context, trigger workflow.Trigger, guard workflow.GuardFunc) error {
	machine := workflow.NewImprestMachine(t.rec.Status, workflow.Guards{trigger: guard})
	if err := machine.Fire(ctx, trigger); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			return fmt.Errorf("%w: %s from %s", ErrInvalidState, trigger, t.rec.Status)
		}
		return err
	}
	t.rec.Status = machine.State()
	return nil
}

// Apply authorizes and applies cmd to a copy of rec, returning the transitioned copy
func Apply(ctx context.Context, rec *entity.Imprest, actor entity.Actor, cmd Command, now time.Time) (*entity.Imprest, error) {
	if rec == nil {
		return nil, ErrNotFound
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w: no command", ErrInvalidInput)
	}
	if err := Authorize(actor, cmd.Trigger(), rec); err != nil {
		return nil, err
	}

	t := &transition{rec: rec.Clone(), actor: actor, now: now.UTC()}
	if err := cmd.apply(ctx, t); err != nil {
		return nil, err
	}
	t.rec.UpdatedAt = t.now

	if err := t.rec.Validate(); err != nil {
		return nil, err
	}
	return t.rec, nil
}

// NextTriggers lists the triggers the record's current status allows, regardless of role
func NextTriggers(rec *entity.Imprest) []workflow.Trigger {
	return workflow.NewImprestMachine(rec.Status, nil).PermittedTriggers()
}
