package imprest

import (
	"fmt"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"
)

// Authorize checks that the actor holds the capability required to fire the trigger on the record
func Authorize(actor entity.Actor, trigger workflow.Trigger, rec *entity.Imprest) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}

	switch trigger {
	case workflow.TriggerHODApprove:
		return requireHODOf(actor, rec)
	case workflow.TriggerReject:
		if rec.Status == workflow.StatePendingHOD {
			return requireHODOf(actor, rec)
		}
		return requireRole(actor, entity.RoleAccountant)
	case workflow.TriggerAccountantApprove, workflow.TriggerDisburse, workflow.TriggerVerifyAccounting:
		return requireRole(actor, entity.RoleAccountant)
	case workflow.TriggerAcknowledgeReceived, workflow.TriggerAcknowledgeDisputed, workflow.TriggerSubmitAccounting:
		if !rec.IsOwnedBy(actor.ID) {
			return fmt.Errorf("%w: only the requester may %s", ErrForbidden, trigger)
		}
		return nil
	case workflow.TriggerResolveDispute:
		return requireRole(actor, entity.RoleAdmin)
	default:
		return fmt.Errorf("%w: unknown trigger %s", ErrForbidden, trigger)
	}
}

func requireRole(actor entity.Actor, role entity.Role) error {
	if actor.Role != role {
		return fmt.Errorf("%w: role %s required, caller has %s", ErrForbidden, role, actor.Role)
	}
	return nil
}

func requireHODOf(actor entity.Actor, rec *entity.Imprest) error {
	if err := requireRole(actor, entity.RoleHOD); err != nil {
		return err
	}
	if actor.Department != rec.Department {
		return fmt.Errorf("%w: hod of %s cannot act on %s requests", ErrForbidden, actor.Department, rec.Department)
	}
	return nil
}

// Scope is the slice of records an actor may list
type Scope int

const (
	ScopeOwn Scope = iota
	ScopeDepartment
	ScopeAll
)

// ListScope returns which records the actor may see in the all-imprests view
func ListScope(actor entity.Actor) Scope {
	switch actor.Role {
	case entity.RoleAccountant, entity.RoleAdmin:
		return ScopeAll
	case entity.RoleHOD:
		return ScopeDepartment
	default:
		return ScopeOwn
	}
}

// CanView reports whether the actor may read the record
func CanView(actor entity.Actor, rec *entity.Imprest) bool {
	if rec.IsOwnedBy(actor.ID) {
		return true
	}
	switch ListScope(actor) {
	case ScopeAll:
		return true
	case ScopeDepartment:
		return actor.Department == rec.Department
	default:
		return false
	}
}
