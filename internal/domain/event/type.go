package event

import "github.com/lord-charles/srcc-dashboard-sub000/internal/domain/workflow"

// Type identifies the type of domain event
type Type string

const (
	TypeImprestCreated      Type = "imprest.created"
	TypeHODApproved         Type = "imprest.hod_approved"
	TypeAccountantApproved  Type = "imprest.accountant_approved"
	TypeRejected            Type = "imprest.rejected"
	TypeDisbursed           Type = "imprest.disbursed"
	TypeAcknowledged        Type = "imprest.acknowledged"
	TypeDisputed            Type = "imprest.disputed"
	TypeDisputeResolved     Type = "imprest.dispute_resolved"
	TypeAccountingSubmitted Type = "imprest.accounting_submitted"
	TypeAccountingVerified  Type = "imprest.accounting_verified"
	TypeOverdue             Type = "imprest.overdue"
)

var triggerTypes = map[workflow.Trigger]Type{
	workflow.TriggerHODApprove:          TypeHODApproved,
	workflow.TriggerAccountantApprove:   TypeAccountantApproved,
	workflow.TriggerReject:              TypeRejected,
	workflow.TriggerDisburse:            TypeDisbursed,
	workflow.TriggerAcknowledgeReceived: TypeAcknowledged,
	workflow.TriggerAcknowledgeDisputed: TypeDisputed,
	workflow.TriggerResolveDispute:      TypeDisputeResolved,
	workflow.TriggerSubmitAccounting:    TypeAccountingSubmitted,
	workflow.TriggerVerifyAccounting:    TypeAccountingVerified,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeImprestCreated,
		TypeHODApproved,
		TypeAccountantApproved,
		TypeRejected,
		TypeDisbursed,
		TypeAcknowledged,
		TypeDisputed,
		TypeDisputeResolved,
		TypeAccountingSubmitted,
		TypeAccountingVerified,
		TypeOverdue:
		return true
	default:
		return false
	}
}

// ForTrigger returns the event emitted after a committed transition
func ForTrigger(trigger workflow.Trigger) (Type, bool) {
	t, ok := triggerTypes[trigger]
	return t, ok
}
