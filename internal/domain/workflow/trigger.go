package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerHODApprove          Trigger = "hod_approve"
	TriggerAccountantApprove   Trigger = "accountant_approve"
	TriggerReject              Trigger = "reject"
	TriggerDisburse            Trigger = "disburse"
	TriggerAcknowledgeReceived Trigger = "acknowledge_received"
	TriggerAcknowledgeDisputed Trigger = "acknowledge_disputed"
	TriggerResolveDispute      Trigger = "resolve_dispute"
	TriggerSubmitAccounting    Trigger = "submit_accounting"
	TriggerVerifyAccounting    Trigger = "verify_accounting"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
