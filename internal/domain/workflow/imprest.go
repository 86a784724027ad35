package workflow

// Guards supplies the guard for each trigger when a machine is built.
// A trigger without an entry is unguarded.
type Guards map[Trigger]GuardFunc

// NewImprestMachine creates a state machine configured with the imprest transition table
func NewImprestMachine(initialState State, guards Guards) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePendingHOD).
		PermitIf(TriggerHODApprove, StatePendingAccountant, guards[TriggerHODApprove]).
		PermitIf(TriggerReject, StateRejected, guards[TriggerReject])

	builder.Configure(StatePendingAccountant).
		PermitIf(TriggerAccountantApprove, StateApproved, guards[TriggerAccountantApprove]).
		PermitIf(TriggerReject, StateRejected, guards[TriggerReject])

	// disbursement leaves the record waiting for the requester to confirm receipt
	builder.Configure(StateApproved).
		PermitIf(TriggerDisburse, StatePendingAcknowledgment, guards[TriggerDisburse])

	builder.Configure(StatePendingAcknowledgment).
		PermitIf(TriggerAcknowledgeReceived, StateDisbursed, guards[TriggerAcknowledgeReceived]).
		PermitIf(TriggerAcknowledgeDisputed, StateDisputed, guards[TriggerAcknowledgeDisputed])

	builder.Configure(StateDisputed).
		PermitIf(TriggerResolveDispute, StateResolvedDispute, guards[TriggerResolveDispute])

	builder.Configure(StateDisbursed).
		PermitIf(TriggerSubmitAccounting, StateAccounted, guards[TriggerSubmitAccounting])

	builder.Configure(StateAccounted).
		PermitIf(TriggerVerifyAccounting, StateClosed, guards[TriggerVerifyAccounting])

	// REJECTED, RESOLVED_DISPUTE and CLOSED are terminal

	return builder.Build(initialState)
}
