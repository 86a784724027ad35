package workflow

// State represents a status in the imprest lifecycle
type State string

const (
	StatePendingHOD            State = "pending_hod"
	StatePendingAccountant     State = "pending_accountant"
	StateApproved              State = "approved"
	StatePendingAcknowledgment State = "pending_acknowledgment"
	StateDisbursed             State = "disbursed"
	StateDisputed              State = "disputed"
	StateResolvedDispute       State = "resolved_dispute"
	StateAccounted             State = "accounted"
	StateRejected              State = "rejected"
	StateClosed                State = "closed"
)

// AllStates lists every state in lifecycle order. Callers that tally
// per-state values iterate this slice so unseen states still appear.
var AllStates = []State{
	StatePendingHOD,
	StatePendingAccountant,
	StateApproved,
	StatePendingAcknowledgment,
	StateDisbursed,
	StateDisputed,
	StateResolvedDispute,
	StateAccounted,
	StateRejected,
	StateClosed,
}

var validStates = func() map[State]bool {
	m := make(map[State]bool, len(AllStates))
	for _, s := range AllStates {
		m[s] = true
	}
	return m
}()

var terminalStates = map[State]bool{
	StateRejected:        true,
	StateResolvedDispute: true,
	StateClosed:          true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known imprest state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a persisted status string into a State
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}
