package workflow

// State represents a claim status in the approval lifecycle.
// IsValid and IsTerminal must not depend on package-level variables: the claim
// builder is configured during package initialization.
type State string

const (
	StatePending       State = "pending"
	StateInfoRequested State = "info_requested"
	StateApproved      State = "approved"
	StateRejected      State = "rejected"
)

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateInfoRequested, StateApproved, StateRejected:
		return true
	}
	return false
}
