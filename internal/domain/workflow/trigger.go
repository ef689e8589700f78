package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerApprove     Trigger = "APPROVE"
	TriggerReject      Trigger = "REJECT"
	TriggerRequestInfo Trigger = "REQUEST_INFO"
	TriggerResubmit    Trigger = "RESUBMIT"
	TriggerAutoApprove Trigger = "AUTO_APPROVE"
	TriggerAutoReject  Trigger = "AUTO_REJECT"
	TriggerEscalate    Trigger = "ESCALATE"
	TriggerRescore     Trigger = "RESCORE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
