package event

// Type identifies the type of claim event delivered to notifiers
type Type string

const (
	TypeClaimSubmitted     Type = "claim.submitted"
	TypeClaimApproved      Type = "claim.approved"
	TypeClaimRejected      Type = "claim.rejected"
	TypeClaimInfoRequested Type = "claim.info_requested"
	TypeClaimResubmitted   Type = "claim.resubmitted"
	TypeClaimPartial       Type = "claim.partially_approved"
	TypeClaimEscalated     Type = "claim.escalated"
	TypeClaimAssigned      Type = "claim.assigned"
	TypeClaimFlagged       Type = "claim.flagged"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimSubmitted,
		TypeClaimApproved,
		TypeClaimRejected,
		TypeClaimInfoRequested,
		TypeClaimResubmitted,
		TypeClaimPartial,
		TypeClaimEscalated,
		TypeClaimAssigned,
		TypeClaimFlagged:
		return true
	default:
		return false
	}
}
