package workflow

import "context"

// claimBuilder holds the claim lifecycle; built machines copy it so it is never mutated after init
var claimBuilder = newClaimBuilder()

type approvalKey struct{}

// ApprovalProgress counts distinct approvals, including the one being fired, against the number needed
type ApprovalProgress struct {
	Given  int
	Needed int
}

// WithApprovalProgress attaches the approval count that guards TriggerApprove
func WithApprovalProgress(ctx context.Context, p ApprovalProgress) context.Context {
	return context.WithValue(ctx, approvalKey{}, p)
}

// approvalsComplete holds when no progress is attached: a single approval decides
func approvalsComplete(ctx context.Context) bool {
	p, ok := ctx.Value(approvalKey{}).(ApprovalProgress)
	return !ok || p.Given >= p.Needed
}

func approvalsOutstanding(ctx context.Context) bool {
	return !approvalsComplete(ctx)
}

func newClaimBuilder() StateMachineBuilder {
	builder := NewBuilder()

	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, approvalsComplete).
		PermitIf(TriggerApprove, StatePending, approvalsOutstanding).
		Permit(TriggerAutoApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerAutoReject, StateRejected).
		Permit(TriggerRequestInfo, StateInfoRequested).
		PermitReentry(TriggerEscalate).
		PermitReentry(TriggerRescore)

	builder.Configure(StateInfoRequested).
		Permit(TriggerResubmit, StatePending).
		PermitReentry(TriggerEscalate).
		PermitReentry(TriggerRescore)

	// APPROVED and REJECTED are terminal states - no outgoing transitions

	return builder
}

// NewClaimStateMachine creates a state machine for a claim in the given state
func NewClaimStateMachine(current State) (StateMachine, error) {
	return claimBuilder.Build(current)
}
