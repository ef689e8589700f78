package workflow

import (
	"context"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Decision is a reviewer's verdict on a claim
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionRequestInfo Decision = "request_info"
)

// IsValid reports whether the decision is known
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestInfo:
		return true
	}
	return false
}

// WorkflowEngine governs how claims move from submission to a terminal decision
type WorkflowEngine interface {
	// SubmitClaim validates, scores and stores a new claim, auto-approving it when a rule allows
	SubmitClaim(ctx context.Context, in entity.NewClaimInput) (*entity.Claim, error)

	// SubmitDecision applies a reviewer decision to a claim
	SubmitDecision(ctx context.Context, claimID string, decision Decision, actorID, comment string) (*entity.Claim, error)

	// Resubmit answers an info request: the submitter amends the claim and it returns to pending
	Resubmit(ctx context.Context, claimID, employeeID string, amendment entity.Amendment) (*entity.Claim, error)

	// Rescore recomputes the fraud score of an open claim
	Rescore(ctx context.Context, claimID string) (*entity.Claim, error)

	// RescoreClaims rescores several claims in parallel; per-claim failures are reported in the results
	RescoreClaims(ctx context.Context, claimIDs []string) []RescoreResult

	// GetClaim returns a claim with its history
	GetClaim(ctx context.Context, claimID string) (*entity.Claim, error)

	// RunEscalationSweep evaluates escalation rules against every open claim
	RunEscalationSweep(ctx context.Context, now time.Time) ([]entity.EscalationEvent, error)

	// RunAutoRejectSweep rejects pending claims whose reject suggestion outlived the grace period.
	// It does nothing unless auto-reject is enabled.
	RunAutoRejectSweep(ctx context.Context, now time.Time) ([]string, error)
}

// Assessor scores a claim against the employee's history
type Assessor interface {
	Assess(ctx context.Context, claim *entity.Claim) (*entity.ReviewSnapshot, error)
}

// RescoreResult is the outcome of rescoring one claim in a batch
type RescoreResult struct {
	ClaimID string        `json:"claim_id"`
	Claim   *entity.Claim `json:"claim,omitempty"`
	Err     error         `json:"-"`
}

// Config configures the workflow engine
type Config struct {
	AutoReject AutoRejectConfig

	// Reviewers maps an actor ID to its roles. Empty means any non-submitter may review.
	Reviewers map[string][]string
	// AdminRole may decide any claim regardless of assignment
	AdminRole string
	// InitialAssignee is the approver assigned at submission (an ID or "role:<name>")
	InitialAssignee string

	// SweepBatchSize caps the number of open claims one sweep inspects
	SweepBatchSize int
	// RescoreConcurrency bounds parallel rescoring
	RescoreConcurrency int
}

// AutoRejectConfig gates policy-driven rejection
type AutoRejectConfig struct {
	Enabled     bool
	GracePeriod time.Duration
}

// DefaultConfig returns the default engine configuration; auto-reject is off
func DefaultConfig() Config {
	return Config{
		AutoReject:         AutoRejectConfig{Enabled: false, GracePeriod: 48 * time.Hour},
		AdminRole:          "admin",
		SweepBatchSize:     500,
		RescoreConcurrency: 8,
	}
}
