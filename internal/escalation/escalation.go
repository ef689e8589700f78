// Package escalation decides which escalation rules fire for an open claim.
// It is pure: the sweep that loads claims and writes the result lives in the workflow engine.
package escalation

import (
	"strings"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Input is everything a rule may look at for one claim
type Input struct {
	Claim *entity.Claim
	// OpenClaims is the number of open claims of the same employee, this one included
	OpenClaims int
	Now        time.Time
}

// Matches reports whether the rule's trigger holds for the input
func Matches(rule entity.EscalationRule, in Input) bool {
	c := in.Claim
	switch rule.Trigger.Kind {
	case entity.TriggerTimeout:
		return !c.StatusChangedAt.IsZero() && in.Now.Sub(c.StatusChangedAt) > rule.Trigger.After
	case entity.TriggerAmount:
		return c.Amount.GreaterThan(rule.Trigger.Amount)
	case entity.TriggerCategory:
		for _, cat := range rule.Trigger.Categories {
			if strings.EqualFold(strings.TrimSpace(cat), strings.TrimSpace(c.Category)) {
				return true
			}
		}
		return false
	case entity.TriggerFrequency:
		return in.OpenClaims >= rule.Trigger.Count
	}
	return false
}

// Plan is the escalation to apply to one claim
type Plan struct {
	// RuleIDs are the firing rules in configured order
	RuleIDs []string
	// Target is the assignment of the first firing rule
	Target             entity.EscalationTarget
	PreviousApproverID string
	NewApproverID      string
	// Notify holds the users to notify besides the new assignee
	Notify []string
}

// Evaluate returns the plan for a claim, or false when no active rule fires.
// A rule fires at most once per claim; rules that fired on an earlier sweep are skipped.
func Evaluate(rules []entity.EscalationRule, in Input) (Plan, bool) {
	if in.Claim == nil || !in.Claim.Status.IsOpen() {
		return Plan{}, false
	}

	var plan Plan
	notify := false
	for _, r := range rules {
		if !r.Active || in.Claim.Escalation.HasFired(r.ID) || !Matches(r, in) {
			continue
		}
		if len(plan.RuleIDs) == 0 {
			plan.Target = r.EscalateTo
		}
		plan.RuleIDs = append(plan.RuleIDs, r.ID)
		notify = notify || r.NotifyOriginalApprover
	}
	if len(plan.RuleIDs) == 0 {
		return Plan{}, false
	}

	plan.PreviousApproverID = in.Claim.Escalation.CurrentApproverID
	plan.NewApproverID = plan.Target.AssigneeID()
	if notify && plan.PreviousApproverID != "" && plan.PreviousApproverID != plan.NewApproverID {
		plan.Notify = []string{plan.PreviousApproverID}
	}
	return plan, true
}

// Apply writes the plan onto the claim's mutable fields. The level grows by exactly one
// no matter how many rules fired.
func (p Plan) Apply(fields *entity.ClaimFields, now time.Time) {
	at := now
	fields.Escalation.Level++
	fields.Escalation.CurrentApproverID = p.NewApproverID
	fields.Escalation.EscalatedAt = &at
	fields.Escalation.FiredRules = append(fields.Escalation.FiredRules, p.RuleIDs...)
}

// Event describes the applied plan
func (p Plan) Event(claimID string, fromLevel int, now time.Time) entity.EscalationEvent {
	return entity.EscalationEvent{
		ClaimID:            claimID,
		RuleIDs:            append([]string(nil), p.RuleIDs...),
		FromLevel:          fromLevel,
		ToLevel:            fromLevel + 1,
		PreviousApproverID: p.PreviousApproverID,
		NewApproverID:      p.NewApproverID,
		Notified:           append([]string(nil), p.Notify...),
		At:                 now,
	}
}
