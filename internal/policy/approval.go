package policy

import (
	"sort"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// OrderRules returns the active rules in evaluation order: employee-scoped, then
// category-scoped, then amount-only. Rules keep their configured order within a tier.
func OrderRules(rules []entity.ApprovalRule) []entity.ApprovalRule {
	ordered := make([]entity.ApprovalRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Scope() < ordered[j].Scope()
	})
	return ordered
}

// MatchRule returns the first active rule in evaluation order that matches the claim
func MatchRule(rules []entity.ApprovalRule, claim *entity.Claim) (entity.ApprovalRule, bool) {
	for _, r := range OrderRules(rules) {
		if r.Matches(claim) {
			return r, true
		}
	}
	return entity.ApprovalRule{}, false
}

// ApprovalDecision is the outcome of evaluating approval rules for one claim
type ApprovalDecision struct {
	Matched bool
	Rule    entity.ApprovalRule

	// AutoApprove is true when the claim may skip human review
	AutoApprove bool
	// Suppressed is true when a matching auto-approve rule was overridden by the risk policy
	Suppressed bool
	// RequiredApprovals is the number of distinct reviewers needed for a manual approval
	RequiredApprovals int
	// Flag is true when the claim must carry the flagged_for_review flag
	Flag bool
}

// DecideApproval applies the first matching rule. Auto-approval is only allowed
// when the suggested action is approve.
func DecideApproval(rules []entity.ApprovalRule, claim *entity.Claim, criteria entity.ReviewCriteria) ApprovalDecision {
	decision := ApprovalDecision{RequiredApprovals: 1}

	rule, ok := MatchRule(rules, claim)
	if !ok {
		return decision
	}
	decision.Matched = true
	decision.Rule = rule

	if rule.Has(entity.ApprovalActionRequireAdditionalApproval) {
		decision.RequiredApprovals = 2
	}
	if rule.Has(entity.ApprovalActionFlagForReview) {
		decision.Flag = true
	}
	if rule.Has(entity.ApprovalActionAutoApprove) {
		if criteria.SuggestedAction == entity.SuggestApprove {
			decision.AutoApprove = true
		} else {
			decision.Suppressed = true
		}
	}

	return decision
}
