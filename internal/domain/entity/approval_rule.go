package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ApprovalAction is one effect of a matching approval rule
type ApprovalAction string

const (
	ApprovalActionAutoApprove               ApprovalAction = "auto_approve"
	ApprovalActionRequireAdditionalApproval ApprovalAction = "require_additional_approval"
	ApprovalActionFlagForReview             ApprovalAction = "flag_for_review"
)

func (a ApprovalAction) valid() bool {
	switch a {
	case ApprovalActionAutoApprove, ApprovalActionRequireAdditionalApproval, ApprovalActionFlagForReview:
		return true
	}
	return false
}

// RuleScope is the specificity tier of an approval rule, lower is more specific
type RuleScope int

const (
	ScopeEmployee RuleScope = iota
	ScopeCategory
	ScopeAmount
)

func (s RuleScope) String() string {
	switch s {
	case ScopeEmployee:
		return "employee"
	case ScopeCategory:
		return "category"
	default:
		return "amount"
	}
}

// ApprovalConditions must all hold for a rule to match. Empty lists mean "any".
type ApprovalConditions struct {
	MaxAmount  decimal.Decimal `json:"max_amount" yaml:"max_amount"`
	Categories []string        `json:"categories,omitempty" yaml:"categories"`
	Employees  []string        `json:"employees,omitempty" yaml:"employees"`
}

// ApprovalRule lets low-risk claims bypass or adjust manual review
type ApprovalRule struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Conditions ApprovalConditions `json:"conditions"`
	Actions    []ApprovalAction   `json:"actions"`
	Active     bool               `json:"active"`
}

// NewApprovalRule builds and validates an approval rule
func NewApprovalRule(id, name string, cond ApprovalConditions, actions []ApprovalAction, active bool) (ApprovalRule, error) {
	r := ApprovalRule{
		ID:         strings.TrimSpace(id),
		Name:       name,
		Conditions: cond,
		Actions:    append([]ApprovalAction(nil), actions...),
		Active:     active,
	}
	if err := r.Validate(); err != nil {
		return ApprovalRule{}, err
	}
	return r, nil
}

// Validate rejects rule shapes that could not be evaluated meaningfully
func (r ApprovalRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: approval rule id is required", ErrInvalidRule)
	}
	if !r.Conditions.MaxAmount.IsPositive() {
		return fmt.Errorf("%w: approval rule %s: max_amount must be greater than zero", ErrInvalidRule, r.ID)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: approval rule %s: at least one action is required", ErrInvalidRule, r.ID)
	}
	seen := make(map[ApprovalAction]bool, len(r.Actions))
	for _, a := range r.Actions {
		if !a.valid() {
			return fmt.Errorf("%w: approval rule %s: unknown action %q", ErrInvalidRule, r.ID, a)
		}
		if seen[a] {
			return fmt.Errorf("%w: approval rule %s: duplicate action %q", ErrInvalidRule, r.ID, a)
		}
		seen[a] = true
	}
	if seen[ApprovalActionAutoApprove] && seen[ApprovalActionRequireAdditionalApproval] {
		return fmt.Errorf("%w: approval rule %s: auto_approve conflicts with require_additional_approval", ErrInvalidRule, r.ID)
	}
	for _, c := range r.Conditions.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: approval rule %s: empty category", ErrInvalidRule, r.ID)
		}
	}
	for _, e := range r.Conditions.Employees {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("%w: approval rule %s: empty employee", ErrInvalidRule, r.ID)
		}
	}
	return nil
}

// Scope returns the specificity tier used to order evaluation
func (r ApprovalRule) Scope() RuleScope {
	switch {
	case len(r.Conditions.Employees) > 0:
		return ScopeEmployee
	case len(r.Conditions.Categories) > 0:
		return ScopeCategory
	default:
		return ScopeAmount
	}
}

// Has reports whether the rule carries the action
func (r ApprovalRule) Has(action ApprovalAction) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Matches reports whether every condition holds for the claim
func (r ApprovalRule) Matches(c *Claim) bool {
	if c.Amount.GreaterThan(r.Conditions.MaxAmount) {
		return false
	}
	if len(r.Conditions.Categories) > 0 && !containsFold(r.Conditions.Categories, c.Category) {
		return false
	}
	if len(r.Conditions.Employees) > 0 && !contains(r.Conditions.Employees, c.EmployeeID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
