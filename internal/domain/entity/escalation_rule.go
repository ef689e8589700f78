package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TriggerKind selects the condition an escalation rule watches
type TriggerKind string

const (
	TriggerTimeout   TriggerKind = "timeout"
	TriggerAmount    TriggerKind = "amount"
	TriggerCategory  TriggerKind = "category"
	TriggerFrequency TriggerKind = "frequency"
)

// EscalationTrigger is a tagged variant: only the field matching Kind is set
type EscalationTrigger struct {
	Kind TriggerKind `json:"kind"`

	// timeout: time spent in the current status
	After time.Duration `json:"after,omitempty"`
	// amount: claim amount strictly above
	Amount decimal.Decimal `json:"amount,omitempty"`
	// category: claim category in list
	Categories []string `json:"categories,omitempty"`
	// frequency: open claims of the same employee at or above
	Count int `json:"count,omitempty"`
}

// TimeoutTrigger fires when a claim stays in its status longer than d
func TimeoutTrigger(d time.Duration) EscalationTrigger {
	return EscalationTrigger{Kind: TriggerTimeout, After: d}
}

// AmountTrigger fires when a claim amount exceeds threshold
func AmountTrigger(threshold decimal.Decimal) EscalationTrigger {
	return EscalationTrigger{Kind: TriggerAmount, Amount: threshold}
}

// CategoryTrigger fires for claims in one of the categories
func CategoryTrigger(categories ...string) EscalationTrigger {
	return EscalationTrigger{Kind: TriggerCategory, Categories: categories}
}

// FrequencyTrigger fires when the employee has at least n open claims
func FrequencyTrigger(n int) EscalationTrigger {
	return EscalationTrigger{Kind: TriggerFrequency, Count: n}
}

// Validate rejects triggers whose payload does not match their kind
func (t EscalationTrigger) Validate() error {
	switch t.Kind {
	case TriggerTimeout:
		if t.After <= 0 || !t.Amount.IsZero() || len(t.Categories) > 0 || t.Count != 0 {
			return fmt.Errorf("%w: timeout trigger needs only a positive duration", ErrInvalidRule)
		}
	case TriggerAmount:
		if !t.Amount.IsPositive() || t.After != 0 || len(t.Categories) > 0 || t.Count != 0 {
			return fmt.Errorf("%w: amount trigger needs only a positive amount", ErrInvalidRule)
		}
	case TriggerCategory:
		if len(t.Categories) == 0 || t.After != 0 || !t.Amount.IsZero() || t.Count != 0 {
			return fmt.Errorf("%w: category trigger needs only a category list", ErrInvalidRule)
		}
		for _, c := range t.Categories {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("%w: category trigger has an empty category", ErrInvalidRule)
			}
		}
	case TriggerFrequency:
		if t.Count <= 0 || t.After != 0 || !t.Amount.IsZero() || len(t.Categories) > 0 {
			return fmt.Errorf("%w: frequency trigger needs only a positive count", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidRule, t.Kind)
	}
	return nil
}

// TargetKind distinguishes a role from a specific approver
type TargetKind string

const (
	TargetRole     TargetKind = "role"
	TargetApprover TargetKind = "approver"
)

// RolePrefix marks a role assignment in Claim.Escalation.CurrentApproverID
const RolePrefix = "role:"

// EscalationTarget is where an escalated claim is re-routed
type EscalationTarget struct {
	Kind  TargetKind `json:"kind"`
	Value string     `json:"value"`
}

// AssigneeID returns the value stored as the claim's current approver
func (t EscalationTarget) AssigneeID() string {
	if t.Kind == TargetRole {
		return RolePrefix + t.Value
	}
	return t.Value
}

// EscalationRule re-routes stalled or risky open claims
type EscalationRule struct {
	ID                     string            `json:"id"`
	Name                   string            `json:"name"`
	Trigger                EscalationTrigger `json:"trigger"`
	EscalateTo             EscalationTarget  `json:"escalate_to"`
	NotifyOriginalApprover bool              `json:"notify_original_approver"`
	Active                 bool              `json:"active"`
}

// NewEscalationRule builds and validates an escalation rule
func NewEscalationRule(id, name string, trigger EscalationTrigger, target EscalationTarget, notify, active bool) (EscalationRule, error) {
	r := EscalationRule{
		ID:                     strings.TrimSpace(id),
		Name:                   name,
		Trigger:                trigger,
		EscalateTo:             target,
		NotifyOriginalApprover: notify,
		Active:                 active,
	}
	if err := r.Validate(); err != nil {
		return EscalationRule{}, err
	}
	return r, nil
}

// Validate checks identity, trigger and target
func (r EscalationRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: escalation rule id is required", ErrInvalidRule)
	}
	if err := r.Trigger.Validate(); err != nil {
		return fmt.Errorf("escalation rule %s: %w", r.ID, err)
	}
	if r.EscalateTo.Kind != TargetRole && r.EscalateTo.Kind != TargetApprover {
		return fmt.Errorf("%w: escalation rule %s: unknown target kind %q", ErrInvalidRule, r.ID, r.EscalateTo.Kind)
	}
	if strings.TrimSpace(r.EscalateTo.Value) == "" {
		return fmt.Errorf("%w: escalation rule %s: escalate_to is required", ErrInvalidRule, r.ID)
	}
	return nil
}

// EscalationEvent reports one escalation applied by a sweep
type EscalationEvent struct {
	ClaimID            string    `json:"claim_id"`
	RuleIDs            []string  `json:"rule_ids"`
	FromLevel          int       `json:"from_level"`
	ToLevel            int       `json:"to_level"`
	PreviousApproverID string    `json:"previous_approver_id,omitempty"`
	NewApproverID      string    `json:"new_approver_id"`
	Notified           []string  `json:"notified,omitempty"`
	At                 time.Time `json:"at"`
}
