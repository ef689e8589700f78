// Package rules loads approval and escalation rules from a YAML file.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RuleSet is one consistent snapshot of both rule lists, in file order
type RuleSet struct {
	Approval   []entity.ApprovalRule
	Escalation []entity.EscalationRule
}

type ruleFile struct {
	ApprovalRules   []approvalRuleDoc   `yaml:"approval_rules"`
	EscalationRules []escalationRuleDoc `yaml:"escalation_rules"`
}

type approvalRuleDoc struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Active     *bool  `yaml:"active"`
	Conditions struct {
		MaxAmount  string   `yaml:"max_amount"`
		Categories []string `yaml:"categories"`
		Employees  []string `yaml:"employees"`
	} `yaml:"conditions"`
	Actions []string `yaml:"actions"`
}

type escalationRuleDoc struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Active  *bool  `yaml:"active"`
	Trigger struct {
		Kind       string   `yaml:"kind"`
		After      string   `yaml:"after"`
		Amount     string   `yaml:"amount"`
		Categories []string `yaml:"categories"`
		Count      int      `yaml:"count"`
	} `yaml:"trigger"`
	EscalateTo struct {
		Kind  string `yaml:"kind"`
		Value string `yaml:"value"`
	} `yaml:"escalate_to"`
	NotifyOriginalApprover bool `yaml:"notify_original_approver"`
}

// Parse decodes and validates a rule file. Any invalid rule rejects the whole file.
func Parse(data []byte) (*RuleSet, error) {
	var doc ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	set := &RuleSet{}
	seen := make(map[string]bool)

	for i, d := range doc.ApprovalRules {
		rule, err := d.toEntity()
		if err != nil {
			return nil, fmt.Errorf("approval_rules[%d]: %w", i, err)
		}
		if seen["a:"+rule.ID] {
			return nil, fmt.Errorf("approval_rules[%d]: %w: duplicate id %q", i, entity.ErrInvalidRule, rule.ID)
		}
		seen["a:"+rule.ID] = true
		set.Approval = append(set.Approval, rule)
	}

	for i, d := range doc.EscalationRules {
		rule, err := d.toEntity()
		if err != nil {
			return nil, fmt.Errorf("escalation_rules[%d]: %w", i, err)
		}
		if seen["e:"+rule.ID] {
			return nil, fmt.Errorf("escalation_rules[%d]: %w: duplicate id %q", i, entity.ErrInvalidRule, rule.ID)
		}
		seen["e:"+rule.ID] = true
		set.Escalation = append(set.Escalation, rule)
	}

	return set, nil
}

func (d approvalRuleDoc) toEntity() (entity.ApprovalRule, error) {
	maxAmount, err := parseAmount(d.Conditions.MaxAmount)
	if err != nil {
		return entity.ApprovalRule{}, fmt.Errorf("%w: max_amount: %v", entity.ErrInvalidRule, err)
	}

	actions := make([]entity.ApprovalAction, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, entity.ApprovalAction(strings.TrimSpace(a)))
	}

	return entity.NewApprovalRule(d.ID, d.Name, entity.ApprovalConditions{
		MaxAmount:  maxAmount,
		Categories: d.Conditions.Categories,
		Employees:  d.Conditions.Employees,
	}, actions, active(d.Active))
}

func (d escalationRuleDoc) toEntity() (entity.EscalationRule, error) {
	trigger := entity.EscalationTrigger{
		Kind:       entity.TriggerKind(strings.TrimSpace(d.Trigger.Kind)),
		Categories: d.Trigger.Categories,
		Count:      d.Trigger.Count,
	}
	if d.Trigger.After != "" {
		after, err := time.ParseDuration(d.Trigger.After)
		if err != nil {
			return entity.EscalationRule{}, fmt.Errorf("%w: trigger.after: %v", entity.ErrInvalidRule, err)
		}
		trigger.After = after
	}
	if d.Trigger.Amount != "" {
		amount, err := parseAmount(d.Trigger.Amount)
		if err != nil {
			return entity.EscalationRule{}, fmt.Errorf("%w: trigger.amount: %v", entity.ErrInvalidRule, err)
		}
		trigger.Amount = amount
	}

	target := entity.EscalationTarget{
		Kind:  entity.TargetKind(strings.TrimSpace(d.EscalateTo.Kind)),
		Value: strings.TrimSpace(d.EscalateTo.Value),
	}
	return entity.NewEscalationRule(d.ID, d.Name, trigger, target, d.NotifyOriginalApprover, active(d.Active))
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// active defaults to true when the key is omitted
func active(b *bool) bool {
	return b == nil || *b
}
