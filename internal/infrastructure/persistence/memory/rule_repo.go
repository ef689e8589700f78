package memory

import (
	"context"
	"sync"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// RuleRepository holds rule sets in configured order
type RuleRepository struct {
	mu         sync.RWMutex
	approval   []entity.ApprovalRule
	escalation []entity.EscalationRule
	err        error
}

// NewRuleRepository creates a repository with the given rules
func NewRuleRepository(approval []entity.ApprovalRule, escalation []entity.EscalationRule) *RuleRepository {
	return &RuleRepository{approval: approval, escalation: escalation}
}

// Replace swaps both rule sets
func (r *RuleRepository) Replace(approval []entity.ApprovalRule, escalation []entity.EscalationRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approval = approval
	r.escalation = escalation
}

// SetError makes every read fail with err; nil clears it
func (r *RuleRepository) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// GetActiveApprovalRules returns the active approval rules in configured order
func (r *RuleRepository) GetActiveApprovalRules(ctx context.Context) ([]entity.ApprovalRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.err != nil {
		return nil, r.err
	}

	active := make([]entity.ApprovalRule, 0, len(r.approval))
	for _, rule := range r.approval {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

// GetActiveEscalationRules returns the active escalation rules in configured order
func (r *RuleRepository) GetActiveEscalationRules(ctx context.Context) ([]entity.EscalationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.err != nil {
		return nil, r.err
	}

	active := make([]entity.EscalationRule, 0, len(r.escalation))
	for _, rule := range r.escalation {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}
