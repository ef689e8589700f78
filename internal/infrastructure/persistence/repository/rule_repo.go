package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RuleRepository implements port.RuleRepository on SQLite.
// Rules are kept in their configured order through the position column.
type RuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlite.DB, logger *zap.Logger) *RuleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleRepository{db: db, logger: logger}
}

// GetActiveApprovalRules returns the active approval rules in configured order
func (r *RuleRepository) GetActiveApprovalRules(ctx context.Context) ([]entity.ApprovalRule, error) {
	query := `SELECT id, name, max_amount, categories, employees, actions
		FROM approval_rules WHERE active = 1 ORDER BY position, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval rules: %w", err)
	}
	defer rows.Close()

	var rules []entity.ApprovalRule
	for rows.Next() {
		var (
			id, name, maxAmount         string
			categories, employees, acts string
		)
		if err := rows.Scan(&id, &name, &maxAmount, &categories, &employees, &acts); err != nil {
			return nil, fmt.Errorf("failed to scan approval rule: %w", err)
		}

		amount, err := decimal.NewFromString(maxAmount)
		if err != nil {
			return nil, fmt.Errorf("approval rule %s: bad max_amount: %w", id, err)
		}
		cond := entity.ApprovalConditions{MaxAmount: amount}
		if cond.Categories, err = decodeList(categories); err != nil {
			return nil, err
		}
		if cond.Employees, err = decodeList(employees); err != nil {
			return nil, err
		}
		actionNames, err := decodeList(acts)
		if err != nil {
			return nil, err
		}
		actions := make([]entity.ApprovalAction, 0, len(actionNames))
		for _, a := range actionNames {
			actions = append(actions, entity.ApprovalAction(a))
		}

		rule, err := entity.NewApprovalRule(id, name, cond, actions, true)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval rules: %w", err)
	}
	return rules, nil
}

// GetActiveEscalationRules returns the active escalation rules in configured order
func (r *RuleRepository) GetActiveEscalationRules(ctx context.Context) ([]entity.EscalationRule, error) {
	query := `SELECT id, name, trigger_kind, trigger_after_secs, trigger_amount,
			trigger_categories, trigger_count, target_kind, target_value, notify_original
		FROM escalation_rules WHERE active = 1 ORDER BY position, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []entity.EscalationRule
	for rows.Next() {
		var (
			id, name, kind, amount  string
			categories              string
			afterSecs               int64
			count                   int
			targetKind, targetValue string
			notify                  bool
		)
		if err := rows.Scan(&id, &name, &kind, &afterSecs, &amount,
			&categories, &count, &targetKind, &targetValue, &notify); err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
		}

		trigger := entity.EscalationTrigger{
			Kind:  entity.TriggerKind(kind),
			After: time.Duration(afterSecs) * time.Second,
			Count: count,
		}
		if trigger.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("escalation rule %s: bad trigger_amount: %w", id, err)
		}
		if trigger.Categories, err = decodeList(categories); err != nil {
			return nil, err
		}

		target := entity.EscalationTarget{Kind: entity.TargetKind(targetKind), Value: targetValue}
		rule, err := entity.NewEscalationRule(id, name, trigger, target, notify, true)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation rules: %w", err)
	}
	return rules, nil
}

// ReplaceRules swaps both rule tables in one transaction, keeping slice order as position
func (r *RuleRepository) ReplaceRules(ctx context.Context, approval []entity.ApprovalRule, escalation []entity.EscalationRule) error {
	for _, rule := range approval {
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	for _, rule := range escalation {
		if err := rule.Validate(); err != nil {
			return err
		}
	}

	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)
		if _, err := exec.ExecContext(ctx, `DELETE FROM approval_rules`); err != nil {
			return fmt.Errorf("failed to clear approval rules: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `DELETE FROM escalation_rules`); err != nil {
			return fmt.Errorf("failed to clear escalation rules: %w", err)
		}

		for i, rule := range approval {
			actions := make([]string, 0, len(rule.Actions))
			for _, a := range rule.Actions {
				actions = append(actions, string(a))
			}
			categories, employees, acts, err := encodeLists(rule.Conditions.Categories, rule.Conditions.Employees, actions)
			if err != nil {
				return err
			}
			_, err = exec.ExecContext(ctx, `INSERT INTO approval_rules
				(id, name, position, max_amount, categories, employees, actions, active)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rule.ID, rule.Name, i, rule.Conditions.MaxAmount.String(), categories, employees, acts, rule.Active)
			if err != nil {
				return fmt.Errorf("failed to insert approval rule %s: %w", rule.ID, err)
			}
		}

		for i, rule := range escalation {
			categories, _, _, err := encodeLists(rule.Trigger.Categories)
			if err != nil {
				return err
			}
			_, err = exec.ExecContext(ctx, `INSERT INTO escalation_rules
				(id, name, position, trigger_kind, trigger_after_secs, trigger_amount,
				 trigger_categories, trigger_count, target_kind, target_value, notify_original, active)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rule.ID, rule.Name, i, string(rule.Trigger.Kind), int64(rule.Trigger.After/time.Second),
				rule.Trigger.Amount.String(), categories, rule.Trigger.Count,
				string(rule.EscalateTo.Kind), rule.EscalateTo.Value, rule.NotifyOriginalApprover, rule.Active)
			if err != nil {
				return fmt.Errorf("failed to insert escalation rule %s: %w", rule.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Rules replaced",
		zap.Int("approval_rules", len(approval)),
		zap.Int("escalation_rules", len(escalation)))
	return nil
}

var _ port.RuleRepository = (*RuleRepository)(nil)
