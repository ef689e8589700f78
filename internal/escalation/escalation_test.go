package escalation

import (
	"testing"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

func pendingFor(days int) *entity.Claim {
	return &entity.Claim{
		ID:              "c-1",
		EmployeeID:      "emp-1",
		Amount:          decimal.NewFromInt(800),
		Category:        "Travel",
		Status:          entity.StatusPending,
		StatusChangedAt: now.AddDate(0, 0, -days),
		Escalation:      entity.EscalationState{CurrentApproverID: "mgr-1"},
	}
}

func mustRule(t *testing.T, id string, trigger entity.EscalationTrigger, target entity.EscalationTarget, notify bool) entity.EscalationRule {
	t.Helper()
	r, err := entity.NewEscalationRule(id, id, trigger, target, notify, true)
	require.NoError(t, err)
	return r
}

var director = entity.EscalationTarget{Kind: entity.TargetApprover, Value: "dir-1"}
var finance = entity.EscalationTarget{Kind: entity.TargetRole, Value: "finance"}

func TestMatches(t *testing.T) {
	claim := pendingFor(10)

	tests := []struct {
		name    string
		trigger entity.EscalationTrigger
		open    int
		want    bool
	}{
		{"timeout exceeded", entity.TimeoutTrigger(5 * 24 * time.Hour), 1, true},
		{"timeout not reached", entity.TimeoutTrigger(10 * 24 * time.Hour), 1, false},
		{"amount above", entity.AmountTrigger(decimal.NewFromInt(500)), 1, true},
		{"amount equal", entity.AmountTrigger(decimal.NewFromInt(800)), 1, false},
		{"category listed", entity.CategoryTrigger("Entertainment", "travel"), 1, true},
		{"category not listed", entity.CategoryTrigger("Gifts"), 1, false},
		{"frequency reached", entity.FrequencyTrigger(3), 3, true},
		{"frequency not reached", entity.FrequencyTrigger(3), 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, "r", tt.trigger, director, false)
			assert.Equal(t, tt.want, Matches(r, Input{Claim: claim, OpenClaims: tt.open, Now: now}))
		})
	}
}

func TestEvaluate_TimeoutScenario(t *testing.T) {
	rules := []entity.EscalationRule{mustRule(t, "stalled", entity.TimeoutTrigger(5*24*time.Hour), director, true)}
	claim := pendingFor(10)

	plan, ok := Evaluate(rules, Input{Claim: claim, OpenClaims: 1, Now: now})
	require.True(t, ok)
	assert.Equal(t, []string{"stalled"}, plan.RuleIDs)
	assert.Equal(t, "mgr-1", plan.PreviousApproverID)
	assert.Equal(t, "dir-1", plan.NewApproverID)
	assert.Equal(t, []string{"mgr-1"}, plan.Notify)

	fields := claim.Fields()
	plan.Apply(&fields, now)
	claim.Apply(fields)

	assert.Equal(t, 1, claim.Escalation.Level)
	assert.Equal(t, "dir-1", claim.Escalation.CurrentApproverID)
	require.NotNil(t, claim.Escalation.EscalatedAt)
	assert.True(t, claim.Escalation.EscalatedAt.Equal(now))

	// later sweeps never fire the same rule again
	for i := 1; i <= 5; i++ {
		_, ok := Evaluate(rules, Input{Claim: claim, OpenClaims: 1, Now: now.Add(time.Duration(i) * 24 * time.Hour)})
		assert.False(t, ok)
	}
	assert.Equal(t, 1, claim.Escalation.Level)
}

func TestEvaluate_MultipleRulesOneIncrement(t *testing.T) {
	rules := []entity.EscalationRule{
		mustRule(t, "big", entity.AmountTrigger(decimal.NewFromInt(500)), finance, false),
		mustRule(t, "stalled", entity.TimeoutTrigger(24*time.Hour), director, false),
		mustRule(t, "busy", entity.FrequencyTrigger(5), director, true),
	}
	claim := pendingFor(3)
	claim.Escalation.Level = 2

	plan, ok := Evaluate(rules, Input{Claim: claim, OpenClaims: 1, Now: now})
	require.True(t, ok)
	assert.Equal(t, []string{"big", "stalled"}, plan.RuleIDs)
	assert.Equal(t, "role:finance", plan.NewApproverID, "first firing rule picks the target")
	assert.Empty(t, plan.Notify)

	fields := claim.Fields()
	plan.Apply(&fields, now)
	assert.Equal(t, 3, fields.Escalation.Level)
	assert.Equal(t, []string{"big", "stalled"}, fields.Escalation.FiredRules)

	event := plan.Event(claim.ID, 2, now)
	assert.Equal(t, 2, event.FromLevel)
	assert.Equal(t, 3, event.ToLevel)

	claim.Apply(fields)
	plan, ok = Evaluate(rules, Input{Claim: claim, OpenClaims: 5, Now: now})
	require.True(t, ok, "a rule that had not fired yet may escalate again")
	assert.Equal(t, []string{"busy"}, plan.RuleIDs)
	assert.Equal(t, []string{"role:finance"}, plan.Notify)
}

func TestEvaluate_SkipsInactiveAndTerminal(t *testing.T) {
	rule := mustRule(t, "stalled", entity.TimeoutTrigger(time.Hour), director, false)
	inactive := rule
	inactive.Active = false

	_, ok := Evaluate([]entity.EscalationRule{inactive}, Input{Claim: pendingFor(10), Now: now})
	assert.False(t, ok)

	approved := pendingFor(10)
	approved.Status = entity.StatusApproved
	_, ok = Evaluate([]entity.EscalationRule{rule}, Input{Claim: approved, Now: now})
	assert.False(t, ok)

	waiting := pendingFor(10)
	waiting.Status = entity.StatusInfoRequested
	_, ok = Evaluate([]entity.EscalationRule{rule}, Input{Claim: waiting, Now: now})
	assert.True(t, ok, "info_requested claims are swept too")
}

func TestEvaluate_NoNotifyWithoutPreviousApprover(t *testing.T) {
	claim := pendingFor(10)
	claim.Escalation.CurrentApproverID = ""
	rules := []entity.EscalationRule{mustRule(t, "stalled", entity.TimeoutTrigger(time.Hour), director, true)}

	plan, ok := Evaluate(rules, Input{Claim: claim, Now: now})
	require.True(t, ok)
	assert.Empty(t, plan.Notify)
}
