package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/application/service"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/domain/event"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/memory"
	"github.com/garyjia/claim-review/internal/policy"
	"github.com/garyjia/claim-review/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Wednesday, mid-morning
var baseTime = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

// Mock implementations

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type sentNotification struct {
	userID    string
	eventType event.Type
	payload   map[string]interface{}
}

type mockNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	notify func(userID string, eventType event.Type) error
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, eventType event.Type, payload map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{userID: userID, eventType: eventType, payload: payload})
	if m.notify != nil {
		return m.notify(userID, eventType)
	}
	return nil
}

func (m *mockNotifier) to(userID string) []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []event.Type
	for _, n := range m.sent {
		if n.userID == userID {
			types = append(types, n.eventType)
		}
	}
	return types
}

// hookedClaimRepo lets tests interleave work with the repository calls of an operation
type hookedClaimRepo struct {
	*memory.ClaimRepository
	afterGet   func(id string)
	beforeSave func(id string)
	saveErr    error
}

func (r *hookedClaimRepo) GetClaim(ctx context.Context, id string) (*entity.Claim, error) {
	c, err := r.ClaimRepository.GetClaim(ctx, id)
	if err == nil && r.afterGet != nil {
		r.afterGet(id)
	}
	return c, err
}

func (r *hookedClaimRepo) SaveClaimTransition(ctx context.Context, id string, t port.ClaimTransition) (*entity.Claim, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	if r.beforeSave != nil {
		r.beforeSave(id)
	}
	return r.ClaimRepository.SaveClaimTransition(ctx, id, t)
}

type testEnv struct {
	engine   WorkflowEngine
	repo     *hookedClaimRepo
	rules    *memory.RuleRepository
	notifier *mockNotifier
	clock    *testClock
}

func newTestEnv(t *testing.T, cfg Config, approval []entity.ApprovalRule, escalation []entity.EscalationRule) *testEnv {
	t.Helper()

	clock := &testClock{now: baseTime}
	repo := &hookedClaimRepo{ClaimRepository: memory.NewClaimRepository()}
	rules := memory.NewRuleRepository(approval, escalation)
	notifier := &mockNotifier{}

	policyEngine := policy.NewEngine(policy.DefaultConfig())
	scorer := risk.NewScorer(risk.NewDetectors(risk.DefaultConfig()), policyEngine, zap.NewNop())
	assessor := service.NewScoringService(repo, scorer, service.WithScoringClock(clock.Now))

	engine := NewEngine(repo, rules, assessor, policyEngine,
		WithNotifier(notifier),
		WithClock(clock.Now),
		WithConfig(cfg),
		WithLogger(zap.NewNop()),
	)

	return &testEnv{engine: engine, repo: repo, rules: rules, notifier: notifier, clock: clock}
}

func approvalRule(t *testing.T, id string, max string, actions ...entity.ApprovalAction) entity.ApprovalRule {
	t.Helper()
	r, err := entity.NewApprovalRule(id, id, entity.ApprovalConditions{MaxAmount: decimal.RequireFromString(max)}, actions, true)
	require.NoError(t, err)
	return r
}

func timeoutRule(t *testing.T, id string, after time.Duration, target entity.EscalationTarget, notify bool) entity.EscalationRule {
	t.Helper()
	r, err := entity.NewEscalationRule(id, id, entity.TimeoutTrigger(after), target, notify, true)
	require.NoError(t, err)
	return r
}

func lowRiskInput() entity.NewClaimInput {
	return entity.NewClaimInput{
		EmployeeID:      "emp-1",
		Amount:          decimal.NewFromInt(120),
		Currency:        "usd",
		Category:        entity.CategoryFuel,
		Description:     "Diesel fill-up at depot, 45L",
		ExpenseDate:     baseTime.AddDate(0, 0, -1),
		ReceiptAttached: true,
	}
}

func suspiciousInput() entity.NewClaimInput {
	return entity.NewClaimInput{
		EmployeeID:  "emp-1",
		Amount:      decimal.NewFromInt(4950),
		Currency:    "USD",
		Category:    entity.CategoryEntertainment,
		Description: "stuff",
		ExpenseDate: baseTime.AddDate(0, 0, -1),
	}
}

func historyActions(c *entity.Claim) []string {
	actions := make([]string, 0, len(c.History))
	for _, h := range c.History {
		actions = append(actions, h.Action)
	}
	return actions
}

// Submission and auto-approval

func TestSubmitClaim_LowRiskIsAutoApproved(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "small", "500", entity.ApprovalActionAutoApprove)}, nil)

	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)

	assert.Equal(t, entity.StatusApproved, claim.Status)
	assert.Equal(t, entity.SystemActor, claim.ApprovedBy)
	require.NotNil(t, claim.ApprovedAt)
	assert.Equal(t, baseTime, *claim.ApprovedAt)
	require.NotNil(t, claim.FraudScore)
	assert.Equal(t, 0, *claim.FraudScore)
	assert.Equal(t, "USD", claim.Currency)
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionAutoApprove}, historyActions(claim))
	assert.Equal(t, []event.Type{event.TypeClaimApproved}, env.notifier.to("emp-1"))

	stored, err := env.engine.GetClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.Version, stored.Version)
	assert.Equal(t, entity.StatusApproved, stored.Status)
}

func TestSubmitClaim_SuspiciousClaimIsNotAutoApproved(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAssignee = "mgr-1"
	env := newTestEnv(t, cfg, []entity.ApprovalRule{approvalRule(t, "ceiling", "5000", entity.ApprovalActionAutoApprove)}, nil)

	claim, err := env.engine.SubmitClaim(context.Background(), suspiciousInput())
	require.NoError(t, err)

	assert.Equal(t, entity.StatusPending, claim.Status)
	assert.Empty(t, claim.ApprovedBy)
	assert.Nil(t, claim.ApprovedAt)
	require.NotNil(t, claim.FraudScore)
	assert.Equal(t, 100, *claim.FraudScore)
	assert.Contains(t, claim.FraudFlags, entity.AlertMissingReceipt)
	assert.Contains(t, claim.FraudFlags, entity.AlertHighRiskCategory)
	assert.Contains(t, claim.FraudFlags, entity.AlertVagueDescription)
	assert.Equal(t, []string{entity.ActionSubmit}, historyActions(claim))
	assert.Equal(t, []event.Type{event.TypeClaimSubmitted}, env.notifier.to("mgr-1"))
}

func TestSubmitClaim_InvestigateSuppressesAutoApproval(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "any", "10000", entity.ApprovalActionAutoApprove)}, nil)
	ctx := context.Background()

	// two earlier claims just under the ceiling make the third one threshold gaming
	for _, amount := range []int64{4800, 4900} {
		in := lowRiskInput()
		in.Amount = decimal.NewFromInt(amount)
		_, err := env.engine.SubmitClaim(ctx, in)
		require.NoError(t, err)
		env.clock.Set(env.clock.Now().Add(time.Hour))
	}

	in := lowRiskInput()
	in.Amount = decimal.NewFromInt(4950)
	claim, err := env.engine.SubmitClaim(ctx, in)
	require.NoError(t, err)

	assert.Contains(t, claim.FraudFlags, entity.AlertThresholdGaming)
	assert.Equal(t, entity.StatusPending, claim.Status)
}

func TestSubmitClaim_ThresholdGamingBelowInvestigateIsAutoApproved(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "ceiling", "5000", entity.ApprovalActionAutoApprove)}, nil)
	ctx := context.Background()

	descriptions := []string{"Flight to Denver client site", "Hotel block for offsite week"}
	for i, amount := range []int64{4850, 4750} {
		in := lowRiskInput()
		in.Category = entity.CategoryTravel
		in.Description = descriptions[i]
		in.Amount = decimal.NewFromInt(amount)
		_, err := env.engine.SubmitClaim(ctx, in)
		require.NoError(t, err)
		env.clock.Set(env.clock.Now().Add(time.Hour))
	}

	in := lowRiskInput()
	in.Category = entity.CategoryTravel
	in.Description = "Train tickets for the audit team"
	in.Amount = decimal.NewFromInt(4950)
	claim, err := env.engine.SubmitClaim(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, []string{entity.AlertHighValueAmount, entity.AlertThresholdGaming}, claim.FraudFlags)
	require.NotNil(t, claim.FraudScore)
	assert.Equal(t, 65, *claim.FraudScore)
	assert.Equal(t, entity.StatusApproved, claim.Status)
}

func TestSubmitClaim_AutoApprovalFailureKeepsStoredClaim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAssignee = "mgr-1"
	env := newTestEnv(t, cfg, []entity.ApprovalRule{approvalRule(t, "small", "500", entity.ApprovalActionAutoApprove)}, nil)
	env.repo.saveErr = errors.New("disk full")

	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, entity.StatusPending, claim.Status)
	assert.Empty(t, claim.ApprovedBy)
	assert.Equal(t, []event.Type{event.TypeClaimSubmitted}, env.notifier.to("mgr-1"))

	stored, err := env.engine.GetClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, claim.Version, stored.Version)
	assert.Equal(t, []string{entity.ActionSubmit}, historyActions(stored))
}

func TestSubmitClaim_Validation(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)

	tests := []struct {
		name   string
		mutate func(in *entity.NewClaimInput)
		field  string
	}{
		{"missing employee", func(in *entity.NewClaimInput) { in.EmployeeID = " " }, "employee_id"},
		{"zero amount", func(in *entity.NewClaimInput) { in.Amount = decimal.Zero }, "amount"},
		{"bad currency", func(in *entity.NewClaimInput) { in.Currency = "dollars" }, "currency"},
		{"missing category", func(in *entity.NewClaimInput) { in.Category = "" }, "category"},
		{"future expense", func(in *entity.NewClaimInput) { in.ExpenseDate = baseTime.Add(time.Hour) }, "expense_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := lowRiskInput()
			tt.mutate(&in)

			_, err := env.engine.SubmitClaim(context.Background(), in)
			require.ErrorIs(t, err, entity.ErrValidation)

			var verr *entity.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSubmitClaim_RulesUnavailableFallsBackToManualReview(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "small", "500", entity.ApprovalActionAutoApprove)}, nil)
	env.rules.SetError(errors.New("rules store offline"))

	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, claim.Status)
	assert.Equal(t, 1, claim.RequiredApprovals)
}

func TestSubmitClaim_FlagForReview(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{
		approvalRule(t, "watch", "500", entity.ApprovalActionAutoApprove, entity.ApprovalActionFlagForReview),
	}, nil)

	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)

	assert.Contains(t, claim.FraudFlags, entity.FlagFlaggedForReview)
	assert.Equal(t, entity.StatusApproved, claim.Status)
}

func TestSubmitClaim_NotificationFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "small", "500", entity.ApprovalActionAutoApprove)}, nil)
	env.notifier.notify = func(string, event.Type) error { return errors.New("smtp down") }

	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, claim.Status)
}

// Decisions

func submitPending(t *testing.T, env *testEnv) *entity.Claim {
	t.Helper()
	in := lowRiskInput()
	in.ReceiptAttached = false
	claim, err := env.engine.SubmitClaim(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, entity.StatusPending, claim.Status)
	return claim
}

func TestSubmitDecision_Approve(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	env.clock.Set(baseTime.Add(2 * time.Hour))
	updated, err := env.engine.SubmitDecision(context.Background(), claim.ID, DecisionApprove, "mgr-1", "")
	require.NoError(t, err)

	assert.Equal(t, entity.StatusApproved, updated.Status)
	assert.Equal(t, "mgr-1", updated.ApprovedBy)
	assert.Equal(t, baseTime.Add(2*time.Hour), *updated.ApprovedAt)
	assert.Equal(t, claim.Version+1, updated.Version)
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionApprove}, historyActions(updated))
	assert.Equal(t, []event.Type{event.TypeClaimApproved}, env.notifier.to("emp-1"))
}

func TestSubmitDecision_TerminalStateIsRefused(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)
	ctx := context.Background()

	rejected, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionReject, "mgr-1", "no receipt")
	require.NoError(t, err)

	for _, d := range []Decision{DecisionApprove, DecisionReject, DecisionRequestInfo} {
		t.Run(string(d), func(t *testing.T) {
			_, err := env.engine.SubmitDecision(ctx, claim.ID, d, "mgr-2", "again")
			require.ErrorIs(t, err, entity.ErrIllegalTransition)

			var ierr *entity.IllegalTransitionError
			require.True(t, errors.As(err, &ierr))
			assert.Equal(t, entity.ReasonTerminalState, ierr.Reason)

			stored, err := env.engine.GetClaim(ctx, claim.ID)
			require.NoError(t, err)
			assert.Equal(t, rejected.Version, stored.Version)
			assert.Equal(t, entity.StatusRejected, stored.Status)
		})
	}
}

func TestSubmitDecision_RejectRequiresComment(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	_, err := env.engine.SubmitDecision(context.Background(), claim.ID, DecisionReject, "mgr-1", "   ")
	require.ErrorIs(t, err, entity.ErrMissingComment)

	stored, err := env.engine.GetClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, claim.Version, stored.Version)
}

func TestSubmitDecision_SelfReviewIsRefused(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	for _, d := range []Decision{DecisionApprove, DecisionReject} {
		_, err := env.engine.SubmitDecision(context.Background(), claim.ID, d, "emp-1", "mine")
		var ierr *entity.IllegalTransitionError
		require.True(t, errors.As(err, &ierr), "decision %s", d)
		assert.Equal(t, entity.ReasonSelfReview, ierr.Reason)
	}
}

func TestSubmitDecision_InvalidInput(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	_, err := env.engine.SubmitDecision(context.Background(), claim.ID, Decision("escalate"), "mgr-1", "")
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.engine.SubmitDecision(context.Background(), claim.ID, DecisionApprove, "", "")
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.engine.SubmitDecision(context.Background(), "missing", DecisionApprove, "mgr-1", "")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSubmitDecision_Authorization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAssignee = "role:manager"
	cfg.Reviewers = map[string][]string{
		"mgr-1":   {"manager"},
		"clerk-1": {"clerk"},
		"root":    {"admin"},
	}
	env := newTestEnv(t, cfg, nil, nil)
	claim := submitPending(t, env)
	ctx := context.Background()

	for _, actor := range []string{"clerk-1", "stranger", entity.SystemActor} {
		_, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionApprove, actor, "")
		var ierr *entity.IllegalTransitionError
		require.True(t, errors.As(err, &ierr), "actor %s", actor)
		assert.Equal(t, entity.ReasonUnauthorized, ierr.Reason)
	}

	updated, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionRequestInfo, "mgr-1", "which vehicle?")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInfoRequested, updated.Status)

	other := submitPending(t, env)
	_, err = env.engine.SubmitDecision(ctx, other.ID, DecisionApprove, "root", "")
	assert.NoError(t, err, "admins may decide any claim")
}

func TestSubmitDecision_AdditionalApproval(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{
		approvalRule(t, "two-eyes", "500", entity.ApprovalActionRequireAdditionalApproval),
	}, nil)
	claim, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
	require.NoError(t, err)
	require.Equal(t, entity.StatusPending, claim.Status)
	require.Equal(t, 2, claim.RequiredApprovals)
	ctx := context.Background()

	partial, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionApprove, "mgr-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, partial.Status)
	assert.Equal(t, []string{"mgr-1"}, partial.Approvals)
	assert.Empty(t, partial.ApprovedBy)

	_, err = env.engine.SubmitDecision(ctx, claim.ID, DecisionApprove, "mgr-1", "ok again")
	var ierr *entity.IllegalTransitionError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, entity.ReasonDuplicateActor, ierr.Reason)

	final, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionApprove, "mgr-2", "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, final.Status)
	assert.Equal(t, "mgr-2", final.ApprovedBy)
	assert.Equal(t, []string{"mgr-1", "mgr-2"}, final.Approvals)
	assert.Equal(t,
		[]string{entity.ActionSubmit, entity.ActionApprovePartial, entity.ActionApprove},
		historyActions(final))
}

func TestSubmitDecision_RepositoryFailure(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)
	env.repo.saveErr = errors.New("disk full")

	_, err := env.engine.SubmitDecision(context.Background(), claim.ID, DecisionApprove, "mgr-1", "")
	require.ErrorIs(t, err, entity.ErrRepository)

	var rerr *entity.RepositoryError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "save claim transition", rerr.Op)
}

// Concurrency

func TestSubmitDecision_ConcurrentDecisionsExactlyOneStale(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	// both decisions read the claim before either writes
	var readers sync.WaitGroup
	readers.Add(2)
	env.repo.afterGet = func(string) {
		readers.Done()
		readers.Wait()
	}

	type outcome struct {
		claim *entity.Claim
		err   error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, d := range []struct {
		decision Decision
		actor    string
		comment  string
	}{
		{DecisionApprove, "mgr-1", ""},
		{DecisionReject, "mgr-2", "duplicate"},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := env.engine.SubmitDecision(context.Background(), claim.ID, d.decision, d.actor, d.comment)
			results <- outcome{c, err}
		}()
	}
	wg.Wait()
	close(results)
	env.repo.afterGet = nil

	var applied, stale int
	for r := range results {
		switch {
		case r.err == nil:
			applied++
		case errors.Is(r.err, entity.ErrStaleState):
			stale++
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, stale)

	stored, err := env.engine.GetClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.IsTerminal())
	assert.Len(t, stored.History, 2)
}

func TestRunEscalationSweep_RacingDecisionWins(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, []entity.EscalationRule{
		timeoutRule(t, "stalled", 5*24*time.Hour, entity.EscalationTarget{Kind: entity.TargetRole, Value: "finance"}, false),
	})
	claim := submitPending(t, env)
	ctx := context.Background()

	// the manual approval lands between the sweep's read and its write
	raced := false
	env.repo.beforeSave = func(id string) {
		if raced {
			return
		}
		raced = true
		_, err := env.engine.SubmitDecision(ctx, id, DecisionApprove, "mgr-1", "")
		require.NoError(t, err)
	}

	events, err := env.engine.RunEscalationSweep(ctx, baseTime.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Empty(t, events)

	stored, err := env.engine.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, stored.Status)
	assert.Equal(t, 0, stored.Escalation.Level)
}

func TestRetryOnStale(t *testing.T) {
	t.Run("retries once after a stale error", func(t *testing.T) {
		calls := 0
		got, err := RetryOnStale(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, &entity.StaleStateError{ClaimID: "c-1"}
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("surfaces a second stale error", func(t *testing.T) {
		calls := 0
		_, err := RetryOnStale(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			return 0, &entity.StaleStateError{ClaimID: "c-1"}
		})
		assert.ErrorIs(t, err, entity.ErrStaleState)
		assert.Equal(t, 2, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		_, err := RetryOnStale(context.Background(), func(ctx context.Context) (int, error) {
			calls++
			return 0, &entity.MissingCommentError{ClaimID: "c-1"}
		})
		assert.ErrorIs(t, err, entity.ErrMissingComment)
		assert.Equal(t, 1, calls)
	})
}

// Info requests and resubmission

func TestResubmit_RescoresAndReturnsToPending(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)
	ctx := context.Background()
	require.Contains(t, claim.FraudFlags, entity.AlertMissingReceipt)

	_, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionRequestInfo, "mgr-1", "attach the receipt")
	require.NoError(t, err)

	_, err = env.engine.Resubmit(ctx, claim.ID, "emp-2", entity.Amendment{})
	var ierr *entity.IllegalTransitionError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, entity.ReasonNotSubmitter, ierr.Reason)

	attached := true
	updated, err := env.engine.Resubmit(ctx, claim.ID, "emp-1", entity.Amendment{ReceiptAttached: &attached, Comment: "attached"})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusPending, updated.Status)
	assert.True(t, updated.ReceiptAttached)
	assert.NotContains(t, updated.FraudFlags, entity.AlertMissingReceipt)
	assert.Equal(t, 0, *updated.FraudScore)
	assert.Equal(t,
		[]string{entity.ActionSubmit, entity.ActionRequestInfo, entity.ActionResubmit},
		historyActions(updated))
	assert.Equal(t, "attached", updated.History[2].Comment)
}

func TestResubmit_CanAutoApproveOnReentry(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), []entity.ApprovalRule{approvalRule(t, "small", "500", entity.ApprovalActionAutoApprove)}, nil)
	claim := submitPending(t, env)
	ctx := context.Background()

	_, err := env.engine.SubmitDecision(ctx, claim.ID, DecisionRequestInfo, "mgr-1", "receipt?")
	require.NoError(t, err)

	attached := true
	updated, err := env.engine.Resubmit(ctx, claim.ID, "emp-1", entity.Amendment{ReceiptAttached: &attached})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, updated.Status)
	assert.Equal(t, entity.SystemActor, updated.ApprovedBy)
}

func TestResubmit_OnlyFromInfoRequested(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)

	_, err := env.engine.Resubmit(context.Background(), claim.ID, "emp-1", entity.Amendment{})
	var ierr *entity.IllegalTransitionError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, entity.ReasonNotPermitted, ierr.Reason)

	negative := decimal.NewFromInt(-5)
	_, err = env.engine.Resubmit(context.Background(), claim.ID, "emp-1", entity.Amendment{Amount: &negative})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

// Escalation

func TestRunEscalationSweep_LevelIsMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAssignee = "mgr-1"
	env := newTestEnv(t, cfg, nil, []entity.EscalationRule{
		timeoutRule(t, "stalled", 5*24*time.Hour, entity.EscalationTarget{Kind: entity.TargetRole, Value: "finance"}, true),
		timeoutRule(t, "very-stalled", 7*24*time.Hour, entity.EscalationTarget{Kind: entity.TargetApprover, Value: "cfo"}, false),
	})
	claim := submitPending(t, env)
	ctx := context.Background()

	sweepAt := baseTime.AddDate(0, 0, 10)
	events, err := env.engine.RunEscalationSweep(ctx, sweepAt)
	require.NoError(t, err)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, claim.ID, evt.ClaimID)
	assert.Equal(t, []string{"stalled", "very-stalled"}, evt.RuleIDs)
	assert.Equal(t, 0, evt.FromLevel)
	assert.Equal(t, 1, evt.ToLevel)
	assert.Equal(t, "mgr-1", evt.PreviousApproverID)
	assert.Equal(t, "role:finance", evt.NewApproverID)
	assert.Equal(t, []string{"mgr-1"}, evt.Notified)

	for i := 1; i <= 5; i++ {
		events, err := env.engine.RunEscalationSweep(ctx, sweepAt.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, events)
	}

	stored, err := env.engine.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Escalation.Level)
	assert.Equal(t, "role:finance", stored.Escalation.CurrentApproverID)
	assert.Equal(t, sweepAt, *stored.Escalation.EscalatedAt)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, entity.ActionEscalate, stored.History[len(stored.History)-1].Action)

	assert.Contains(t, env.notifier.to("role:finance"), event.TypeClaimAssigned)
	assert.Contains(t, env.notifier.to("mgr-1"), event.TypeClaimEscalated)
}

func TestRunEscalationSweep_NotYetDue(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, []entity.EscalationRule{
		timeoutRule(t, "stalled", 5*24*time.Hour, entity.EscalationTarget{Kind: entity.TargetRole, Value: "finance"}, false),
	})
	submitPending(t, env)

	events, err := env.engine.RunEscalationSweep(context.Background(), baseTime.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, events, "exactly at the threshold does not fire")
}

func TestRunEscalationSweep_FrequencyRule(t *testing.T) {
	rule, err := entity.NewEscalationRule("busy", "busy", entity.FrequencyTrigger(2),
		entity.EscalationTarget{Kind: entity.TargetApprover, Value: "auditor"}, false, true)
	require.NoError(t, err)
	env := newTestEnv(t, DefaultConfig(), nil, []entity.EscalationRule{rule})

	first := submitPending(t, env)
	events, err := env.engine.RunEscalationSweep(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Empty(t, events)

	second := submitPending(t, env)
	events, err = env.engine.RunEscalationSweep(context.Background(), baseTime)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{events[0].ClaimID, events[1].ClaimID})
}

func TestRunEscalationSweep_RulesUnavailable(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	env.rules.SetError(errors.New("rules store offline"))

	_, err := env.engine.RunEscalationSweep(context.Background(), baseTime)
	assert.ErrorIs(t, err, entity.ErrRepository)
}

// Auto-reject

func TestRunAutoRejectSweep(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		env := newTestEnv(t, DefaultConfig(), nil, nil)
		submitPending(t, env)

		rejected, err := env.engine.RunAutoRejectSweep(context.Background(), baseTime.AddDate(0, 0, 10))
		require.NoError(t, err)
		assert.Empty(t, rejected)
	})

	t.Run("rejects after the grace period", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AutoReject.Enabled = true
		env := newTestEnv(t, cfg, nil, nil)
		claim := submitPending(t, env)
		ok, err := env.engine.SubmitClaim(context.Background(), lowRiskInput())
		require.NoError(t, err)

		rejected, err := env.engine.RunAutoRejectSweep(context.Background(), baseTime.Add(47*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, rejected, "still inside the grace period")

		rejected, err = env.engine.RunAutoRejectSweep(context.Background(), baseTime.Add(49*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{claim.ID}, rejected)

		stored, err := env.engine.GetClaim(context.Background(), claim.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusRejected, stored.Status)
		assert.Equal(t, entity.SystemActor, stored.ApprovedBy)
		assert.Equal(t, entity.ActionAutoReject, stored.History[len(stored.History)-1].Action)

		untouched, err := env.engine.GetClaim(context.Background(), ok.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPending, untouched.Status)
	})

	t.Run("partial approvals are left to reviewers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AutoReject.Enabled = true
		env := newTestEnv(t, cfg, []entity.ApprovalRule{
			approvalRule(t, "two-eyes", "500", entity.ApprovalActionRequireAdditionalApproval),
		}, nil)
		claim := submitPending(t, env)
		_, err := env.engine.SubmitDecision(context.Background(), claim.ID, DecisionApprove, "mgr-1", "")
		require.NoError(t, err)

		rejected, err := env.engine.RunAutoRejectSweep(context.Background(), baseTime.AddDate(0, 0, 5))
		require.NoError(t, err)
		assert.Empty(t, rejected)
	})
}

// Rescoring

func TestRescore(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	claim := submitPending(t, env)
	ctx := context.Background()

	env.clock.Set(baseTime.Add(time.Hour))
	updated, err := env.engine.Rescore(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, updated.Status)
	assert.Equal(t, claim.Version+1, updated.Version)
	assert.Equal(t, *claim.FraudScore, *updated.FraudScore)
	assert.Equal(t, baseTime.Add(time.Hour), *updated.ScoredAt)
	assert.Equal(t, entity.ActionRescore, updated.History[len(updated.History)-1].Action)

	_, err = env.engine.SubmitDecision(ctx, claim.ID, DecisionReject, "mgr-1", "no receipt")
	require.NoError(t, err)

	_, err = env.engine.Rescore(ctx, claim.ID)
	var ierr *entity.IllegalTransitionError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, entity.ReasonTerminalState, ierr.Reason)
}

func TestRescoreClaims(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(), nil, nil)
	ids := []string{submitPending(t, env).ID, "missing", submitPending(t, env).ID}

	results := env.engine.RescoreClaims(context.Background(), ids)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, ids[i], r.ClaimID)
	}
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Claim)
	assert.ErrorIs(t, results[1].Err, entity.ErrNotFound)
	assert.NoError(t, results[2].Err)
}
