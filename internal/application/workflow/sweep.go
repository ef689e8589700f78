package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/domain/event"
	domainwf "github.com/garyjia/claim-review/internal/domain/workflow"
	"github.com/garyjia/claim-review/internal/escalation"
	"github.com/garyjia/claim-review/internal/metrics"
	"go.uber.org/zap"
)

// RunEscalationSweep evaluates the active escalation rules against every open claim.
// Each claim is re-read right before its conditioned write, so a concurrent manual
// decision makes exactly one of the two writes fail as stale.
func (e *engineImpl) RunEscalationSweep(ctx context.Context, now time.Time) (events []entity.EscalationEvent, err error) {
	ctx, span := startSpan(ctx, "RunEscalationSweep", "")
	defer func() { endSpan(span, err) }()
	started := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("escalation").Observe(float64(time.Since(started).Milliseconds()))
	}()

	rules, err := e.rules.GetActiveEscalationRules(ctx)
	if err != nil {
		return nil, entity.NewRepositoryError("get escalation rules", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	open, err := e.claims.ListOpenClaims(ctx, e.cfg.SweepBatchSize)
	if err != nil {
		return nil, entity.NewRepositoryError("list open claims", err)
	}

	needCounts := false
	for _, r := range rules {
		if r.Active && r.Trigger.Kind == entity.TriggerFrequency {
			needCounts = true
		}
	}
	counts := make(map[string]int)

	var errs []error
	for _, listed := range open {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		claim, err := e.claims.GetClaim(ctx, listed.ID)
		if err != nil {
			errs = append(errs, entity.NewRepositoryError("get claim", err))
			continue
		}

		openCount := 0
		if needCounts {
			n, ok := counts[claim.EmployeeID]
			if !ok {
				n, err = e.claims.CountOpenClaims(ctx, claim.EmployeeID)
				if err != nil {
					errs = append(errs, entity.NewRepositoryError("count open claims", err))
					continue
				}
				counts[claim.EmployeeID] = n
			}
			openCount = n
		}

		plan, ok := escalation.Evaluate(rules, escalation.Input{Claim: claim, OpenClaims: openCount, Now: now})
		if !ok {
			continue
		}

		fromLevel := claim.Escalation.Level
		updated, err := e.transition(ctx, step{
			claim:   claim,
			trigger: domainwf.TriggerEscalate,
			action:  entity.ActionEscalate,
			actor:   entity.SystemActor,
			comment: "escalated by " + strings.Join(plan.RuleIDs, ", "),
			at:      now,
			mutate: func(f *entity.ClaimFields) {
				plan.Apply(f, now)
			},
		})
		if err != nil {
			if errors.Is(err, entity.ErrStaleState) {
				e.logger.Info("Claim changed during escalation sweep, skipped",
					zap.String("claim_id", claim.ID))
				continue
			}
			errs = append(errs, err)
			continue
		}

		evt := plan.Event(updated.ID, fromLevel, now)
		events = append(events, evt)
		metrics.Escalations.WithLabelValues(plan.RuleIDs[0]).Inc()

		extra := map[string]interface{}{
			event.KeyLevel:       updated.Escalation.Level,
			event.KeyNewApprover: plan.NewApproverID,
			event.KeyRuleIDs:     plan.RuleIDs,
		}
		e.notify(ctx, plan.NewApproverID, event.TypeClaimAssigned, updated, extra)
		for _, userID := range plan.Notify {
			e.notify(ctx, userID, event.TypeClaimEscalated, updated, extra)
		}
	}

	e.logger.Info("Escalation sweep finished",
		zap.Int("open_claims", len(open)),
		zap.Int("escalated", len(events)),
		zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return events, fmt.Errorf("escalation sweep: %w", errors.Join(errs...))
	}
	return events, nil
}

// RunAutoRejectSweep rejects pending claims whose current score suggests rejection and
// whose scoring is older than the grace period. Claims with a partial approval are left
// to the reviewers.
func (e *engineImpl) RunAutoRejectSweep(ctx context.Context, now time.Time) (rejected []string, err error) {
	if !e.cfg.AutoReject.Enabled {
		return nil, nil
	}

	ctx, span := startSpan(ctx, "RunAutoRejectSweep", "")
	defer func() { endSpan(span, err) }()
	started := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("auto_reject").Observe(float64(time.Since(started).Milliseconds()))
	}()

	open, err := e.claims.ListOpenClaims(ctx, e.cfg.SweepBatchSize)
	if err != nil {
		return nil, entity.NewRepositoryError("list open claims", err)
	}

	var errs []error
	for _, listed := range open {
		if listed.Status != entity.StatusPending {
			continue
		}

		claim, err := e.claims.GetClaim(ctx, listed.ID)
		if err != nil {
			errs = append(errs, entity.NewRepositoryError("get claim", err))
			continue
		}
		if !e.dueForAutoReject(claim, now) {
			continue
		}

		codes := claim.FraudFlags
		updated, err := e.transition(ctx, step{
			claim:   claim,
			trigger: domainwf.TriggerAutoReject,
			action:  entity.ActionAutoReject,
			actor:   entity.SystemActor,
			comment: "auto-rejected: " + strings.Join(codes, ", "),
			at:      now,
			mutate: func(f *entity.ClaimFields) {
				at := now
				f.ApprovedBy = entity.SystemActor
				f.ApprovedAt = &at
			},
		})
		if err != nil {
			if !errors.Is(err, entity.ErrStaleState) {
				errs = append(errs, err)
			}
			continue
		}

		rejected = append(rejected, updated.ID)
		e.notify(ctx, updated.EmployeeID, event.TypeClaimRejected, updated, map[string]interface{}{
			event.KeyActor: entity.SystemActor,
		})
	}

	if len(errs) > 0 {
		return rejected, fmt.Errorf("auto-reject sweep: %w", errors.Join(errs...))
	}
	return rejected, nil
}

func (e *engineImpl) dueForAutoReject(claim *entity.Claim, now time.Time) bool {
	if claim.Status != entity.StatusPending || claim.FraudScore == nil || claim.ScoredAt == nil {
		return false
	}
	if len(claim.Approvals) > 0 {
		return false
	}
	if now.Sub(*claim.ScoredAt) < e.cfg.AutoReject.GracePeriod {
		return false
	}
	criteria := e.policy.EvaluateFlags(*claim.FraudScore, claim.FraudFlags)
	return criteria.SuggestedAction == entity.SuggestReject
}
