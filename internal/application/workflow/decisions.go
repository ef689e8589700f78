package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/domain/event"
	domainwf "github.com/garyjia/claim-review/internal/domain/workflow"
	"github.com/garyjia/claim-review/internal/metrics"
	"github.com/garyjia/claim-review/internal/policy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitClaim validates, scores and stores a new claim
func (e *engineImpl) SubmitClaim(ctx context.Context, in entity.NewClaimInput) (claim *entity.Claim, err error) {
	ctx, span := startSpan(ctx, "SubmitClaim", "")
	defer func() { endSpan(span, err) }()

	now := e.now()
	if err := in.Validate(now); err != nil {
		return nil, err
	}

	claim = &entity.Claim{
		ID:                uuid.NewString(),
		EmployeeID:        strings.TrimSpace(in.EmployeeID),
		Amount:            in.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(in.Currency)),
		Category:          strings.TrimSpace(in.Category),
		Description:       in.Description,
		ExpenseDate:       in.ExpenseDate,
		SubmittedAt:       now,
		ReceiptAttached:   in.ReceiptAttached,
		Status:            entity.StatusPending,
		StatusChangedAt:   now,
		RequiredApprovals: 1,
		Escalation:        entity.EscalationState{CurrentApproverID: e.cfg.InitialAssignee},
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	snapshot, err := e.assessor.Assess(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("failed to score claim: %w", err)
	}
	fields := claim.Fields()
	applySnapshot(&fields, snapshot)
	approval := e.decideApproval(ctx, claim, snapshot)
	applyApproval(&fields, approval)
	claim.Apply(fields)

	entry := entity.NewHistoryEntry(claim.ID, entity.ActionSubmit, claim.EmployeeID, "", entity.StatusPending, "", now)
	if err := e.claims.Create(ctx, claim, entry); err != nil {
		e.logger.Error("Failed to create claim", zap.String("claim_id", claim.ID), zap.Error(err))
		return nil, entity.NewRepositoryError("create claim", err)
	}
	claim.History = append(claim.History, *entry)
	metrics.Transitions.WithLabelValues(entity.ActionSubmit).Inc()

	e.logger.Info("Claim submitted",
		zap.String("claim_id", claim.ID),
		zap.String("employee_id", claim.EmployeeID),
		zap.Int("fraud_score", snapshot.Score),
		zap.String("risk_level", string(snapshot.Criteria.RiskLevel)),
		zap.String("suggested_action", string(snapshot.Criteria.SuggestedAction)))

	return e.afterScoring(ctx, claim, snapshot, approval, event.TypeClaimSubmitted), nil
}

// afterScoring notifies and, when a rule allows it, auto-approves a freshly (re)scored pending claim.
// The claim is already persisted, so a failed auto-approval leaves it pending for a reviewer.
func (e *engineImpl) afterScoring(ctx context.Context, claim *entity.Claim, snapshot *entity.ReviewSnapshot, approval policy.ApprovalDecision, eventType event.Type) *entity.Claim {
	if approval.Flag {
		e.notify(ctx, claim.Escalation.CurrentApproverID, event.TypeClaimFlagged, claim, map[string]interface{}{
			event.KeyRuleIDs: []string{approval.Rule.ID},
		})
	}

	if approval.AutoApprove {
		approved, err := e.autoApprove(ctx, claim, approval)
		if err == nil {
			e.notify(ctx, approved.EmployeeID, event.TypeClaimApproved, approved, map[string]interface{}{
				event.KeyActor: entity.SystemActor,
			})
			return approved
		}
		e.logger.Warn("Auto-approval failed, claim left for manual review",
			zap.String("claim_id", claim.ID),
			zap.String("rule_id", approval.Rule.ID),
			zap.Error(err))
	}

	e.notify(ctx, claim.Escalation.CurrentApproverID, eventType, claim, map[string]interface{}{
		event.KeySuggestAction: string(snapshot.Criteria.SuggestedAction),
	})
	return claim
}

func (e *engineImpl) autoApprove(ctx context.Context, claim *entity.Claim, approval policy.ApprovalDecision) (*entity.Claim, error) {
	at := e.now()
	return e.transition(ctx, step{
		claim:   claim,
		trigger: domainwf.TriggerAutoApprove,
		action:  entity.ActionAutoApprove,
		actor:   entity.SystemActor,
		comment: fmt.Sprintf("auto-approved by rule %s", approval.Rule.ID),
		at:      at,
		mutate: func(f *entity.ClaimFields) {
			f.ApprovedBy = entity.SystemActor
			f.ApprovedAt = &at
		},
	})
}

// decideApproval evaluates approval rules. Rules that cannot be loaded mean manual review.
func (e *engineImpl) decideApproval(ctx context.Context, claim *entity.Claim, snapshot *entity.ReviewSnapshot) policy.ApprovalDecision {
	rules, err := e.rules.GetActiveApprovalRules(ctx)
	if err != nil {
		e.logger.Warn("Failed to load approval rules, falling back to manual review",
			zap.String("claim_id", claim.ID),
			zap.Error(err))
		return policy.ApprovalDecision{RequiredApprovals: 1}
	}

	decision := policy.DecideApproval(rules, claim, snapshot.Criteria)
	if decision.Suppressed {
		metrics.AutoApprovalsSuppressed.Inc()
		e.logger.Info("Auto-approval suppressed by risk policy",
			zap.String("claim_id", claim.ID),
			zap.String("rule_id", decision.Rule.ID),
			zap.String("suggested_action", string(snapshot.Criteria.SuggestedAction)))
	}
	return decision
}

func applySnapshot(f *entity.ClaimFields, s *entity.ReviewSnapshot) {
	score := s.Score
	scoredAt := s.ScoredAt
	f.FraudScore = &score
	f.FraudFlags = entity.AlertCodes(s.Alerts)
	f.ScoredAt = &scoredAt
}

func applyApproval(f *entity.ClaimFields, d policy.ApprovalDecision) {
	f.RequiredApprovals = d.RequiredApprovals
	if d.Flag {
		f.FraudFlags = append(f.FraudFlags, entity.FlagFlaggedForReview)
	}
}

// SubmitDecision applies a reviewer decision to a claim
func (e *engineImpl) SubmitDecision(ctx context.Context, claimID string, decision Decision, actorID, comment string) (updated *entity.Claim, err error) {
	ctx, span := startSpan(ctx, "SubmitDecision", claimID)
	defer func() { endSpan(span, err) }()

	if !decision.IsValid() {
		return nil, entity.NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision))
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, entity.NewValidationError("actor_id", "is required")
	}

	claim, err := e.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if claim.Status.IsTerminal() {
		return nil, e.refuse(claim, string(decision), actorID, entity.ReasonTerminalState)
	}
	comment = strings.TrimSpace(comment)
	if decision == DecisionReject && comment == "" {
		metrics.TransitionErrors.WithLabelValues("missing_comment").Inc()
		return nil, &entity.MissingCommentError{ClaimID: claim.ID, Decision: string(decision)}
	}
	if actorID == claim.EmployeeID {
		return nil, e.refuse(claim, string(decision), actorID, entity.ReasonSelfReview)
	}
	if !e.authz.CanReview(actorID, claim) {
		return nil, e.refuse(claim, string(decision), actorID, entity.ReasonUnauthorized)
	}

	at := e.now()
	s := step{claim: claim, actor: actorID, comment: comment, at: at}
	var eventType event.Type

	switch decision {
	case DecisionApprove:
		if claim.HasApprovalFrom(actorID) {
			return nil, e.refuse(claim, string(decision), actorID, entity.ReasonDuplicateActor)
		}
		ctx = domainwf.WithApprovalProgress(ctx, domainwf.ApprovalProgress{
			Given:  len(claim.Approvals) + 1,
			Needed: claim.NeededApprovals(),
		})
		s.trigger = domainwf.TriggerApprove
		if approvesPartially(ctx, claim) {
			s.action, eventType = entity.ActionApprovePartial, event.TypeClaimPartial
			s.mutate = func(f *entity.ClaimFields) {
				f.Approvals = append(f.Approvals, actorID)
			}
		} else {
			s.action, eventType = entity.ActionApprove, event.TypeClaimApproved
			s.mutate = func(f *entity.ClaimFields) {
				f.Approvals = append(f.Approvals, actorID)
				f.ApprovedBy = actorID
				f.ApprovedAt = &at
			}
		}
	case DecisionReject:
		s.trigger, s.action, eventType = domainwf.TriggerReject, entity.ActionReject, event.TypeClaimRejected
		s.mutate = func(f *entity.ClaimFields) {
			f.ApprovedBy = actorID
			f.ApprovedAt = &at
		}
	case DecisionRequestInfo:
		s.trigger, s.action, eventType = domainwf.TriggerRequestInfo, entity.ActionRequestInfo, event.TypeClaimInfoRequested
	}

	updated, err = e.transition(ctx, s)
	if err != nil {
		return nil, err
	}

	e.notify(ctx, updated.EmployeeID, eventType, updated, map[string]interface{}{
		event.KeyActor:   actorID,
		event.KeyComment: comment,
	})
	return updated, nil
}

// approvesPartially reports whether an approve decision leaves the claim pending for another approver
func approvesPartially(ctx context.Context, claim *entity.Claim) bool {
	machine, err := domainwf.NewClaimStateMachine(domainwf.State(claim.Status))
	if err != nil {
		return false
	}
	next, err := machine.Peek(ctx, domainwf.TriggerApprove)
	return err == nil && next == domainwf.StatePending
}

// Resubmit answers an info request and returns the claim to pending, rescoring it
func (e *engineImpl) Resubmit(ctx context.Context, claimID, employeeID string, amendment entity.Amendment) (updated *entity.Claim, err error) {
	ctx, span := startSpan(ctx, "Resubmit", claimID)
	defer func() { endSpan(span, err) }()

	if err := amendment.Validate(); err != nil {
		return nil, err
	}

	claim, err := e.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status.IsTerminal() {
		return nil, e.refuse(claim, entity.ActionResubmit, employeeID, entity.ReasonTerminalState)
	}
	if strings.TrimSpace(employeeID) != claim.EmployeeID {
		return nil, e.refuse(claim, entity.ActionResubmit, employeeID, entity.ReasonNotSubmitter)
	}
	if err := e.permit(claim, domainwf.TriggerResubmit, entity.ActionResubmit, claim.EmployeeID); err != nil {
		return nil, err
	}

	// score the amended claim before writing so the write carries the new score
	amended := claim.Clone()
	fields := amended.Fields()
	amendment.ApplyTo(&fields)
	amended.Apply(fields)

	snapshot, err := e.assessor.Assess(ctx, amended)
	if err != nil {
		return nil, fmt.Errorf("failed to score claim: %w", err)
	}
	approval := e.decideApproval(ctx, amended, snapshot)

	updated, err = e.transition(ctx, step{
		claim:   claim,
		trigger: domainwf.TriggerResubmit,
		action:  entity.ActionResubmit,
		actor:   claim.EmployeeID,
		comment: strings.TrimSpace(amendment.Comment),
		at:      e.now(),
		mutate: func(f *entity.ClaimFields) {
			amendment.ApplyTo(f)
			applySnapshot(f, snapshot)
			applyApproval(f, approval)
			f.Approvals = nil
		},
	})
	if err != nil {
		return nil, err
	}

	return e.afterScoring(ctx, updated, snapshot, approval, event.TypeClaimResubmitted), nil
}
