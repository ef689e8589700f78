package workflow

import (
	"context"

	"github.com/garyjia/claim-review/internal/domain/entity"
	domainwf "github.com/garyjia/claim-review/internal/domain/workflow"
	"golang.org/x/sync/errgroup"
)

// Rescore recomputes the fraud score of an open claim. The score is replaced, never adjusted.
func (e *engineImpl) Rescore(ctx context.Context, claimID string) (updated *entity.Claim, err error) {
	ctx, span := startSpan(ctx, "Rescore", claimID)
	defer func() { endSpan(span, err) }()

	claim, err := e.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := e.permit(claim, domainwf.TriggerRescore, entity.ActionRescore, entity.SystemActor); err != nil {
		return nil, err
	}

	snapshot, err := e.assessor.Assess(ctx, claim)
	if err != nil {
		return nil, err
	}

	return e.transition(ctx, step{
		claim:   claim,
		trigger: domainwf.TriggerRescore,
		action:  entity.ActionRescore,
		actor:   entity.SystemActor,
		at:      e.now(),
		mutate: func(f *entity.ClaimFields) {
			flagged := claim.HasFlag(entity.FlagFlaggedForReview)
			applySnapshot(f, snapshot)
			if flagged {
				f.FraudFlags = append(f.FraudFlags, entity.FlagFlaggedForReview)
			}
		},
	})
}

// RescoreClaims rescores claims in parallel with bounded concurrency. A stale write is
// retried once; other failures are reported per claim.
func (e *engineImpl) RescoreClaims(ctx context.Context, claimIDs []string) []RescoreResult {
	results := make([]RescoreResult, len(claimIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.RescoreConcurrency)

	for i, id := range claimIDs {
		results[i].ClaimID = id
		g.Go(func() error {
			claim, err := RetryOnStale(gctx, func(ctx context.Context) (*entity.Claim, error) {
				return e.Rescore(ctx, id)
			})
			results[i].Claim = claim
			results[i].Err = err
			return nil
		})
	}

	_ = g.Wait()
	return results
}
