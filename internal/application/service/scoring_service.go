package service

import (
	"context"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/metrics"
	"github.com/garyjia/claim-review/internal/risk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("claim-review/service")

// HistoryConfig bounds the historical window loaded for scoring
type HistoryConfig struct {
	Window time.Duration
	Limit  int
}

// DefaultHistoryConfig returns a 90 day window capped at 200 claims
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{Window: 90 * 24 * time.Hour, Limit: 200}
}

// ScoringService scores claims against the employee's recent history
type ScoringService interface {
	// Assess loads the employee's history and scores the claim. It only fails when ctx is done.
	Assess(ctx context.Context, claim *entity.Claim) (*entity.ReviewSnapshot, error)
	// ScoreClaim scores a claim against the given history without any I/O
	ScoreClaim(claim *entity.Claim, history []entity.Claim) (int, []entity.Alert, entity.ReviewCriteria)
	// GetReview returns the review snapshot of a stored claim, from cache when possible
	GetReview(ctx context.Context, claimID string) (*entity.ReviewSnapshot, error)
}

type scoringServiceImpl struct {
	claims  port.ClaimRepository
	scorer  *risk.Scorer
	cache   port.ReviewCache
	history HistoryConfig
	logger  Logger
	now     func() time.Time
}

// ScoringOption configures the scoring service
type ScoringOption func(*scoringServiceImpl)

// WithReviewCache enables the display cache
func WithReviewCache(c port.ReviewCache) ScoringOption {
	return func(s *scoringServiceImpl) { s.cache = c }
}

// WithHistory overrides the history window
func WithHistory(h HistoryConfig) ScoringOption {
	return func(s *scoringServiceImpl) { s.history = h }
}

// WithScoringLogger sets the logger
func WithScoringLogger(l Logger) ScoringOption {
	return func(s *scoringServiceImpl) { s.logger = l }
}

// WithScoringClock overrides the time stamped on snapshots
func WithScoringClock(now func() time.Time) ScoringOption {
	return func(s *scoringServiceImpl) { s.now = now }
}

// NewScoringService creates a new ScoringService
func NewScoringService(claims port.ClaimRepository, scorer *risk.Scorer, opts ...ScoringOption) ScoringService {
	s := &scoringServiceImpl{
		claims:  claims,
		scorer:  scorer,
		history: DefaultHistoryConfig(),
		logger:  NewZapLogger(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess loads the history window and scores the claim. A history that cannot be
// loaded is logged and the history-based checks are skipped.
func (s *scoringServiceImpl) Assess(ctx context.Context, claim *entity.Claim) (*entity.ReviewSnapshot, error) {
	ctx, span := tracer.Start(ctx, "scoring.Assess", trace.WithAttributes(
		attribute.String("claim.id", claim.ID),
		attribute.String("employee.id", claim.EmployeeID),
	))
	defer span.End()

	start := time.Now()

	history, err := s.claims.GetHistoricalClaims(ctx, claim.EmployeeID, s.window(claim))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("Failed to load claim history, scoring without it",
			"claim_id", claim.ID, "employee_id", claim.EmployeeID, "error", err)
		history = nil
	} else if history == nil {
		history = []entity.Claim{}
	}

	score, alerts, criteria := s.ScoreClaim(claim, history)
	snapshot := &entity.ReviewSnapshot{
		ClaimID:  claim.ID,
		Score:    score,
		Alerts:   alerts,
		Criteria: criteria,
		ScoredAt: s.now(),
	}

	metrics.ScoringDuration.Observe(float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("claim.fraud_score", score),
		attribute.String("claim.risk_level", string(criteria.RiskLevel)),
	)

	s.store(ctx, snapshot)
	return snapshot, nil
}

// ScoreClaim is the pure scoring entrypoint
func (s *scoringServiceImpl) ScoreClaim(claim *entity.Claim, history []entity.Claim) (int, []entity.Alert, entity.ReviewCriteria) {
	score, alerts, criteria := s.scorer.ScoreClaim(claim, history)

	metrics.ClaimsScored.WithLabelValues(string(criteria.RiskLevel)).Inc()
	metrics.ScoreDistribution.Observe(float64(score))
	for _, a := range alerts {
		metrics.AlertsRaised.WithLabelValues(a.Detector, a.Code).Inc()
	}
	return score, alerts, criteria
}

// GetReview serves the cached snapshot when present. Open claims are rescored on a
// miss; decided claims are described from their stored score and never rescored.
func (s *scoringServiceImpl) GetReview(ctx context.Context, claimID string) (*entity.ReviewSnapshot, error) {
	if s.cache != nil {
		snapshot, ok, err := s.cache.Get(ctx, claimID)
		switch {
		case err != nil:
			metrics.ReviewCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("Review cache lookup failed", "claim_id", claimID, "error", err)
		case ok:
			metrics.ReviewCacheLookups.WithLabelValues("hit").Inc()
			return snapshot, nil
		default:
			metrics.ReviewCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	claim, err := s.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, entity.NewRepositoryError("get claim", err)
	}

	if claim.Status.IsTerminal() && claim.FraudScore != nil {
		snapshot := s.storedSnapshot(claim)
		s.store(ctx, snapshot)
		return snapshot, nil
	}

	return s.Assess(ctx, claim)
}

func (s *scoringServiceImpl) storedSnapshot(claim *entity.Claim) *entity.ReviewSnapshot {
	alerts := make([]entity.Alert, 0, len(claim.FraudFlags))
	for _, code := range claim.FraudFlags {
		alerts = append(alerts, entity.Alert{Code: code})
	}
	scoredAt := claim.UpdatedAt
	if claim.ScoredAt != nil {
		scoredAt = *claim.ScoredAt
	}
	return &entity.ReviewSnapshot{
		ClaimID:  claim.ID,
		Score:    *claim.FraudScore,
		Alerts:   alerts,
		Criteria: s.scorer.Policy().EvaluateFlags(*claim.FraudScore, claim.FraudFlags),
		ScoredAt: scoredAt,
	}
}

func (s *scoringServiceImpl) store(ctx context.Context, snapshot *entity.ReviewSnapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, snapshot); err != nil {
		s.logger.Warn("Failed to cache review snapshot", "claim_id", snapshot.ClaimID, "error", err)
	}
}

func (s *scoringServiceImpl) window(claim *entity.Claim) port.HistoryWindow {
	ref := claim.SubmittedAt
	if ref.IsZero() {
		ref = s.now()
	}
	return port.HistoryWindow{
		Since: ref.Add(-s.history.Window),
		Until: ref,
		Limit: s.history.Limit,
	}
}
