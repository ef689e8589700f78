package risk

import (
	"fmt"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/policy"
	"go.uber.org/zap"
)

// Scorer runs the detector set and derives review criteria. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	detectors []Detector
	policy    *policy.Engine
	logger    *zap.Logger
}

// NewDetectors builds the standard detector set in evaluation order
func NewDetectors(cfg Config) []Detector {
	return []Detector{
		NewAmountDetector(cfg.Amount),
		NewTimingDetector(cfg.Timing),
		NewFrequencyDetector(cfg.Frequency),
		NewCategoryDetector(cfg.Category),
		NewDescriptionDetector(cfg.Description),
		NewReceiptDetector(cfg.Receipt),
	}
}

// NewScorer creates a scorer over the given detectors
func NewScorer(detectors []Detector, engine *policy.Engine, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		detectors: detectors,
		policy:    engine,
		logger:    logger,
	}
}

// ScoreClaim runs every detector and returns the clamped score, merged alerts and
// review criteria. It never fails: a detector that errors or panics contributes nothing.
func (s *Scorer) ScoreClaim(claim *entity.Claim, history []entity.Claim) (int, []entity.Alert, entity.ReviewCriteria) {
	if history == nil {
		s.logger.Warn("Scoring without history, history-based checks skipped",
			zap.String("claim_id", claim.ID))
	}

	findings := make([]Finding, 0, len(s.detectors))
	for _, d := range s.detectors {
		f, err := s.run(d, claim, history)
		if err != nil {
			s.logger.Warn("Detector failed, contributing zero",
				zap.String("detector", d.Name()),
				zap.String("claim_id", claim.ID),
				zap.Error(err))
			continue
		}
		findings = append(findings, f)
	}

	score, alerts := Aggregate(findings)
	return score, alerts, s.policy.Evaluate(score, alerts)
}

func (s *Scorer) run(d Detector, claim *entity.Claim, history []entity.Claim) (f Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			f = Finding{}
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Detect(claim, history)
}

// Policy returns the review policy engine used by the scorer
func (s *Scorer) Policy() *policy.Engine {
	return s.policy
}
