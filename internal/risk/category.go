package risk

import (
	"sort"
	"strings"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// CategoryDetector flags high-risk categories and employees hopping between categories
type CategoryDetector struct {
	cfg      CategoryConfig
	highRisk map[string]bool
}

// NewCategoryDetector creates a category detector. Categories compare case-insensitively.
func NewCategoryDetector(cfg CategoryConfig) *CategoryDetector {
	highRisk := make(map[string]bool, len(cfg.HighRisk))
	for _, c := range cfg.HighRisk {
		highRisk[normalize(c)] = true
	}
	return &CategoryDetector{cfg: cfg, highRisk: highRisk}
}

func (d *CategoryDetector) Name() string { return DetectorCategory }

func (d *CategoryDetector) Detect(claim *entity.Claim, history []entity.Claim) (Finding, error) {
	f := newFinding(DetectorCategory, d.cfg.Cap)

	if d.highRisk[normalize(claim.Category)] {
		f.add(entity.AlertHighRiskCategory, entity.SeverityMedium, d.cfg.HighRiskWeight,
			"category %q is on the high-risk list", strings.TrimSpace(claim.Category))
	}

	if history == nil {
		return f.result(), nil
	}

	// last N claims: the current one plus the most recent prior ones
	prior := priorClaims(claim, history)
	sort.SliceStable(prior, func(i, j int) bool {
		return prior[i].SubmittedAt.After(prior[j].SubmittedAt)
	})
	distinct := map[string]bool{normalize(claim.Category): true}
	for i := 0; i < len(prior) && i < d.cfg.Lookback-1; i++ {
		distinct[normalize(prior[i].Category)] = true
	}
	if len(distinct) >= d.cfg.DistinctThreshold {
		f.add(entity.AlertCategorySwitching, entity.SeverityLow, d.cfg.SwitchingWeight,
			"last %d claims span %d distinct categories", d.cfg.Lookback, len(distinct))
	}

	return f.result(), nil
}
