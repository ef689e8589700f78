package risk

import (
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// FrequencyDetector flags bursts of claims and clustering just below the auto-approval ceiling
type FrequencyDetector struct {
	cfg FrequencyConfig
}

// NewFrequencyDetector creates a frequency detector
func NewFrequencyDetector(cfg FrequencyConfig) *FrequencyDetector {
	return &FrequencyDetector{cfg: cfg}
}

func (d *FrequencyDetector) Name() string { return DetectorFrequency }

// GamingBand returns the [low, ceiling) range treated as "just under the ceiling"
func (d *FrequencyDetector) GamingBand() (decimal.Decimal, decimal.Decimal) {
	low := d.cfg.Ceiling.Mul(decimal.NewFromInt(1).Sub(d.cfg.Band))
	return low, d.cfg.Ceiling
}

func (d *FrequencyDetector) inBand(amount decimal.Decimal) bool {
	low, high := d.GamingBand()
	return amount.GreaterThanOrEqual(low) && amount.LessThan(high)
}

func (d *FrequencyDetector) Detect(claim *entity.Claim, history []entity.Claim) (Finding, error) {
	f := newFinding(DetectorFrequency, d.cfg.Cap)
	if history == nil {
		return f.result(), nil
	}

	ref := claim.SubmittedAt
	recent := 1
	banded := 0
	if d.inBand(claim.Amount) {
		banded = 1
	}
	for _, h := range priorClaims(claim, history) {
		if !withinWindow(h.SubmittedAt, ref, d.cfg.Window) {
			continue
		}
		recent++
		if banded > 0 && d.inBand(h.Amount) {
			banded++
		}
	}

	if recent > d.cfg.MaxClaims {
		f.add(entity.AlertHighFrequency, entity.SeverityMedium, d.cfg.FrequencyWeight,
			"%d claims in the trailing %d days (limit %d)", recent, windowDays(d.cfg.Window), d.cfg.MaxClaims)
	}

	if banded >= d.cfg.GamingCount {
		low, high := d.GamingBand()
		f.add(entity.AlertThresholdGaming, entity.SeverityCritical, d.cfg.GamingWeight,
			"%d claims between %s and %s within %d days", banded, low.StringFixed(2), high.StringFixed(2), windowDays(d.cfg.Window))
	}

	return f.result(), nil
}
