package risk

import "github.com/garyjia/claim-review/internal/domain/entity"

// AmountDetector flags round, high-value and repeated amounts
type AmountDetector struct {
	cfg AmountConfig
}

// NewAmountDetector creates an amount detector
func NewAmountDetector(cfg AmountConfig) *AmountDetector {
	return &AmountDetector{cfg: cfg}
}

func (d *AmountDetector) Name() string { return DetectorAmount }

func (d *AmountDetector) Detect(claim *entity.Claim, history []entity.Claim) (Finding, error) {
	f := newFinding(DetectorAmount, d.cfg.Cap)
	amount := claim.Amount

	if amount.GreaterThanOrEqual(d.cfg.RoundFloor) && amount.Mod(d.cfg.RoundMultiple).IsZero() {
		f.add(entity.AlertRoundAmount, entity.SeverityMedium, d.cfg.RoundWeight,
			"amount %s is a round multiple of %s", amount.StringFixed(2), d.cfg.RoundMultiple)
	}

	if amount.GreaterThan(d.cfg.HighValue) {
		f.add(entity.AlertHighValueAmount, entity.SeverityHigh, d.cfg.HighValueWeight,
			"amount %s exceeds high-value threshold %s", amount.StringFixed(2), d.cfg.HighValue.StringFixed(2))
	}

	if history != nil {
		same := 0
		for _, h := range priorClaims(claim, history) {
			if h.Amount.Equal(amount) {
				same++
			}
		}
		if same >= d.cfg.RepeatCount {
			f.add(entity.AlertRepeatedAmount, entity.SeverityHigh, d.cfg.RepeatWeight,
				"%d previous claims share the amount %s", same, amount.StringFixed(2))
		}
	}

	return f.result(), nil
}
