package risk

import "github.com/garyjia/claim-review/internal/domain/entity"

// ReceiptDetector flags claims without a receipt. Its alert is a policy override:
// the review policy forces rejection whenever it is present.
type ReceiptDetector struct {
	cfg ReceiptConfig
}

// NewReceiptDetector creates a receipt detector
func NewReceiptDetector(cfg ReceiptConfig) *ReceiptDetector {
	return &ReceiptDetector{cfg: cfg}
}

func (d *ReceiptDetector) Name() string { return DetectorReceipt }

func (d *ReceiptDetector) Detect(claim *entity.Claim, _ []entity.Claim) (Finding, error) {
	f := newFinding(DetectorReceipt, d.cfg.Cap)
	if !claim.ReceiptAttached {
		f.add(entity.AlertMissingReceipt, entity.SeverityHigh, d.cfg.MissingWeight, "no receipt attached")
	}
	return f.result(), nil
}
