package risk

import (
	"strings"
	"unicode/utf8"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// DescriptionDetector flags vague and copy-pasted descriptions
type DescriptionDetector struct {
	cfg DescriptionConfig
}

// NewDescriptionDetector creates a description detector
func NewDescriptionDetector(cfg DescriptionConfig) *DescriptionDetector {
	return &DescriptionDetector{cfg: cfg}
}

func (d *DescriptionDetector) Name() string { return DetectorDescription }

func (d *DescriptionDetector) Detect(claim *entity.Claim, history []entity.Claim) (Finding, error) {
	f := newFinding(DetectorDescription, d.cfg.Cap)
	text := strings.TrimSpace(claim.Description)

	if n := utf8.RuneCountInString(text); n < d.cfg.MinLength {
		f.add(entity.AlertVagueDescription, entity.SeverityMedium, d.cfg.VagueWeight,
			"description has %d characters (minimum %d)", n, d.cfg.MinLength)
	}

	if history == nil || text == "" {
		return f.result(), nil
	}

	key := normalize(text)
	dupes := 0
	for _, h := range priorClaims(claim, history) {
		if normalize(h.Description) == key {
			dupes++
		}
	}
	if dupes >= d.cfg.DuplicateCount {
		f.add(entity.AlertDuplicateDescription, entity.SeverityHigh, d.cfg.DuplicateWeight,
			"description reused on %d previous claims", dupes)
	}

	return f.result(), nil
}
