package policy

import (
	"fmt"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Thresholds are the score boundaries of the risk levels.
// A score below Medium is low, below High is medium, below Critical is high.
type Thresholds struct {
	Medium   int
	High     int
	Critical int
	// Investigate is the score from which the suggested action becomes investigate
	Investigate int
}

// DefaultThresholds returns the default boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium:      25,
		High:        50,
		Critical:    90,
		Investigate: 75,
	}
}

// Validate ensures the boundaries are within 0-100, strictly increasing, and that
// Investigate lies between High and Critical
func (t Thresholds) Validate() error {
	for name, v := range map[string]int{
		"medium":      t.Medium,
		"high":        t.High,
		"critical":    t.Critical,
		"investigate": t.Investigate,
	} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s threshold must be between 1 and 100, got %d", name, v)
		}
	}

	if !(t.Medium < t.High && t.High < t.Critical) {
		return fmt.Errorf("thresholds must be strictly increasing (medium: %d, high: %d, critical: %d)", t.Medium, t.High, t.Critical)
	}
	if t.Investigate < t.High || t.Investigate > t.Critical {
		return fmt.Errorf("investigate threshold must be between high (%d) and critical (%d), got %d", t.High, t.Critical, t.Investigate)
	}

	return nil
}

// Level maps a score to its risk level
func (t Thresholds) Level(score int) entity.RiskLevel {
	switch {
	case score >= t.Critical:
		return entity.RiskCritical
	case score >= t.High:
		return entity.RiskHigh
	case score >= t.Medium:
		return entity.RiskMedium
	default:
		return entity.RiskLow
	}
}
