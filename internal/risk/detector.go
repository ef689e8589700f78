// Package risk scores expense claims with independent heuristic detectors.
//
// Every detector is a pure function of the claim and the employee's historical
// claims. A nil history means it could not be loaded: sub-checks that depend on
// it are skipped, while an empty slice means the employee has no prior claims.
package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Detector names, also used as Alert.Detector
const (
	DetectorAmount      = "amount"
	DetectorTiming      = "timing"
	DetectorFrequency   = "frequency"
	DetectorCategory    = "category"
	DetectorDescription = "description"
	DetectorReceipt     = "receipt"
)

// Finding is the partial result of one detector
type Finding struct {
	Score  int
	Alerts []entity.Alert
}

// Detector inspects one risk dimension of a claim
type Detector interface {
	Name() string
	Detect(claim *entity.Claim, history []entity.Claim) (Finding, error)
}

// finding accumulates a detector's contributions and applies its cap
type finding struct {
	detector string
	limit    int
	Finding
}

func newFinding(detector string, limit int) *finding {
	return &finding{detector: detector, limit: limit}
}

func (f *finding) add(code string, sev entity.Severity, weight int, format string, args ...interface{}) {
	f.Score += weight
	f.Alerts = append(f.Alerts, entity.Alert{
		Code:     code,
		Severity: sev,
		Reason:   fmt.Sprintf(format, args...),
		Detector: f.detector,
	})
}

func (f *finding) result() Finding {
	if f.limit > 0 && f.Score > f.limit {
		f.Score = f.limit
	}
	if f.Score < 0 {
		f.Score = 0
	}
	return f.Finding
}

// priorClaims drops the claim itself from history so a rescore never counts it twice
func priorClaims(claim *entity.Claim, history []entity.Claim) []entity.Claim {
	out := make([]entity.Claim, 0, len(history))
	for _, h := range history {
		if h.ID != "" && h.ID == claim.ID {
			continue
		}
		out = append(out, h)
	}
	return out
}

// withinWindow reports whether t falls in (ref-window, ref]
func withinWindow(t, ref time.Time, window time.Duration) bool {
	return !t.After(ref) && ref.Sub(t) < window
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func windowDays(d time.Duration) int {
	return int(d.Hours() / 24)
}
