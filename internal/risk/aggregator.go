package risk

import "github.com/garyjia/claim-review/internal/domain/entity"

// MaxScore is the upper bound of a composite risk score
const MaxScore = 100

// Aggregate sums the findings, clamps the total to [0, MaxScore] and merges
// the alerts in detector order, keeping the first alert of each code.
func Aggregate(findings []Finding) (int, []entity.Alert) {
	total := 0
	alerts := make([]entity.Alert, 0)
	seen := make(map[string]bool)

	for _, f := range findings {
		total += f.Score
		for _, a := range f.Alerts {
			if seen[a.Code] {
				continue
			}
			seen[a.Code] = true
			alerts = append(alerts, a)
		}
	}

	return clamp(total), alerts
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
