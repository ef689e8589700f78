package entity

import "time"

// Severity grades an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4); unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Alert is a finding produced by a detector during one scoring run
type Alert struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
	Detector string   `json:"detector"`
}

// AlertCodes returns the codes of the alerts in order
func AlertCodes(alerts []Alert) []string {
	codes := make([]string, 0, len(alerts))
	for _, a := range alerts {
		codes = append(codes, a.Code)
	}
	return codes
}

// RiskLevel is the coarse bucket derived from a score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels from low (1) to critical (4)
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// SuggestedAction is the policy recommendation, distinct from the workflow decision
type SuggestedAction string

const (
	SuggestApprove     SuggestedAction = "approve"
	SuggestReject      SuggestedAction = "reject"
	SuggestInvestigate SuggestedAction = "investigate"
)

// ReviewCriteria is derived each time a claim is scored and only cached for display
type ReviewCriteria struct {
	RequiresReview  bool            `json:"requires_review"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
}

// ReviewSnapshot is the full output of one scoring run
type ReviewSnapshot struct {
	ClaimID  string         `json:"claim_id"`
	Score    int            `json:"score"`
	Alerts   []Alert        `json:"alerts"`
	Criteria ReviewCriteria `json:"criteria"`
	ScoredAt time.Time      `json:"scored_at"`
}
