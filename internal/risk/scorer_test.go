package risk

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/policy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Wednesday, mid-morning
var submittedAt = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

func newClaim(id, amount, category, description string, receipt bool) *entity.Claim {
	return &entity.Claim{
		ID:              id,
		EmployeeID:      "emp-1",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		Category:        category,
		Description:     description,
		ExpenseDate:     submittedAt.AddDate(0, 0, -2),
		SubmittedAt:     submittedAt,
		ReceiptAttached: receipt,
		Status:          entity.StatusPending,
	}
}

func prior(id, amount, category, description string, daysAgo int) entity.Claim {
	c := newClaim(id, amount, category, description, true)
	c.SubmittedAt = submittedAt.AddDate(0, 0, -daysAgo)
	c.ExpenseDate = c.SubmittedAt.AddDate(0, 0, -1)
	return *c
}

func newTestScorer() *Scorer {
	return NewScorer(NewDetectors(DefaultConfig()), policy.NewEngine(policy.DefaultConfig()), zap.NewNop())
}

func TestScoreClaim_SuspiciousEntertainmentClaim(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-1", "4950", "Entertainment", "stuff", false)

	score, alerts, criteria := scorer.ScoreClaim(claim, []entity.Claim{})

	codes := entity.AlertCodes(alerts)
	assert.Contains(t, codes, entity.AlertMissingReceipt)
	assert.Contains(t, codes, entity.AlertHighRiskCategory)
	assert.Contains(t, codes, entity.AlertVagueDescription)
	assert.Equal(t, 100, score)
	assert.Equal(t, entity.RiskCritical, criteria.RiskLevel)
	assert.Equal(t, entity.SuggestReject, criteria.SuggestedAction)
	assert.True(t, criteria.RequiresReview)
}

func TestScoreClaim_CleanFuelClaim(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-2", "120", "Fuel", "Diesel fill-up at depot, 45L", true)

	score, alerts, criteria := scorer.ScoreClaim(claim, []entity.Claim{})

	assert.Equal(t, 0, score)
	assert.Empty(t, alerts)
	assert.Equal(t, entity.RiskLow, criteria.RiskLevel)
	assert.Equal(t, entity.SuggestApprove, criteria.SuggestedAction)
	assert.False(t, criteria.RequiresReview)
}

func TestScoreClaim_MissingReceiptForcesHighAndReject(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-3", "42.50", "Meals", "Team lunch with the depot crew", false)

	score, alerts, criteria := scorer.ScoreClaim(claim, []entity.Claim{})

	assert.Equal(t, 50, score)
	require.Len(t, alerts, 1)
	assert.Equal(t, entity.AlertMissingReceipt, alerts[0].Code)
	assert.Equal(t, DetectorReceipt, alerts[0].Detector)
	assert.Equal(t, entity.RiskHigh, criteria.RiskLevel)
	assert.Equal(t, entity.SuggestReject, criteria.SuggestedAction)
}

func TestScoreClaim_MissingReceiptAlwaysRejects(t *testing.T) {
	scorer := newTestScorer()
	amounts := []string{"1", "99.99", "100", "5000", "12345.67"}
	categories := []string{"Fuel", "Gifts", "Travel"}

	for _, amount := range amounts {
		for _, category := range categories {
			claim := newClaim("c", amount, category, "Some reasonable description", false)
			_, _, criteria := scorer.ScoreClaim(claim, []entity.Claim{})
			assert.Contains(t, []entity.RiskLevel{entity.RiskHigh, entity.RiskCritical}, criteria.RiskLevel, "%s/%s", amount, category)
			assert.Equal(t, entity.SuggestReject, criteria.SuggestedAction, "%s/%s", amount, category)
		}
	}
}

func TestScoreClaim_RepeatedAmount(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-4", "250.00", "Meals", "Client dinner downtown", true)
	history := []entity.Claim{
		prior("h-1", "250", "Meals", "Dinner A with supplier", 5),
		prior("h-2", "250.00", "Travel", "Taxi to airport and back", 12),
		prior("h-3", "250", "Fuel", "Fuel for the van", 40),
	}

	_, alerts, criteria := scorer.ScoreClaim(claim, history)

	assert.Contains(t, entity.AlertCodes(alerts), entity.AlertRepeatedAmount)
	assert.True(t, criteria.RequiresReview)
}

func TestScoreClaim_ThresholdGaming(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-5", "4900", "Equipment", "Replacement pallet jack", true)
	history := []entity.Claim{
		prior("h-1", "4800", "Equipment", "Forklift battery", 4),
		prior("h-2", "4750", "Maintenance", "Dock door repair", 9),
	}

	_, alerts, criteria := scorer.ScoreClaim(claim, history)

	var gaming *entity.Alert
	for i := range alerts {
		if alerts[i].Code == entity.AlertThresholdGaming {
			gaming = &alerts[i]
		}
	}
	require.NotNil(t, gaming, "threshold gaming alert expected")
	assert.Equal(t, entity.SeverityCritical, gaming.Severity)
	assert.Equal(t, DetectorFrequency, gaming.Detector)
	assert.Equal(t, entity.SuggestInvestigate, criteria.SuggestedAction)
}

func TestScoreClaim_NilHistorySkipsHistoryChecks(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-6", "4950", "Entertainment", "stuff", false)

	withEmpty, alertsEmpty, _ := scorer.ScoreClaim(claim, []entity.Claim{})
	withNil, alertsNil, _ := scorer.ScoreClaim(claim, nil)

	assert.Equal(t, withEmpty, withNil)
	assert.Equal(t, entity.AlertCodes(alertsEmpty), entity.AlertCodes(alertsNil))
}

func TestScoreClaim_HistoryIgnoresTheClaimItself(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-7", "300", "Meals", "Lunch with the auditors", true)
	history := []entity.Claim{
		*claim,
		prior("h-1", "300", "Meals", "Another lunch", 3),
		prior("h-2", "300", "Meals", "Yet another lunch", 6),
	}

	_, alerts, _ := scorer.ScoreClaim(claim, history)

	assert.NotContains(t, entity.AlertCodes(alerts), entity.AlertRepeatedAmount)
}

type panicDetector struct{}

func (panicDetector) Name() string { return "panic" }
func (panicDetector) Detect(*entity.Claim, []entity.Claim) (Finding, error) {
	panic("boom")
}

type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }
func (failingDetector) Detect(*entity.Claim, []entity.Claim) (Finding, error) {
	return Finding{Score: 99}, errors.New("history unavailable")
}

func TestScoreClaim_DetectorFailuresContributeZero(t *testing.T) {
	cfg := DefaultConfig()
	detectors := []Detector{panicDetector{}, failingDetector{}, NewReceiptDetector(cfg.Receipt)}
	scorer := NewScorer(detectors, policy.NewEngine(policy.DefaultConfig()), zap.NewNop())

	claim := newClaim("c-8", "10", "Fuel", "Top-up at the depot pump", false)
	score, alerts, criteria := scorer.ScoreClaim(claim, []entity.Claim{})

	assert.Equal(t, 50, score)
	assert.Equal(t, []string{entity.AlertMissingReceipt}, entity.AlertCodes(alerts))
	assert.Equal(t, entity.SuggestReject, criteria.SuggestedAction)
}

func TestScoreClaim_ScoreAlwaysBounded(t *testing.T) {
	scorer := newTestScorer()
	var history []entity.Claim
	for i := 0; i < 15; i++ {
		history = append(history, prior(fmt.Sprintf("h-%d", i), "4900", []string{"Gifts", "Other", "Meals", "Travel", "Fuel"}[i%5], "stuff", i+1))
	}

	for _, receipt := range []bool{true, false} {
		for _, amount := range []string{"0.01", "100", "4900", "999999"} {
			claim := newClaim("c", amount, "Gifts", "stuff", receipt)
			claim.SubmittedAt = time.Date(2024, 3, 16, 23, 30, 0, 0, time.UTC)
			claim.ExpenseDate = claim.SubmittedAt.AddDate(0, -6, 0)

			score, _, _ := scorer.ScoreClaim(claim, history)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, MaxScore)
		}
	}
}

func TestScoreClaim_Deterministic(t *testing.T) {
	scorer := newTestScorer()
	claim := newClaim("c-9", "4900", "Gifts", "stuff", true)
	history := []entity.Claim{prior("h-1", "4900", "Gifts", "stuff", 2)}

	s1, a1, c1 := scorer.ScoreClaim(claim, history)
	s2, a2, c2 := scorer.ScoreClaim(claim, history)

	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, c1, c2)
}

func TestAggregate(t *testing.T) {
	findings := []Finding{
		{Score: 40, Alerts: []entity.Alert{{Code: "a", Detector: "first"}, {Code: "b", Detector: "first"}}},
		{Score: 45, Alerts: []entity.Alert{{Code: "a", Detector: "second"}, {Code: "c", Detector: "second"}}},
		{Score: 50, Alerts: []entity.Alert{{Code: "d", Detector: "third"}}},
	}

	score, alerts := Aggregate(findings)

	assert.Equal(t, 100, score)
	assert.Equal(t, []string{"a", "b", "c", "d"}, entity.AlertCodes(alerts))
	assert.Equal(t, "first", alerts[0].Detector, "first alert of a code wins")

	score, alerts = Aggregate(nil)
	assert.Equal(t, 0, score)
	assert.Empty(t, alerts)

	score, _ = Aggregate([]Finding{{Score: -20}})
	assert.Equal(t, 0, score)
}
