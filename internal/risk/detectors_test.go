package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(t *testing.T, d Detector, claim *entity.Claim, history []entity.Claim) []string {
	t.Helper()
	f, err := d.Detect(claim, history)
	require.NoError(t, err)
	return entity.AlertCodes(f.Alerts)
}

func TestAmountDetector(t *testing.T) {
	d := NewAmountDetector(DefaultConfig().Amount)

	tests := []struct {
		name   string
		amount string
		want   []string
		score  int
	}{
		{"small odd amount", "42.17", []string{}, 0},
		{"below round floor", "50", []string{}, 0},
		{"round amount", "300.00", []string{entity.AlertRoundAmount}, 10},
		{"high value", "1250.40", []string{entity.AlertHighValueAmount}, 20},
		{"round and high value", "2000", []string{entity.AlertRoundAmount, entity.AlertHighValueAmount}, 30},
		{"exactly at high value", "1000", []string{entity.AlertRoundAmount}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := d.Detect(newClaim("c", tt.amount, "Fuel", "Diesel for the truck", true), []entity.Claim{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entity.AlertCodes(f.Alerts))
			assert.Equal(t, tt.score, f.Score)
		})
	}
}

func TestAmountDetector_CapsScore(t *testing.T) {
	d := NewAmountDetector(DefaultConfig().Amount)
	claim := newClaim("c", "2000", "Fuel", "Diesel for the truck", true)
	history := []entity.Claim{
		prior("h-1", "2000", "Fuel", "a", 1),
		prior("h-2", "2000", "Fuel", "b", 2),
		prior("h-3", "2000", "Fuel", "c", 3),
	}

	f, err := d.Detect(claim, history)
	require.NoError(t, err)

	assert.Len(t, f.Alerts, 3)
	assert.Equal(t, 40, f.Score, "10+20+25 is capped at 40")
}

func TestTimingDetector(t *testing.T) {
	cfg := DefaultConfig().Timing
	cfg.Holidays = []string{"2024-03-13"}
	d := NewTimingDetector(cfg)
	plain := NewTimingDetector(DefaultConfig().Timing)

	claim := func(submitted time.Time, expenseDaysBefore int) *entity.Claim {
		c := newClaim("c", "42", "Fuel", "Diesel for the truck", true)
		c.SubmittedAt = submitted
		c.ExpenseDate = submitted.AddDate(0, 0, -expenseDaysBefore)
		return c
	}

	assert.Empty(t, codesOf(t, plain, claim(submittedAt, 1), nil))
	assert.Equal(t, []string{entity.AlertWeekendSubmission},
		codesOf(t, plain, claim(time.Date(2024, 3, 16, 11, 0, 0, 0, time.UTC), 1), nil))
	assert.Equal(t, []string{entity.AlertWeekendSubmission},
		codesOf(t, d, claim(submittedAt, 1), nil), "holiday counts like a weekend")
	assert.Equal(t, []string{entity.AlertOffHoursSubmission},
		codesOf(t, plain, claim(time.Date(2024, 3, 13, 23, 15, 0, 0, time.UTC), 1), nil))
	assert.Equal(t, []string{entity.AlertOffHoursSubmission},
		codesOf(t, plain, claim(time.Date(2024, 3, 13, 5, 59, 0, 0, time.UTC), 1), nil))
	assert.Empty(t, codesOf(t, plain, claim(time.Date(2024, 3, 13, 6, 0, 0, 0, time.UTC), 1), nil))
	assert.Empty(t, codesOf(t, plain, claim(submittedAt, 60), nil))
	assert.Equal(t, []string{entity.AlertStaleExpense}, codesOf(t, plain, claim(submittedAt, 61), nil))

	f, err := plain.Detect(claim(time.Date(2024, 3, 16, 23, 0, 0, 0, time.UTC), 90), nil)
	require.NoError(t, err)
	assert.Len(t, f.Alerts, 3)
	assert.Equal(t, 20, f.Score, "5+5+15 is capped at 20")
}

func TestFrequencyDetector_HighFrequency(t *testing.T) {
	d := NewFrequencyDetector(DefaultConfig().Frequency)
	claim := newClaim("c", "42", "Fuel", "Diesel for the truck", true)

	var history []entity.Claim
	for i := 0; i < 9; i++ {
		history = append(history, prior(fmt.Sprintf("h-%d", i), "10", "Fuel", "x", i+1))
	}
	assert.Empty(t, codesOf(t, d, claim, history), "ten claims is the limit")

	history = append(history, prior("h-10", "10", "Fuel", "x", 20))
	assert.Equal(t, []string{entity.AlertHighFrequency}, codesOf(t, d, claim, history))

	old := append(history[:9:9], prior("h-old", "10", "Fuel", "x", 45))
	assert.Empty(t, codesOf(t, d, claim, old), "claims outside the window are ignored")
}

func TestFrequencyDetector_ThresholdGamingBand(t *testing.T) {
	d := NewFrequencyDetector(DefaultConfig().Frequency)

	low, high := d.GamingBand()
	assert.True(t, low.Equal(decimal.NewFromInt(4500)))
	assert.True(t, high.Equal(decimal.NewFromInt(5000)))

	tests := []struct {
		name    string
		current string
		priors  []entity.Claim
		want    bool
	}{
		{"three in band", "4999.99", []entity.Claim{prior("a", "4500", "Fuel", "x", 1), prior("b", "4700", "Fuel", "x", 29)}, true},
		{"two in band", "4900", []entity.Claim{prior("a", "4800", "Fuel", "x", 1)}, false},
		{"ceiling is outside the band", "5000", []entity.Claim{prior("a", "4800", "Fuel", "x", 1), prior("b", "4700", "Fuel", "x", 2)}, false},
		{"current below band", "4499.99", []entity.Claim{prior("a", "4800", "Fuel", "x", 1), prior("b", "4700", "Fuel", "x", 2)}, false},
		{"prior out of window", "4900", []entity.Claim{prior("a", "4800", "Fuel", "x", 1), prior("b", "4700", "Fuel", "x", 31)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := codesOf(t, d, newClaim("c", tt.current, "Equipment", "Pallet jack", true), tt.priors)
			if tt.want {
				assert.Contains(t, codes, entity.AlertThresholdGaming)
			} else {
				assert.NotContains(t, codes, entity.AlertThresholdGaming)
			}
		})
	}
}

func TestFrequencyDetector_NilHistory(t *testing.T) {
	d := NewFrequencyDetector(DefaultConfig().Frequency)
	f, err := d.Detect(newClaim("c", "4900", "Fuel", "x", true), nil)
	require.NoError(t, err)
	assert.Equal(t, Finding{}, f)
}

func TestCategoryDetector(t *testing.T) {
	d := NewCategoryDetector(DefaultConfig().Category)

	assert.Equal(t, []string{entity.AlertHighRiskCategory},
		codesOf(t, d, newClaim("c", "10", " gifts ", "Flowers for client", true), []entity.Claim{}))
	assert.Empty(t, codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel", true), []entity.Claim{}))

	switching := []entity.Claim{
		prior("h-1", "10", "Meals", "x", 1),
		prior("h-2", "10", "Travel", "x", 2),
		prior("h-3", "10", "Accommodation", "x", 3),
		prior("h-4", "10", "Communication", "x", 4),
	}
	assert.Equal(t, []string{entity.AlertCategorySwitching},
		codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel", true), switching))
	assert.Empty(t, codesOf(t, d, newClaim("c", "10", "Meals", "Lunch", true), switching),
		"only four distinct categories")

	// ten more recent claims push the varied ones out of the lookback
	var recent []entity.Claim
	for i := 0; i < 10; i++ {
		c := prior(fmt.Sprintf("r-%d", i), "10", "Fuel", "x", 0)
		c.SubmittedAt = submittedAt.Add(-time.Duration(i+1) * time.Minute)
		recent = append(recent, c)
	}
	assert.Empty(t, codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel", true), append(switching, recent...)))
}

func TestDescriptionDetector(t *testing.T) {
	d := NewDescriptionDetector(DefaultConfig().Description)

	assert.Equal(t, []string{entity.AlertVagueDescription},
		codesOf(t, d, newClaim("c", "10", "Fuel", "   misc    ", true), []entity.Claim{}))
	assert.Empty(t, codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel 40L", true), []entity.Claim{}))
	assert.Equal(t, []string{entity.AlertVagueDescription},
		codesOf(t, d, newClaim("c", "10", "Meals", "午餐费用", true), []entity.Claim{}), "length counts runes")

	history := []entity.Claim{
		prior("h-1", "10", "Fuel", "Diesel fill-up at depot", 1),
		prior("h-2", "12", "Fuel", "diesel  fill-up at DEPOT", 8),
	}
	assert.Equal(t, []string{entity.AlertDuplicateDescription},
		codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel fill-up at depot", true), history))
	assert.Empty(t, codesOf(t, d, newClaim("c", "10", "Fuel", "Diesel fill-up at depot", true), history[:1]))
}

func TestReceiptDetector(t *testing.T) {
	d := NewReceiptDetector(DefaultConfig().Receipt)

	f, err := d.Detect(newClaim("c", "10", "Fuel", "Diesel", false), nil)
	require.NoError(t, err)
	assert.Equal(t, 50, f.Score)
	require.Len(t, f.Alerts, 1)
	assert.Equal(t, entity.SeverityHigh, f.Alerts[0].Severity)

	f, err = d.Detect(newClaim("c", "10", "Fuel", "Diesel", true), nil)
	require.NoError(t, err)
	assert.Equal(t, Finding{}, f)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{"band too wide", func(c *Config) { c.Frequency.Band = decimal.NewFromInt(1) }, "frequency.band"},
		{"zero ceiling", func(c *Config) { c.Frequency.Ceiling = decimal.Zero }, "frequency.ceiling"},
		{"bad holiday", func(c *Config) { c.Timing.Holidays = []string{"13/03/2024"} }, "timing.holidays"},
		{"receipt not heaviest", func(c *Config) { c.Frequency.Cap = 50 }, "receipt.cap"},
		{"off hours out of range", func(c *Config) { c.Timing.OffHoursStart = 25 }, "off-hours"},
		{"zero round multiple", func(c *Config) { c.Amount.RoundMultiple = decimal.Zero }, "round_multiple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}
