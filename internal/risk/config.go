package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the knobs of every detector
type Config struct {
	Amount      AmountConfig
	Timing      TimingConfig
	Frequency   FrequencyConfig
	Category    CategoryConfig
	Description DescriptionConfig
	Receipt     ReceiptConfig
}

// AmountConfig configures the amount detector
type AmountConfig struct {
	RoundFloor      decimal.Decimal
	RoundMultiple   decimal.Decimal
	RoundWeight     int
	HighValue       decimal.Decimal
	HighValueWeight int
	RepeatCount     int
	RepeatWeight    int
	Cap             int
}

// TimingConfig configures the timing detector. Holidays are YYYY-MM-DD dates.
type TimingConfig struct {
	WeekendWeight  int
	Holidays       []string
	OffHoursStart  int
	OffHoursEnd    int
	OffHoursWeight int
	StaleDays      int
	StaleWeight    int
	Cap            int
}

// FrequencyConfig configures the frequency detector
type FrequencyConfig struct {
	Window          time.Duration
	MaxClaims       int
	FrequencyWeight int
	Ceiling         decimal.Decimal
	Band            decimal.Decimal
	GamingCount     int
	GamingWeight    int
	Cap             int
}

// CategoryConfig configures the category detector
type CategoryConfig struct {
	HighRisk          []string
	HighRiskWeight    int
	Lookback          int
	DistinctThreshold int
	SwitchingWeight   int
	Cap               int
}

// DescriptionConfig configures the description detector
type DescriptionConfig struct {
	MinLength       int
	VagueWeight     int
	DuplicateCount  int
	DuplicateWeight int
	Cap             int
}

// ReceiptConfig configures the receipt detector
type ReceiptConfig struct {
	MissingWeight int
	Cap           int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Amount: AmountConfig{
			RoundFloor:      decimal.NewFromInt(100),
			RoundMultiple:   decimal.NewFromInt(100),
			RoundWeight:     10,
			HighValue:       decimal.NewFromInt(1000),
			HighValueWeight: 20,
			RepeatCount:     3,
			RepeatWeight:    25,
			Cap:             40,
		},
		Timing: TimingConfig{
			WeekendWeight:  5,
			OffHoursStart:  22,
			OffHoursEnd:    6,
			OffHoursWeight: 5,
			StaleDays:      60,
			StaleWeight:    15,
			Cap:            20,
		},
		Frequency: FrequencyConfig{
			Window:          30 * 24 * time.Hour,
			MaxClaims:       10,
			FrequencyWeight: 15,
			Ceiling:         decimal.NewFromInt(5000),
			Band:            decimal.NewFromFloat(0.10),
			GamingCount:     3,
			GamingWeight:    45,
			Cap:             45,
		},
		Category: CategoryConfig{
			HighRisk:          []string{"Entertainment", "Gifts", "Other"},
			HighRiskWeight:    20,
			Lookback:          10,
			DistinctThreshold: 5,
			SwitchingWeight:   10,
			Cap:               25,
		},
		Description: DescriptionConfig{
			MinLength:       10,
			VagueWeight:     10,
			DuplicateCount:  2,
			DuplicateWeight: 20,
			Cap:             25,
		},
		Receipt: ReceiptConfig{
			MissingWeight: 50,
			Cap:           50,
		},
	}
}

// Validate ensures the detector settings are usable
func (c Config) Validate() error {
	if !c.Amount.RoundMultiple.IsPositive() {
		return fmt.Errorf("amount.round_multiple must be greater than zero")
	}
	if c.Amount.RepeatCount < 1 {
		return fmt.Errorf("amount.repeat_count must be at least 1, got %d", c.Amount.RepeatCount)
	}
	if c.Timing.OffHoursStart < 0 || c.Timing.OffHoursStart > 24 || c.Timing.OffHoursEnd < 0 || c.Timing.OffHoursEnd > 24 {
		return fmt.Errorf("timing off-hours bounds must be within 0-24 (start: %d, end: %d)", c.Timing.OffHoursStart, c.Timing.OffHoursEnd)
	}
	for _, h := range c.Timing.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return fmt.Errorf("timing.holidays: invalid date %q: %w", h, err)
		}
	}
	if c.Frequency.Window <= 0 {
		return fmt.Errorf("frequency.window must be positive")
	}
	if !c.Frequency.Ceiling.IsPositive() {
		return fmt.Errorf("frequency.ceiling must be greater than zero")
	}
	if !c.Frequency.Band.IsPositive() || c.Frequency.Band.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("frequency.band must be between 0 and 1, got %s", c.Frequency.Band)
	}
	if c.Frequency.GamingCount < 1 {
		return fmt.Errorf("frequency.gaming_count must be at least 1")
	}
	if c.Category.Lookback < 1 || c.Category.DistinctThreshold < 1 {
		return fmt.Errorf("category lookback and distinct_threshold must be at least 1")
	}
	if c.Description.DuplicateCount < 1 {
		return fmt.Errorf("description.duplicate_count must be at least 1")
	}
	// receipt must stay the single heaviest contributor
	others := []int{c.Amount.Cap, c.Timing.Cap, c.Frequency.Cap, c.Category.Cap, c.Description.Cap}
	for _, limit := range others {
		if limit >= c.Receipt.Cap {
			return fmt.Errorf("receipt.cap (%d) must be greater than every other detector cap (%d)", c.Receipt.Cap, limit)
		}
	}
	if c.Receipt.MissingWeight <= 0 {
		return fmt.Errorf("receipt.missing_weight must be positive")
	}
	return nil
}
