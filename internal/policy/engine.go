// Package policy turns a risk score into review criteria and evaluates approval rules.
package policy

import (
	"github.com/garyjia/claim-review/internal/domain/entity"
)

// Config configures the review policy
type Config struct {
	Thresholds Thresholds

	// InvestigateOnCritical turns any critical-severity alert into an investigate suggestion.
	// Off by default: only the score threshold leads to investigate.
	InvestigateOnCritical bool
}

// DefaultConfig returns the default review policy
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
	}
}

// Validate checks the policy configuration
func (c Config) Validate() error {
	return c.Thresholds.Validate()
}

// Engine derives review criteria from a scoring result.
// Only a missing receipt forces a reject suggestion and at least a high risk level.
type Engine struct {
	cfg Config
}

// NewEngine creates a review policy engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Thresholds returns the configured boundaries
func (e *Engine) Thresholds() Thresholds {
	return e.cfg.Thresholds
}

// Evaluate computes the review criteria for a score and its alerts
func (e *Engine) Evaluate(score int, alerts []entity.Alert) entity.ReviewCriteria {
	level := e.cfg.Thresholds.Level(score)
	action := entity.SuggestApprove

	override := false
	critical := false
	for _, a := range alerts {
		if a.Code == entity.AlertMissingReceipt {
			override = true
		}
		if a.Severity == entity.SeverityCritical {
			critical = true
		}
	}

	switch {
	case override:
		action = entity.SuggestReject
		if level.Rank() < entity.RiskHigh.Rank() {
			level = entity.RiskHigh
		}
	case score >= e.cfg.Thresholds.Investigate:
		action = entity.SuggestInvestigate
	case critical && e.cfg.InvestigateOnCritical:
		action = entity.SuggestInvestigate
	}

	return entity.ReviewCriteria{
		RequiresReview:  len(alerts) > 0 || level != entity.RiskLow,
		RiskLevel:       level,
		SuggestedAction: action,
	}
}

// EvaluateFlags recomputes the criteria of a stored claim from its score and flags.
// Severities are not stored, so InvestigateOnCritical only applies to threshold gaming.
func (e *Engine) EvaluateFlags(score int, flags []string) entity.ReviewCriteria {
	alerts := make([]entity.Alert, 0, len(flags))
	for _, f := range flags {
		a := entity.Alert{Code: f, Severity: entity.SeverityLow}
		if f == entity.AlertThresholdGaming {
			a.Severity = entity.SeverityCritical
		}
		alerts = append(alerts, a)
	}
	return e.Evaluate(score, alerts)
}
