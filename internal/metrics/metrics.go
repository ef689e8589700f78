package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClaimsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_claims_scored_total",
		Help: "Total number of scoring runs, labelled by resulting risk level.",
	}, []string{"risk_level"})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_alerts_total",
		Help: "Total number of alerts produced by scoring, labelled by detector and code.",
	}, []string{"detector", "code"})

	ScoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claim_review_fraud_score",
		Help:    "Distribution of composite fraud scores (0-100).",
		Buckets: []float64{0, 10, 25, 40, 50, 60, 75, 90, 100},
	})

	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claim_review_scoring_duration_ms",
		Help:    "Latency of scoring a claim including the history lookup, in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_transitions_total",
		Help: "Total number of applied claim transitions, labelled by action.",
	}, []string{"action"})

	TransitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_transition_errors_total",
		Help: "Total number of refused transitions, labelled by error kind.",
	}, []string{"kind"})

	AutoApprovalsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claim_review_auto_approvals_suppressed_total",
		Help: "Matching auto-approval rules overridden by the risk policy.",
	})

	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_escalations_total",
		Help: "Total number of escalations applied by sweeps, labelled by first firing rule.",
	}, []string{"rule_id"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claim_review_sweep_duration_ms",
		Help:    "Duration of periodic sweeps in milliseconds.",
		Buckets: []float64{5, 25, 100, 250, 1000, 5000, 15000},
	}, []string{"sweep"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_notifications_total",
		Help: "Notification deliveries, labelled by sink and status.",
	}, []string{"sink", "status"})

	ReviewCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claim_review_review_cache_lookups_total",
		Help: "Review cache lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})
)
