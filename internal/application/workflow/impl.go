package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/garyjia/claim-review/internal/domain/event"
	domainwf "github.com/garyjia/claim-review/internal/domain/workflow"
	"github.com/garyjia/claim-review/internal/metrics"
	"github.com/garyjia/claim-review/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("claim-review/workflow")

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	claims   port.ClaimRepository
	rules    port.RuleRepository
	assessor Assessor
	policy   *policy.Engine
	notifier port.Notifier
	authz    *Authorizer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithNotifier sets the notification port
func WithNotifier(n port.Notifier) EngineOption {
	return func(e *engineImpl) {
		e.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithConfig sets the engine configuration
func WithConfig(cfg Config) EngineOption {
	return func(e *engineImpl) {
		e.cfg = cfg
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	claims port.ClaimRepository,
	rules port.RuleRepository,
	assessor Assessor,
	policyEngine *policy.Engine,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		claims:   claims,
		rules:    rules,
		assessor: assessor,
		policy:   policyEngine,
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.cfg.SweepBatchSize <= 0 {
		e.cfg.SweepBatchSize = DefaultConfig().SweepBatchSize
	}
	if e.cfg.RescoreConcurrency <= 0 {
		e.cfg.RescoreConcurrency = DefaultConfig().RescoreConcurrency
	}
	e.authz = NewAuthorizer(e.cfg.Reviewers, e.cfg.AdminRole)

	return e
}

// GetClaim returns a claim with its history
func (e *engineImpl) GetClaim(ctx context.Context, claimID string) (*entity.Claim, error) {
	claim, err := e.claims.GetClaim(ctx, claimID)
	if err != nil {
		return nil, entity.NewRepositoryError("get claim", err)
	}
	return claim, nil
}

// step describes one conditioned transition
type step struct {
	claim   *entity.Claim
	trigger domainwf.Trigger
	action  string
	actor   string
	comment string
	at      time.Time
	mutate  func(f *entity.ClaimFields)
}

// transition validates the trigger against the claim's state machine and applies a
// single conditioned write. The claim passed in is the one the caller observed.
func (e *engineImpl) transition(ctx context.Context, s step) (*entity.Claim, error) {
	machine, err := domainwf.NewClaimStateMachine(domainwf.State(s.claim.Status))
	if err != nil {
		return nil, e.refuse(s.claim, s.action, s.actor, entity.ReasonNotPermitted)
	}

	if err := machine.Fire(ctx, s.trigger); err != nil {
		reason := entity.ReasonNotPermitted
		if errors.Is(err, domainwf.ErrTerminalState) {
			reason = entity.ReasonTerminalState
		}
		return nil, e.refuse(s.claim, s.action, s.actor, reason)
	}

	fields := s.claim.Fields()
	if s.mutate != nil {
		s.mutate(&fields)
	}

	newStatus := entity.Status(machine.State())
	entry := entity.NewHistoryEntry(s.claim.ID, s.action, s.actor, s.claim.Status, newStatus, s.comment, s.at)

	updated, err := e.claims.SaveClaimTransition(ctx, s.claim.ID, port.ClaimTransition{
		ExpectedStatus:  s.claim.Status,
		ExpectedVersion: s.claim.Version,
		NewStatus:       newStatus,
		Fields:          fields,
		Entry:           entry,
		At:              s.at,
	})
	if err != nil {
		if errors.Is(err, entity.ErrStaleState) {
			metrics.TransitionErrors.WithLabelValues("stale").Inc()
			return nil, err
		}
		e.logger.Error("Failed to save claim transition",
			zap.String("claim_id", s.claim.ID),
			zap.String("action", s.action),
			zap.Error(err))
		return nil, entity.NewRepositoryError("save claim transition", err)
	}

	metrics.Transitions.WithLabelValues(s.action).Inc()
	e.logger.Info("Claim transitioned",
		zap.String("claim_id", updated.ID),
		zap.String("action", s.action),
		zap.String("actor", s.actor),
		zap.String("from", s.claim.Status.String()),
		zap.String("to", updated.Status.String()),
		zap.Int64("version", updated.Version))

	return updated, nil
}

// permit refuses a trigger the claim's lifecycle does not allow, before any scoring work is done
func (e *engineImpl) permit(claim *entity.Claim, trigger domainwf.Trigger, action, actor string) error {
	machine, err := domainwf.NewClaimStateMachine(domainwf.State(claim.Status))
	if err == nil && machine.CanFire(trigger) {
		return nil
	}
	reason := entity.ReasonNotPermitted
	if claim.Status.IsTerminal() {
		reason = entity.ReasonTerminalState
	}
	return e.refuse(claim, action, actor, reason)
}

// refuse builds an IllegalTransitionError and counts it
func (e *engineImpl) refuse(claim *entity.Claim, action, actor, reason string) error {
	metrics.TransitionErrors.WithLabelValues(reason).Inc()
	return &entity.IllegalTransitionError{
		ClaimID: claim.ID,
		From:    claim.Status,
		Action:  action,
		Actor:   actor,
		Reason:  reason,
	}
}

// notify hands an event to the notifier. Failures are logged and never returned.
func (e *engineImpl) notify(ctx context.Context, userID string, eventType event.Type, claim *entity.Claim, extra map[string]interface{}) {
	if e.notifier == nil || userID == "" {
		return
	}

	payload := map[string]interface{}{
		event.KeyClaimID:    claim.ID,
		event.KeyEmployeeID: claim.EmployeeID,
		event.KeyStatus:     claim.Status.String(),
		event.KeyAmount:     claim.Amount.StringFixed(2),
		event.KeyCurrency:   claim.Currency,
	}
	if claim.FraudScore != nil {
		payload[event.KeyFraudScore] = *claim.FraudScore
	}
	for k, v := range extra {
		payload[k] = v
	}

	if err := e.notifier.Notify(ctx, userID, eventType, payload); err != nil {
		e.logger.Warn("Failed to send notification",
			zap.String("claim_id", claim.ID),
			zap.String("user_id", userID),
			zap.String("event_type", eventType.String()),
			zap.Error(err))
	}
}

// startSpan opens a span for one engine operation
func startSpan(ctx context.Context, name, claimID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if claimID != "" {
		attrs = append(attrs, attribute.String("claim.id", claimID))
	}
	return tracer.Start(ctx, "workflow."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RetryOnStale runs fn and, if it lost an optimistic-concurrency race, runs it exactly
// once more. fn must re-read the claim itself.
func RetryOnStale[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil || !errors.Is(err, entity.ErrStaleState) {
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("retry aborted: %w", ctxErr)
	}
	return fn(ctx)
}
