// Package container provides dependency injection and lifecycle management
// for the claim review service.
package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/garyjia/claim-review/internal/application/dispatcher"
	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/application/service"
	"github.com/garyjia/claim-review/internal/application/workflow"
	"github.com/garyjia/claim-review/internal/config"
	"github.com/garyjia/claim-review/internal/infrastructure/cache"
	"github.com/garyjia/claim-review/internal/infrastructure/external/kafka"
	"github.com/garyjia/claim-review/internal/infrastructure/external/lark"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-review/internal/infrastructure/rules"
	"github.com/garyjia/claim-review/internal/infrastructure/worker"
	"github.com/garyjia/claim-review/internal/notification"
	"github.com/garyjia/claim-review/internal/policy"
	"github.com/garyjia/claim-review/internal/risk"
	"github.com/garyjia/claim-review/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqlite.DB
}

// RuleBundle holds the active rule source and, for watched files, the stop hook.
type RuleBundle struct {
	Source    port.RuleRepository
	File      *rules.FileSource
	StopWatch func()
}

// ScoringBundle holds the scoring pipeline.
type ScoringBundle struct {
	Policy  *policy.Engine
	Scorer  *risk.Scorer
	Service service.ScoringService
}

// ProvideDatabase opens the SQLite database and applies the embedded migrations.
func ProvideDatabase(cfg *config.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	opts := cfg.DatabaseOptions()
	if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(opts, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Raw:            db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRules selects the rule source. A file source is watched when watch is true.
func ProvideRules(cfg *config.Config, db *sqlite.DB, watch bool, logger *zap.Logger) (*RuleBundle, error) {
	switch cfg.Rules.Source {
	case "database":
		return &RuleBundle{Source: repository.NewRuleRepository(db, logger)}, nil
	case "", "file":
		src, err := rules.NewFileSource(cfg.Rules.Path, logger)
		if err != nil {
			return nil, err
		}
		bundle := &RuleBundle{Source: src, File: src}
		if watch {
			stop, err := src.Watch()
			if err != nil {
				return nil, fmt.Errorf("failed to watch rules file: %w", err)
			}
			bundle.StopWatch = stop
		}
		return bundle, nil
	default:
		return nil, fmt.Errorf("unknown rules source %q", cfg.Rules.Source)
	}
}

// ProvideScoring builds the detectors, the review policy and the scoring service.
// reviewCache may be nil.
func ProvideScoring(cfg *config.Config, claims port.ClaimRepository, reviewCache port.ReviewCache, logger *zap.Logger) (*ScoringBundle, error) {
	riskCfg, err := cfg.RiskConfig()
	if err != nil {
		return nil, err
	}

	policyEngine := policy.NewEngine(cfg.PolicyConfig())
	scorer := risk.NewScorer(risk.NewDetectors(riskCfg), policyEngine, logger)

	opts := []service.ScoringOption{
		service.WithHistory(cfg.HistoryConfig()),
		service.WithScoringLogger(service.NewZapLogger(logger)),
	}
	if reviewCache != nil {
		opts = append(opts, service.WithReviewCache(reviewCache))
	}

	return &ScoringBundle{
		Policy:  policyEngine,
		Scorer:  scorer,
		Service: service.NewScoringService(claims, scorer, opts...),
	}, nil
}

// ProvideSinks builds the enabled notification sinks. The returned closers
// must be closed after the dispatcher has drained.
func ProvideSinks(cfg *config.Config, logger *zap.Logger) ([]port.EventSink, []io.Closer) {
	var (
		sinks   []port.EventSink
		closers []io.Closer
	)

	if cfg.Notification.Log.Enabled {
		sinks = append(sinks, notification.NewLogSink(logger))
	}
	if cfg.Notification.Lark.Enabled {
		sinks = append(sinks, lark.NewNotifier(cfg.LarkOptions(), logger))
	}
	if cfg.Notification.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.KafkaOptions(), logger)
		sinks = append(sinks, producer)
		closers = append(closers, producer)
	}

	return sinks, closers
}

// ProvideDispatcher creates the event dispatcher and subscribes every sink to all events.
func ProvideDispatcher(cfg *config.Config, sinks []port.EventSink, logger *zap.Logger) dispatcher.Dispatcher {
	opts := []dispatcher.Option{dispatcher.WithLogger(logger)}
	if cfg.Notification.DeliveryTimeout > 0 {
		opts = append(opts, dispatcher.WithDeliveryTimeout(cfg.Notification.DeliveryTimeout))
	}

	disp := dispatcher.NewDispatcher(opts...)
	for _, sink := range sinks {
		disp.SubscribeNamed(dispatcher.AllEvents, sink.Name(), dispatcher.SinkHandler(sink))
		logger.Info("Notification sink enabled", zap.String("sink", sink.Name()))
	}
	return disp
}

// ProvideReviewCache creates the review display cache; nil when disabled.
func ProvideReviewCache(cfg *config.Config) (port.ReviewCache, error) {
	c, err := cache.New(cfg.CacheOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create review cache: %w", err)
	}
	return c, nil
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(
	cfg *config.Config,
	claims port.ClaimRepository,
	ruleSource port.RuleRepository,
	scoring *ScoringBundle,
	notifier port.Notifier,
	logger *zap.Logger,
) workflow.WorkflowEngine {
	return workflow.NewEngine(
		claims,
		ruleSource,
		scoring.Service,
		scoring.Policy,
		workflow.WithConfig(cfg.WorkflowConfig()),
		workflow.WithNotifier(notifier),
		workflow.WithLogger(logger),
	)
}

// ProvideWorkers registers the periodic sweeps that are enabled in cfg.
func ProvideWorkers(cfg *config.Config, runner worker.SweepRunner, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger)

	var opts []worker.SweeperOption
	if cfg.Escalation.PassTimeout > 0 {
		opts = append(opts, worker.WithPassTimeout(cfg.Escalation.PassTimeout))
	}

	if cfg.Escalation.Enabled {
		manager.Register(worker.NewEscalationSweeper(runner, cfg.Escalation.Interval, logger, opts...))
	}
	if cfg.Workflow.AutoReject.Enabled {
		manager.Register(worker.NewAutoRejectSweeper(runner, cfg.Escalation.AutoRejectInterval, logger, opts...))
	}

	return manager
}
