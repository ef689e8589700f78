package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/garyjia/claim-review/internal/application/dispatcher"
	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/application/service"
	"github.com/garyjia/claim-review/internal/application/workflow"
	"github.com/garyjia/claim-review/internal/config"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-review/internal/infrastructure/worker"
	"github.com/garyjia/claim-review/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger
	opts   options

	// Infrastructure - Data
	rawDB  *database.DB
	db     *sqlite.DB
	claims *repository.ClaimRepository
	rules  *RuleBundle
	cache  port.ReviewCache

	// Infrastructure - External
	sinkClosers []io.Closer

	// Application
	dispatcher dispatcher.Dispatcher
	scoring    *ScoringBundle
	workflow   workflow.WorkflowEngine

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Container{
		config: cfg,
		logger: logger,
		opts:   o,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Rule source
// 3. Review cache and scoring
// 4. Notification sinks and dispatcher
// 5. Workflow engine
// 6. Workers
// A failed step releases whatever the earlier steps opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.init(ctx); err != nil {
		if closeErr := c.teardown(); closeErr != nil {
			c.logger.Error("Cleanup after failed start", zap.Error(closeErr))
		}
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) init(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.rawDB = dbBundle.Raw
	c.db = dbBundle.TransactionMgr
	c.claims = repository.NewClaimRepository(c.db, c.logger)
	c.logger.Info("Database initialized")

	c.rules, err = ProvideRules(c.config, c.db, c.opts.watchRules, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize rules: %w", err)
	}
	c.logger.Info("Rule source initialized", zap.String("source", c.config.Rules.Source))

	c.cache, err = ProvideReviewCache(c.config)
	if err != nil {
		return err
	}
	c.scoring, err = ProvideScoring(c.config, c.claims, c.cache, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scoring: %w", err)
	}
	c.logger.Info("Scoring initialized", zap.String("cache", c.config.Cache.Type))

	sinks, closers := ProvideSinks(c.config, c.logger)
	c.sinkClosers = closers
	c.dispatcher = ProvideDispatcher(c.config, sinks, c.logger)

	c.workflow = ProvideWorkflowEngine(c.config, c.claims, c.rules.Source, c.scoring, c.dispatcher, c.logger)
	c.logger.Info("Dispatcher and workflow engine initialized", zap.Int("sinks", len(sinks)))

	if c.opts.workers {
		c.workers = ProvideWorkers(c.config, c.workflow, c.logger)
		if err := c.workers.StartAll(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.WorkerCount()))
	}

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Stop sweeps before the engine's collaborators go away
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Drain queued notifications, then close the sinks behind them
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}
	for _, closer := range c.sinkClosers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	c.sinkClosers = nil

	if closer, ok := c.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	c.cache = nil

	if c.rules != nil && c.rules.StopWatch != nil {
		c.rules.StopWatch()
		c.rules.StopWatch = nil
	}

	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.rawDB = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports whether the database is reachable. It satisfies the HTTP health checker.
func (c *Container) Health(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.Health(ctx)
}

// Status returns health status of all components.
func (c *Container) Status(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	set("database", c.Health(ctx))

	if pinger, ok := c.cache.(interface{ Ping(context.Context) error }); ok {
		set("cache", pinger.Ping(ctx))
	}

	if c.rules == nil {
		set("rules", fmt.Errorf("not initialized"))
	} else {
		_, err := c.rules.Source.GetActiveEscalationRules(ctx)
		set("rules", err)
	}

	if c.opts.workers {
		if c.workers == nil || !c.workers.IsRunning() {
			set("workers", fmt.Errorf("not running"))
		} else {
			status.Components["workers"] = ComponentHealth{
				Healthy: true,
				Message: fmt.Sprintf("worker count: %d", c.workers.WorkerCount()),
			}
		}
	}

	return status
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() *sqlite.DB {
	return c.db
}

// Claims returns the claim repository.
func (c *Container) Claims() *repository.ClaimRepository {
	return c.claims
}

// Rules returns the active rule source.
func (c *Container) Rules() port.RuleRepository {
	if c.rules == nil {
		return nil
	}
	return c.rules.Source
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Scoring returns the scoring service.
func (c *Container) Scoring() service.ScoringService {
	if c.scoring == nil {
		return nil
	}
	return c.scoring.Service
}

// Workers returns the worker manager, nil when workers are disabled.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
