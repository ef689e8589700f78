package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/claim-review/internal/domain/entity"
	"go.uber.org/zap"
)

// SweepFunc runs one sweep pass at now
type SweepFunc func(ctx context.Context, now time.Time) error

// SweepRunner is the part of the workflow engine the sweep workers drive
type SweepRunner interface {
	RunEscalationSweep(ctx context.Context, now time.Time) ([]entity.EscalationEvent, error)
	RunAutoRejectSweep(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper runs a sweep on a fixed interval. Passes never overlap: a slow pass
// delays the next tick instead of running concurrently with it.
type Sweeper struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	sweep    SweepFunc
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// SweeperOption configures a sweeper
type SweeperOption func(*Sweeper)

// WithClock overrides the time passed to each sweep
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithPassTimeout bounds a single pass
func WithPassTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.timeout = d }
}

// NewSweeper creates a worker calling sweep every interval
func NewSweeper(name string, interval time.Duration, sweep SweepFunc, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		name:     name,
		interval: interval,
		sweep:    sweep,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEscalationSweeper wires the escalation sweep of runner
func NewEscalationSweeper(runner SweepRunner, interval time.Duration, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	return NewSweeper("EscalationSweeper", interval, func(ctx context.Context, now time.Time) error {
		_, err := runner.RunEscalationSweep(ctx, now)
		return err
	}, logger, opts...)
}

// NewAutoRejectSweeper wires the auto-reject sweep of runner
func NewAutoRejectSweeper(runner SweepRunner, interval time.Duration, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	return NewSweeper("AutoRejectSweeper", interval, func(ctx context.Context, now time.Time) error {
		_, err := runner.RunAutoRejectSweep(ctx, now)
		return err
	}, logger, opts...)
}

// Name returns the worker name for identification
func (s *Sweeper) Name() string {
	return s.name
}

// Start launches the sweep loop. The first pass runs immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("%s is already running", s.name)
	}
	if s.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", s.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("Sweeper started",
		zap.String("worker_name", s.name),
		zap.Duration("interval", s.interval))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("Sweeper stopped", zap.String("worker_name", s.name))
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Sweeper) runPass(ctx context.Context) {
	passCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep panicked",
				zap.String("worker_name", s.name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := s.sweep(passCtx, s.now()); err != nil {
		s.logger.Error("Sweep failed",
			zap.String("worker_name", s.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Debug("Sweep completed",
		zap.String("worker_name", s.name),
		zap.Duration("elapsed", time.Since(start)))
}
