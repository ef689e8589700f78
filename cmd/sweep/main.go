// Command sweep runs one escalation pass (and optionally one auto-reject pass)
// and exits. It is meant for external schedulers such as cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garyjia/claim-review/internal/config"
	"github.com/garyjia/claim-review/internal/container"
	"github.com/garyjia/claim-review/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	autoReject := flag.Bool("auto-reject", false, "also run the auto-reject sweep (requires workflow.auto_reject.enabled)")
	timeout := flag.Duration("timeout", 5*time.Minute, "upper bound for the whole run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LoggerOptions("claim-sweep"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, cfg, *autoReject, logger); err != nil {
		logger.Error("Sweep failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, autoReject bool, logger *zap.Logger) error {
	c, err := container.NewContainer(cfg, logger, container.WithoutWorkers(), container.WithoutRuleWatch())
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	// Close drains the dispatcher so escalation notices are delivered before exit
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	engine := c.WorkflowEngine()
	now := time.Now()

	events, err := engine.RunEscalationSweep(ctx, now)
	if err != nil {
		return fmt.Errorf("escalation sweep: %w", err)
	}
	for _, evt := range events {
		logger.Info("Claim escalated",
			zap.String("claim_id", evt.ClaimID),
			zap.Strings("rule_ids", evt.RuleIDs),
			zap.Int("level", evt.ToLevel),
			zap.String("new_approver", evt.NewApproverID))
	}

	var rejected []string
	if autoReject {
		if !cfg.Workflow.AutoReject.Enabled {
			logger.Warn("Auto-reject requested but disabled in configuration; skipping")
		} else {
			rejected, err = engine.RunAutoRejectSweep(ctx, now)
			if err != nil {
				return fmt.Errorf("auto-reject sweep: %w", err)
			}
		}
	}

	logger.Info("Sweep finished",
		zap.Int("escalated", len(events)),
		zap.Int("auto_rejected", len(rejected)))
	return nil
}
