// Command import-rules replaces the rules stored in the database with the
// contents of a rules YAML file. Use it when rules.source is "database".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/claim-review/internal/config"
	"github.com/garyjia/claim-review/internal/container"
	"github.com/garyjia/claim-review/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-review/internal/infrastructure/rules"
	"github.com/garyjia/claim-review/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	rulesPath := flag.String("rules", "", "rules file to import (defaults to rules.path)")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LoggerOptions("claim-import-rules"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	path := *rulesPath
	if path == "" {
		path = cfg.Rules.Path
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg, path, *dryRun, logger); err != nil {
		logger.Error("Rule import failed", zap.String("path", path), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path string, dryRun bool, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}
	set, err := rules.Parse(data)
	if err != nil {
		return err
	}

	logger.Info("Rules file parsed",
		zap.String("path", path),
		zap.Int("approval_rules", len(set.Approval)),
		zap.Int("escalation_rules", len(set.Escalation)))

	if dryRun {
		return nil
	}
	if cfg.Rules.Source != "database" {
		logger.Warn("rules.source is not database; the imported rules are unused until it is switched",
			zap.String("source", cfg.Rules.Source))
	}

	db, err := container.ProvideDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Raw.Close()

	repo := repository.NewRuleRepository(db.TransactionMgr, logger)
	if err := repo.ReplaceRules(ctx, set.Approval, set.Escalation); err != nil {
		return err
	}

	logger.Info("Rules imported")
	return nil
}
